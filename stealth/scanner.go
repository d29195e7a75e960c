// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

package stealth

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/AmaanSayyad/PrivatePay/codec"
	"github.com/AmaanSayyad/PrivatePay/metrics"
	"github.com/AmaanSayyad/PrivatePay/params"
)

// Announcement is the stealth data a payer publishes alongside a transfer
type Announcement struct {
	TxHash          common.Hash  `json:"txHash"`
	BlockNumber     uint64       `json:"blockNumber"`
	StealthAddress  string       `json:"stealthAddress"`
	EphemeralPubKey PublicKey    `json:"ephemeralPubKey"`
	ViewHint        byte         `json:"viewHint"`
	Index           uint32       `json:"k"`
	Amount          *uint256.Int `json:"amount"`
}

type announcementJSON struct {
	TxHash          common.Hash  `json:"txHash"`
	BlockNumber     uint64       `json:"blockNumber"`
	StealthAddress  string       `json:"stealthAddress"`
	EphemeralPubKey PublicKey    `json:"ephemeralPubKey"`
	ViewHint        string       `json:"viewHint"`
	Index           uint32       `json:"k"`
	Amount          *uint256.Int `json:"amount"`
}

// MarshalJSON encodes the announcement with the view hint as hex, the same
// way payments are encoded
func (a Announcement) MarshalJSON() ([]byte, error) {
	return json.Marshal(&announcementJSON{
		TxHash:          a.TxHash,
		BlockNumber:     a.BlockNumber,
		StealthAddress:  a.StealthAddress,
		EphemeralPubKey: a.EphemeralPubKey,
		ViewHint:        codec.BytesToHex([]byte{a.ViewHint}),
		Index:           a.Index,
		Amount:          a.Amount,
	})
}

// UnmarshalJSON decodes an announcement produced by MarshalJSON
func (a *Announcement) UnmarshalJSON(data []byte) error {
	var dec announcementJSON
	if err := json.Unmarshal(data, &dec); err != nil {
		return err
	}
	hint, err := codec.HexToFixed(dec.ViewHint, 1)
	if err != nil {
		return &ValidationError{Field: "viewHint", Err: err}
	}
	*a = Announcement{
		TxHash:          dec.TxHash,
		BlockNumber:     dec.BlockNumber,
		StealthAddress:  dec.StealthAddress,
		EphemeralPubKey: dec.EphemeralPubKey,
		ViewHint:        hint[0],
		Index:           dec.Index,
		Amount:          dec.Amount,
	}
	return nil
}

// ReceivedPayment is an announcement confirmed to belong to the scanner's
// owner. It marshals to JSON as its announcement, so the stealth private key
// never leaves the process that way.
type ReceivedPayment struct {
	Announcement
	StealthPubKey PublicKey
	// PrivateKey controls StealthAddress
	PrivateKey PrivateKey
}

// Scanner recognises stealth payments to one meta address
type Scanner struct {
	mu sync.RWMutex

	keys   *MetaKeys
	format params.AddressFormat

	// Detected payments
	payments []*ReceivedPayment
	seen     map[string]struct{}
	total    *uint256.Int

	// Scanning state
	lastScanned uint64

	metrics *metrics.MetricsRegistry
}

// NewScanner creates a scanner for the payee owning keys
func NewScanner(keys *MetaKeys, format params.AddressFormat) *Scanner {
	return &Scanner{
		keys:     keys,
		format:   format,
		payments: make([]*ReceivedPayment, 0),
		seen:     make(map[string]struct{}),
		total:    new(uint256.Int),
		metrics:  metrics.GetGlobalRegistry(),
	}
}

// MetaAddress returns the meta address this scanner watches
func (s *Scanner) MetaAddress() MetaAddress {
	return s.keys.MetaAddress()
}

// Check tests a single announcement. It returns nil without error when the
// announcement is not addressed to the scanner's owner. The view hint is
// compared first; a matching hint is confirmed by recomputing the address.
func (s *Scanner) Check(a *Announcement) (*ReceivedPayment, error) {
	secret, err := ComputeSharedSecret(s.keys.Viewing.Private, a.EphemeralPubKey)
	if err != nil {
		return nil, withField("ephemeralPubKey", err)
	}
	if DeriveViewHint(secret) != a.ViewHint {
		return nil, nil
	}
	s.metrics.HintMatches.Inc()

	stealthPub, err := DeriveStealthPublicKey(s.keys.Spend.Public, DeriveTweak(secret, a.Index))
	if err != nil {
		return nil, err
	}
	derived, err := DeriveStealthAddress(stealthPub, s.format)
	if err != nil {
		return nil, err
	}
	announced, err := NormalizeAddress(a.StealthAddress, s.format)
	if err != nil {
		return nil, err
	}
	if derived != announced {
		s.metrics.HintFalsePositives.Inc()
		return nil, nil
	}

	priv, err := DeriveStealthPrivateKey(s.keys.Spend.Private, secret, a.Index)
	if err != nil {
		return nil, err
	}
	ann := *a
	ann.StealthAddress = derived
	if ann.Amount == nil {
		ann.Amount = new(uint256.Int)
	}
	return &ReceivedPayment{
		Announcement:  ann,
		StealthPubKey: stealthPub,
		PrivateKey:    priv,
	}, nil
}

// ScanBatch checks a batch of announcements observed up to cursor and
// records the payments that belong to the owner. Malformed announcements are
// skipped; a payment already recorded is not returned again.
func (s *Scanner) ScanBatch(cursor uint64, anns []*Announcement) []*ReceivedPayment {
	found, _ := s.scanBatch(cursor, anns, nil)
	return found
}

// scanBatch is ScanBatch with a store hook. store receives the new payments
// before they are recorded and returns the ones to report; when it fails the
// scanner state is left untouched so the batch can be scanned again.
func (s *Scanner) scanBatch(cursor uint64, anns []*Announcement, store func([]*ReceivedPayment) ([]*ReceivedPayment, error)) ([]*ReceivedPayment, error) {
	start := time.Now()
	defer func() { s.metrics.RecordScanTime(time.Since(start)) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		found []*ReceivedPayment
		batch = make(map[string]struct{})
	)
	for _, a := range anns {
		s.metrics.AnnouncementsScanned.Inc()

		payment, err := s.Check(a)
		if err != nil {
			s.metrics.AnnouncementsInvalid.Inc()
			log.Debug("Skipping invalid stealth announcement", "tx", a.TxHash.Hex(), "err", err)
			continue
		}
		if payment == nil {
			continue
		}
		key := paymentKey(payment)
		if _, dup := s.seen[key]; dup {
			continue
		}
		if _, dup := batch[key]; dup {
			continue
		}
		batch[key] = struct{}{}
		found = append(found, payment)
	}

	report := found
	if store != nil {
		var err error
		if report, err = store(found); err != nil {
			return nil, err
		}
	}

	for _, payment := range found {
		s.seen[paymentKey(payment)] = struct{}{}
		s.payments = append(s.payments, payment)
		s.total.Add(s.total, payment.Amount)
		s.metrics.PaymentsConfirmed.Inc()
	}
	if cursor > s.lastScanned {
		s.lastScanned = cursor
	}
	return report, nil
}

func paymentKey(p *ReceivedPayment) string {
	return p.TxHash.Hex() + "/" + p.StealthAddress
}

// Payments returns all detected payments
func (s *Scanner) Payments() []*ReceivedPayment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*ReceivedPayment, len(s.payments))
	copy(result, s.payments)
	return result
}

// PaymentsByAddress returns payments to a specific stealth address
func (s *Scanner) PaymentsByAddress(addr string) []*ReceivedPayment {
	normalized, err := NormalizeAddress(addr, s.format)
	if err != nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*ReceivedPayment
	for _, p := range s.payments {
		if p.StealthAddress == normalized {
			result = append(result, p)
		}
	}
	return result
}

// LastScanned returns the highest cursor scanned so far
func (s *Scanner) LastScanned() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastScanned
}

// TotalBalance returns the sum of all detected payment amounts
func (s *Scanner) TotalBalance() *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(uint256.Int).Set(s.total)
}
