// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

package stealth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/AmaanSayyad/PrivatePay/metrics"
	"github.com/AmaanSayyad/PrivatePay/params"
	"github.com/AmaanSayyad/PrivatePay/stealthdb"
)

var (
	ErrScannerExists   = errors.New("scanner already exists for this meta address")
	ErrScannerNotFound = errors.New("scanner not found for this meta address")
	ErrSourceRequired  = errors.New("announcement source required")
	ErrKeysRequired    = errors.New("spend and viewing keys required")
	ErrAlreadyRunning  = errors.New("auto-scan already running")
)

// AnnouncementSource provides stealth announcements, e.g. from a chain
// indexer. Cursors are block heights or ledger versions, whichever the chain
// orders announcements by.
type AnnouncementSource interface {
	// Announcements returns the announcements with cursor in [from, to]
	Announcements(ctx context.Context, from, to uint64) ([]*Announcement, error)
	// Head returns the latest cursor available
	Head(ctx context.Context) (uint64, error)
}

// PaymentEvent is posted for every newly detected payment
type PaymentEvent struct {
	ScannerID string
	Payment   *ReceivedPayment
}

// Service manages the scanners of several payees
type Service struct {
	mu       sync.RWMutex
	scanners map[string]*Scanner // keyed by meta address string
	source   AnnouncementSource
	db       *stealthdb.Database
	format   params.AddressFormat

	paymentFeed event.Feed
	scope       event.SubscriptionScope

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	metrics *metrics.MetricsRegistry
}

// NewService creates a service deriving addresses in format. db may be nil,
// in which case detected payments are kept in memory only.
func NewService(format params.AddressFormat, db *stealthdb.Database) *Service {
	return &Service{
		scanners: make(map[string]*Scanner),
		db:       db,
		format:   format,
		metrics:  metrics.GetGlobalRegistry(),
	}
}

// SetSource sets where announcements are read from
func (s *Service) SetSource(source AnnouncementSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = source
}

// RegisterScanner registers a scanner for the given payee keys and returns
// its ID, the payee's meta address string
func (s *Service) RegisterScanner(keys *MetaKeys) (string, error) {
	if keys == nil {
		return "", ErrKeysRequired
	}
	if _, err := keys.Spend.Private.scalar(); err != nil {
		return "", withField("spendPrivKey", err)
	}
	if _, err := keys.Viewing.Private.scalar(); err != nil {
		return "", withField("viewingPrivKey", err)
	}
	scannerID := keys.MetaAddress().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.scanners[scannerID]; exists {
		return scannerID, ErrScannerExists
	}
	scanner := NewScanner(keys, s.format)
	if s.db != nil {
		if cursor, ok := stealthdb.ReadCursor(s.db, scannerID); ok {
			scanner.lastScanned = cursor
		}
	}
	s.scanners[scannerID] = scanner
	s.metrics.ScannersRegistered.Add(1)

	log.Info("Stealth scanner registered", "id", scannerID)
	return scannerID, nil
}

// UnregisterScanner removes a scanner. Stored payments are kept.
func (s *Service) UnregisterScanner(scannerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.scanners[scannerID]; !exists {
		return ErrScannerNotFound
	}
	delete(s.scanners, scannerID)
	s.metrics.ScannersRegistered.Add(-1)

	log.Info("Stealth scanner unregistered", "id", scannerID)
	return nil
}

// GetScanner returns a scanner by ID
func (s *Service) GetScanner(scannerID string) (*Scanner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scanner, exists := s.scanners[scannerID]
	if !exists {
		return nil, ErrScannerNotFound
	}
	return scanner, nil
}

// ListScanners returns all registered scanner IDs
func (s *Service) ListScanners() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.scanners))
	for id := range s.scanners {
		ids = append(ids, id)
	}
	return ids
}

// SubscribePayments delivers a PaymentEvent on ch for every new payment.
// The channel should be buffered; delivery blocks the scan until received.
func (s *Service) SubscribePayments(ch chan<- PaymentEvent) event.Subscription {
	return s.scope.Track(s.paymentFeed.Subscribe(ch))
}

// ScanAnnouncements runs a batch of announcements observed up to cursor
// through every scanner, persists and publishes the new payments. A scanner
// whose payments could not be stored keeps its previous state and is
// reported in the returned error; the other scanners' results still count.
func (s *Service) ScanAnnouncements(cursor uint64, anns []*Announcement) (map[string][]*ReceivedPayment, error) {
	s.mu.RLock()
	scanners := make(map[string]*Scanner, len(s.scanners))
	for id, scanner := range s.scanners {
		scanners[id] = scanner
	}
	s.mu.RUnlock()

	var (
		results = make(map[string][]*ReceivedPayment)
		errs    []error
	)
	for id, scanner := range scanners {
		payments, err := scanner.scanBatch(cursor, anns, func(found []*ReceivedPayment) ([]*ReceivedPayment, error) {
			return s.persist(id, cursor, found)
		})
		if err != nil {
			log.Error("Failed to store stealth payments", "scanner", id, "err", err)
			errs = append(errs, fmt.Errorf("scanner %s: %w", id, err))
			continue
		}
		if len(payments) > 0 {
			results[id] = payments
		}
	}

	for id, payments := range results {
		for _, payment := range payments {
			log.Info("Stealth payment detected",
				"scanner", id,
				"tx", payment.TxHash.Hex(),
				"address", payment.StealthAddress,
				"amount", payment.Amount,
			)
			s.paymentFeed.Send(PaymentEvent{ScannerID: id, Payment: payment})
		}
	}
	return results, errors.Join(errs...)
}

// persist stores new payments together with the scanner cursor and returns
// the payments the database did not already hold from an earlier run
func (s *Service) persist(scannerID string, cursor uint64, payments []*ReceivedPayment) ([]*ReceivedPayment, error) {
	if s.db == nil {
		return payments, nil
	}

	var (
		fresh []*ReceivedPayment
		recs  []*stealthdb.PaymentRecord
	)
	for _, p := range payments {
		if stealthdb.HasPayment(s.db, scannerID, p.TxHash, p.Index) {
			continue
		}
		fresh = append(fresh, p)
		recs = append(recs, &stealthdb.PaymentRecord{
			ScannerID:       scannerID,
			TxHash:          p.TxHash,
			BlockNumber:     p.BlockNumber,
			StealthAddress:  p.StealthAddress,
			EphemeralPubKey: p.EphemeralPubKey[:],
			ViewHint:        p.ViewHint,
			Index:           p.Index,
			Amount:          p.Amount,
		})
	}
	if err := stealthdb.WriteScanResult(s.db, scannerID, cursor, recs); err != nil {
		return nil, err
	}
	s.metrics.PaymentsStored.Add(int64(len(recs)))
	return fresh, nil
}

// ScanRange fetches announcements with cursor in [from, to] from the source
// and scans them. The head cursor only advances when every scanner stored its
// payments.
func (s *Service) ScanRange(ctx context.Context, from, to uint64) (map[string][]*ReceivedPayment, error) {
	s.mu.RLock()
	source := s.source
	s.mu.RUnlock()

	if source == nil {
		return nil, ErrSourceRequired
	}
	anns, err := source.Announcements(ctx, from, to)
	if err != nil {
		return nil, err
	}
	results, err := s.ScanAnnouncements(to, anns)
	if err != nil {
		return results, err
	}

	s.metrics.LastScannedCursor.Set(int64(to))
	if s.db != nil {
		if err := stealthdb.WriteHeadCursor(s.db, to); err != nil {
			return results, fmt.Errorf("failed to store head cursor: %w", err)
		}
	}
	return results, nil
}

// StoredPayments returns the payments persisted for a scanner
func (s *Service) StoredPayments(scannerID string) ([]*stealthdb.PaymentRecord, error) {
	if s.db == nil {
		return nil, nil
	}
	return stealthdb.ReadPayments(s.db, scannerID)
}

// StartAutoScan polls the source every interval and scans new announcements,
// resuming after the head cursor stored in the database
func (s *Service) StartAutoScan(ctx context.Context, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		return ErrSourceRequired
	}
	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})

	var next uint64
	if s.db != nil {
		if head, ok := stealthdb.ReadHeadCursor(s.db); ok {
			next = head + 1
		}
	}

	s.wg.Add(1)
	go s.autoScanLoop(ctx, s.stopCh, interval, next)
	log.Info("Stealth auto-scan started", "from", next, "interval", interval)
	return nil
}

// Stop stops auto-scanning and closes all payment subscriptions
func (s *Service) Stop() {
	s.mu.Lock()
	if s.running {
		close(s.stopCh)
		s.running = false
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.scope.Close()
	log.Info("Stealth service stopped")
}

func (s *Service) autoScanLoop(ctx context.Context, stop chan struct{}, interval time.Duration, next uint64) {
	defer s.wg.Done()
	defer s.finishAutoScan(stop)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.mu.RLock()
			source := s.source
			s.mu.RUnlock()

			head, err := source.Head(ctx)
			if err != nil {
				log.Warn("Failed to read announcement head", "err", err)
				continue
			}
			if head < next {
				continue
			}
			if _, err := s.ScanRange(ctx, next, head); err != nil {
				log.Warn("Auto-scan failed", "from", next, "to", head, "err", err)
				continue
			}
			next = head + 1
		}
	}
}

// finishAutoScan clears the running flag when the loop owning stop exits on
// its own, e.g. because its context was cancelled
func (s *Service) finishAutoScan(stop chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && s.stopCh == stop {
		close(stop)
		s.running = false
	}
}
