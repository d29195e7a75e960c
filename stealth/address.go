// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

package stealth

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/AmaanSayyad/PrivatePay/codec"
	"github.com/AmaanSayyad/PrivatePay/params"
)

// DeriveStealthAddress hashes the stealth public key with SHA3-256, keeps the
// first format.Width bytes, left-pads them with zeros to format.Size bytes and
// hex encodes the result behind format.Prefix.
func DeriveStealthAddress(stealthPub PublicKey, format params.AddressFormat) (string, error) {
	if err := format.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidLength, err)
	}
	hash := sha3.Sum256(stealthPub[:])
	addr := codec.LeftPad(hash[:format.Width], format.Size)
	return format.Prefix + codec.Strip0x(codec.BytesToHex(addr)), nil
}

// NormalizeAddress brings an address into the canonical form of format:
// lower case, full width and prefixed. Short forms with leading zeros
// dropped are accepted.
func NormalizeAddress(addr string, format params.AddressFormat) (string, error) {
	digits := addr
	if n := len(format.Prefix); n > 0 && len(addr) >= n && strings.EqualFold(addr[:n], format.Prefix) {
		digits = addr[n:]
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	b, err := codec.HexToBytes(digits)
	if err != nil {
		return "", &ValidationError{Field: "address", Err: err}
	}
	if len(b) == 0 || len(b) > format.Size {
		return "", fieldError("address", ErrInvalidLength, "want at most %d bytes, got %d", format.Size, len(b))
	}
	return format.Prefix + codec.Strip0x(codec.BytesToHex(codec.LeftPad(b, format.Size))), nil
}

// Payment is everything a payer needs to send to a stealth address and
// announce it to the payee
type Payment struct {
	StealthAddress  string
	StealthPubKey   PublicKey
	EphemeralPubKey PublicKey
	ViewHint        byte
	Index           uint32
}

type paymentJSON struct {
	StealthAddress  string    `json:"stealthAddress"`
	StealthPubKey   PublicKey `json:"stealthPubKey"`
	EphemeralPubKey PublicKey `json:"ephemeralPubKey"`
	ViewHint        string    `json:"viewHint"`
	Index           uint32    `json:"k"`
}

// MarshalJSON encodes the payment with hex fields
func (p Payment) MarshalJSON() ([]byte, error) {
	return json.Marshal(&paymentJSON{
		StealthAddress:  p.StealthAddress,
		StealthPubKey:   p.StealthPubKey,
		EphemeralPubKey: p.EphemeralPubKey,
		ViewHint:        codec.BytesToHex([]byte{p.ViewHint}),
		Index:           p.Index,
	})
}

// UnmarshalJSON decodes a payment produced by MarshalJSON
func (p *Payment) UnmarshalJSON(data []byte) error {
	var dec paymentJSON
	if err := json.Unmarshal(data, &dec); err != nil {
		return err
	}
	hint, err := codec.HexToFixed(dec.ViewHint, 1)
	if err != nil {
		return &ValidationError{Field: "viewHint", Err: err}
	}
	*p = Payment{
		StealthAddress:  dec.StealthAddress,
		StealthPubKey:   dec.StealthPubKey,
		EphemeralPubKey: dec.EphemeralPubKey,
		ViewHint:        hint[0],
		Index:           dec.Index,
	}
	return nil
}

// GenerateStealthAddress derives the one-time address for a payment to the
// meta address (spendPub, viewingPub) using ephemeralPriv and index. It is a
// pure function: the caller draws and discards the ephemeral key. Inputs are
// checked in step order (ephemeral key, viewing key, spend key) and the first
// error is returned as is.
func GenerateStealthAddress(spendPub, viewingPub PublicKey, ephemeralPriv PrivateKey, index uint32, format params.AddressFormat) (*Payment, error) {
	if _, err := ephemeralPriv.scalar(); err != nil {
		return nil, withField("ephemeralPrivKey", err)
	}
	if _, err := viewingPub.point("viewingPubKey"); err != nil {
		return nil, err
	}
	if _, err := spendPub.point("spendPubKey"); err != nil {
		return nil, err
	}

	ephemeralPub, err := DerivePublicKey(ephemeralPriv)
	if err != nil {
		return nil, err
	}
	secret, err := ComputeSharedSecret(ephemeralPriv, viewingPub)
	if err != nil {
		return nil, err
	}
	stealthPub, err := DeriveStealthPublicKey(spendPub, DeriveTweak(secret, index))
	if err != nil {
		return nil, err
	}
	addr, err := DeriveStealthAddress(stealthPub, format)
	if err != nil {
		return nil, err
	}

	return &Payment{
		StealthAddress:  addr,
		StealthPubKey:   stealthPub,
		EphemeralPubKey: ephemeralPub,
		ViewHint:        DeriveViewHint(secret),
		Index:           index,
	}, nil
}
