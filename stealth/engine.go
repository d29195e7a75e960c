// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

package stealth

import (
	"io"

	"github.com/AmaanSayyad/PrivatePay/params"
)

// Engine bundles a secure random source with a chain address format. It has
// no mutable state; one Engine may be shared across goroutines as long as its
// random source is safe for concurrent use (crypto/rand.Reader is).
type Engine struct {
	random io.Reader
	format params.AddressFormat
}

// Option configures an Engine
type Option func(*Engine)

// WithRandom replaces the operating system CSPRNG, e.g. with a seeded
// reader in tests
func WithRandom(r io.Reader) Option {
	return func(e *Engine) {
		e.random = r
	}
}

// WithAddressFormat selects the chain address format
func WithAddressFormat(f params.AddressFormat) Option {
	return func(e *Engine) {
		e.format = f
	}
}

// NewEngine creates an engine for Aptos addresses backed by crypto/rand
// unless overridden by options
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		random: defaultRandom,
		format: params.AptosAddressFormat,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.random == nil {
		return nil, ErrInsecureRandomness
	}
	if err := e.format.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// AddressFormat returns the engine's address format
func (e *Engine) AddressFormat() params.AddressFormat {
	return e.format
}

// GeneratePrivateKey draws a private key from the engine's random source
func (e *Engine) GeneratePrivateKey() (PrivateKey, error) {
	return GeneratePrivateKey(e.random)
}

// GenerateKeyPair draws a fresh key pair
func (e *Engine) GenerateKeyPair() (*KeyPair, error) {
	return GenerateKeyPair(e.random)
}

// GenerateEphemeralKeyPair draws the one-use key pair for a payment
func (e *Engine) GenerateEphemeralKeyPair() (*KeyPair, error) {
	return GenerateKeyPair(e.random)
}

// GenerateMetaKeys draws a payee's spend and viewing key pairs
func (e *Engine) GenerateMetaKeys() (*MetaKeys, error) {
	spend, err := GenerateKeyPair(e.random)
	if err != nil {
		return nil, err
	}
	viewing, err := GenerateKeyPair(e.random)
	if err != nil {
		return nil, err
	}
	return &MetaKeys{Spend: *spend, Viewing: *viewing}, nil
}

// DeriveStealthAddress derives the address of stealthPub in the engine's format
func (e *Engine) DeriveStealthAddress(stealthPub PublicKey) (string, error) {
	return DeriveStealthAddress(stealthPub, e.format)
}

// GenerateStealthAddress is the package function in the engine's format
func (e *Engine) GenerateStealthAddress(meta MetaAddress, ephemeralPriv PrivateKey, index uint32) (*Payment, error) {
	return GenerateStealthAddress(meta.SpendPubKey, meta.ViewingPubKey, ephemeralPriv, index, e.format)
}

// NewPayment draws an ephemeral key, derives the stealth address for meta at
// index and wipes the ephemeral private key before returning
func (e *Engine) NewPayment(meta MetaAddress, index uint32) (*Payment, error) {
	ephemeral, err := e.GenerateEphemeralKeyPair()
	if err != nil {
		return nil, err
	}
	defer ephemeral.Private.Zero()

	return e.GenerateStealthAddress(meta, ephemeral.Private, index)
}
