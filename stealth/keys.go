// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

// Package stealth implements the PrivatePay stealth address engine.
//
// A payee publishes a meta address (spend and viewing public keys). For every
// payment the payer draws an ephemeral key, computes an ECDH secret with the
// viewing key and tweaks the spend key with a hash of that secret, giving a
// one-time address only the payee can recognise and spend from. All
// derivation functions are pure and safe for concurrent use.
package stealth

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/AmaanSayyad/PrivatePay/codec"
	"github.com/AmaanSayyad/PrivatePay/params"
)

const (
	pubKeyEven = 0x02
	pubKeyOdd  = 0x03
)

// PrivateKey is a secp256k1 scalar in big-endian form
type PrivateKey [params.PrivateKeyLength]byte

// PublicKey is a compressed secp256k1 point
type PublicKey [params.PublicKeyLength]byte

// KeyPair is a private key together with its public key
type KeyPair struct {
	Private PrivateKey
	Public  PublicKey
}

// PrivateKeyFromBytes checks that b is a valid scalar and copies it
func PrivateKeyFromBytes(b []byte) (PrivateKey, error) {
	var k PrivateKey
	if len(b) != params.PrivateKeyLength {
		return k, fieldError("privateKey", ErrInvalidLength, "want %d bytes, got %d", params.PrivateKeyLength, len(b))
	}
	copy(k[:], b)
	if _, err := k.scalar(); err != nil {
		return PrivateKey{}, err
	}
	return k, nil
}

// HexToPrivateKey parses a 64 hex character private key
func HexToPrivateKey(s string) (PrivateKey, error) {
	b, err := codec.HexToBytes(s)
	if err != nil {
		return PrivateKey{}, &ValidationError{Field: "privateKey", Err: err}
	}
	return PrivateKeyFromBytes(b)
}

// Hex returns the 0x-prefixed hex encoding of the key
func (k PrivateKey) Hex() string {
	return codec.BytesToHex(k[:])
}

// Zero wipes the key material
func (k *PrivateKey) Zero() {
	for i := range k {
		k[i] = 0
	}
}

// scalar interprets the key as a big-endian integer and rejects zero and
// values not below the group order
func (k PrivateKey) scalar() (*secp256k1.ModNScalar, error) {
	var s secp256k1.ModNScalar
	b := [params.PrivateKeyLength]byte(k)
	if overflow := s.SetBytes(&b); overflow != 0 {
		return nil, fieldError("privateKey", ErrInvalidScalar, "not below the group order")
	}
	if s.IsZero() {
		return nil, fieldError("privateKey", ErrInvalidScalar, "zero")
	}
	return &s, nil
}

// ValidatePublicKey checks that b is a 33-byte compressed point on secp256k1.
// The returned error is a *ValidationError wrapping ErrInvalidLength,
// ErrInvalidPrefix or ErrInvalidPoint.
func ValidatePublicKey(b []byte) error {
	_, err := parsePoint("publicKey", b)
	return err
}

// ValidatePublicKeyHex is ValidatePublicKey for hex input
func ValidatePublicKeyHex(s string) error {
	b, err := codec.HexToBytes(s)
	if err != nil {
		return &ValidationError{Field: "publicKey", Err: err}
	}
	return ValidatePublicKey(b)
}

// PublicKeyFromBytes validates b and copies it into a PublicKey
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var k PublicKey
	if err := ValidatePublicKey(b); err != nil {
		return k, err
	}
	copy(k[:], b)
	return k, nil
}

// HexToPublicKey parses a 66 hex character compressed public key
func HexToPublicKey(s string) (PublicKey, error) {
	b, err := codec.HexToBytes(s)
	if err != nil {
		return PublicKey{}, &ValidationError{Field: "publicKey", Err: err}
	}
	return PublicKeyFromBytes(b)
}

// Hex returns the 0x-prefixed hex encoding of the key
func (k PublicKey) Hex() string {
	return codec.BytesToHex(k[:])
}

// MarshalText implements encoding.TextMarshaler
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := HexToPublicKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// point decodes the key into Jacobian form
func (k PublicKey) point(field string) (*secp256k1.JacobianPoint, error) {
	return parsePoint(field, k[:])
}

func parsePoint(field string, b []byte) (*secp256k1.JacobianPoint, error) {
	if len(b) != params.PublicKeyLength {
		return nil, fieldError(field, ErrInvalidLength, "want %d bytes, got %d", params.PublicKeyLength, len(b))
	}
	if b[0] != pubKeyEven && b[0] != pubKeyOdd {
		return nil, fieldError(field, ErrInvalidPrefix, "got 0x%02x, want 0x02 or 0x03", b[0])
	}
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fieldError(field, ErrInvalidPoint, "%v", err)
	}
	var p secp256k1.JacobianPoint
	pub.AsJacobian(&p)
	return &p, nil
}

func isInfinity(p *secp256k1.JacobianPoint) bool {
	return (p.X.IsZero() && p.Y.IsZero()) || p.Z.IsZero()
}

// encodePoint converts a Jacobian point to a compressed public key,
// rejecting the point at infinity
func encodePoint(field string, p *secp256k1.JacobianPoint) (PublicKey, error) {
	var k PublicKey
	if isInfinity(p) {
		return k, fieldError(field, ErrInvalidPoint, "point at infinity")
	}
	p.ToAffine()
	copy(k[:], secp256k1.NewPublicKey(&p.X, &p.Y).SerializeCompressed())
	return k, nil
}

// DerivePublicKey computes priv·G in compressed form
func DerivePublicKey(priv PrivateKey) (PublicKey, error) {
	s, err := priv.scalar()
	if err != nil {
		return PublicKey{}, err
	}
	var p secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(s, &p)
	return encodePoint("publicKey", &p)
}

// GeneratePrivateKey draws a private key from random, redrawing when the
// candidate is zero or not below the group order. A failing or degenerate
// source yields ErrInsecureRandomness; there is no fallback source.
func GeneratePrivateKey(random io.Reader) (PrivateKey, error) {
	var k PrivateKey
	for i := 0; i < params.MaxKeyDraws; i++ {
		if _, err := io.ReadFull(random, k[:]); err != nil {
			return PrivateKey{}, fmt.Errorf("%w: %v", ErrInsecureRandomness, err)
		}
		if _, err := k.scalar(); err == nil {
			return k, nil
		}
	}
	return PrivateKey{}, fmt.Errorf("%w: no valid scalar after %d draws", ErrInsecureRandomness, params.MaxKeyDraws)
}

// GenerateKeyPair draws a fresh key pair from random
func GenerateKeyPair(random io.Reader) (*KeyPair, error) {
	priv, err := GeneratePrivateKey(random)
	if err != nil {
		return nil, err
	}
	pub, err := DerivePublicKey(priv)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: priv, Public: pub}, nil
}

// KeyPairFromPrivate rebuilds a key pair from its private half
func KeyPairFromPrivate(priv PrivateKey) (*KeyPair, error) {
	pub, err := DerivePublicKey(priv)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: priv, Public: pub}, nil
}

// defaultRandom is the operating system CSPRNG
var defaultRandom io.Reader = rand.Reader
