// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

package stealth

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/AmaanSayyad/PrivatePay/codec"
	"github.com/AmaanSayyad/PrivatePay/params"
)

// SharedSecret is the compressed ECDH point shared by payer and payee
type SharedSecret [params.SharedSecretLength]byte

// ComputeSharedSecret multiplies pub by priv and returns the compressed
// result. ComputeSharedSecret(a, B) == ComputeSharedSecret(b, A) for any two
// key pairs.
func ComputeSharedSecret(priv PrivateKey, pub PublicKey) (SharedSecret, error) {
	var secret SharedSecret

	s, err := priv.scalar()
	if err != nil {
		return secret, err
	}
	p, err := pub.point("publicKey")
	if err != nil {
		return secret, err
	}

	var shared secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(s, p, &shared)

	enc, err := encodePoint("sharedSecret", &shared)
	if err != nil {
		return secret, err
	}
	return SharedSecret(enc), nil
}

// HexToSharedSecret parses a 66 hex character shared secret
func HexToSharedSecret(s string) (SharedSecret, error) {
	b, err := codec.HexToBytes(s)
	if err != nil {
		return SharedSecret{}, &ValidationError{Field: "sharedSecret", Err: err}
	}
	if _, err := parsePoint("sharedSecret", b); err != nil {
		return SharedSecret{}, err
	}
	return SharedSecret(b), nil
}

// Hex returns the 0x-prefixed hex encoding of the secret
func (s SharedSecret) Hex() string {
	return codec.BytesToHex(s[:])
}
