// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

package stealth

import (
	"encoding/binary"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	sha256 "github.com/minio/sha256-simd"

	"github.com/AmaanSayyad/PrivatePay/codec"
)

// Tweak is the per-payment scalar offset applied to the spend key
type Tweak [32]byte

// DeriveTweak computes SHA-256(secret || uint32be(index)). Different indexes
// give unlinkable stealth addresses for the same shared secret.
func DeriveTweak(secret SharedSecret, index uint32) Tweak {
	var buf [len(secret) + 4]byte
	copy(buf[:], secret[:])
	binary.BigEndian.PutUint32(buf[len(secret):], index)
	return sha256.Sum256(buf[:])
}

// Hex returns the 0x-prefixed hex encoding of the tweak
func (t Tweak) Hex() string {
	return codec.BytesToHex(t[:])
}

// scalar reduces the digest modulo the group order. A zero tweak would leave
// the spend key unchanged and is rejected.
func (t Tweak) scalar() (*secp256k1.ModNScalar, error) {
	var s secp256k1.ModNScalar
	b := [32]byte(t)
	s.SetBytes(&b)
	if s.IsZero() {
		return nil, fieldError("tweak", ErrInvalidPoint, "tweak reduces to zero")
	}
	return &s, nil
}

// DeriveStealthPublicKey returns spendPub + tweak·G
func DeriveStealthPublicKey(spendPub PublicKey, tweak Tweak) (PublicKey, error) {
	spend, err := spendPub.point("spendPubKey")
	if err != nil {
		return PublicKey{}, err
	}
	t, err := tweak.scalar()
	if err != nil {
		return PublicKey{}, err
	}

	var tweakPoint, stealthPoint secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(t, &tweakPoint)
	secp256k1.AddNonConst(spend, &tweakPoint, &stealthPoint)

	return encodePoint("stealthPubKey", &stealthPoint)
}

// DeriveStealthPrivateKey returns (spendPriv + tweak) mod n, the private key
// of DeriveStealthPublicKey(DerivePublicKey(spendPriv), DeriveTweak(secret, index)).
// Only the payee, who holds spendPriv, can compute it.
func DeriveStealthPrivateKey(spendPriv PrivateKey, secret SharedSecret, index uint32) (PrivateKey, error) {
	s, err := spendPriv.scalar()
	if err != nil {
		return PrivateKey{}, withField("spendPrivKey", err)
	}
	t, err := DeriveTweak(secret, index).scalar()
	if err != nil {
		return PrivateKey{}, err
	}

	s.Add(t)
	if s.IsZero() {
		return PrivateKey{}, fieldError("stealthPrivKey", ErrInvalidPoint, "stealth key is the point at infinity")
	}
	return PrivateKey(s.Bytes()), nil
}

// DeriveViewHint returns the first byte of the shared secret, which is also
// the byte announced on chain by existing payers. Payees use it to skip
// announcements cheaply. That byte is the compression prefix, so unrelated
// secrets collide about half the time and a match must always be confirmed
// by full address recomputation.
func DeriveViewHint(secret SharedSecret) byte {
	return secret[0]
}
