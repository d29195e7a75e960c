// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

package stealth

import (
	"bytes"
	stdsha256 "crypto/sha256"
	"errors"
	"io"
	mrand "math/rand"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
	"pgregory.net/rapid"

	"github.com/AmaanSayyad/PrivatePay/codec"
	"github.com/AmaanSayyad/PrivatePay/params"
)

const (
	hexG        = "0x0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	hexNegG     = "0x0379be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	hex2G       = "0x02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5"
	hex3G       = "0x02f9308a019258c31049344f85f89d5229b531c845836f99b08601f113bce036f9"
	hex6G       = "0x03fff97bd5755eeea420453a14355235d382f6472f8568a18b2f057a1460297556"
	hexOrderN   = "0xfffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141"
	hexNotOnXff = "0x02ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	hexNotOnX5  = "0x020000000000000000000000000000000000000000000000000000000000000005"

	// Stealth output for spend 1, viewing 2, ephemeral 3 and k = 0
	goldenStealthPub     = "0x0382c02fe1e3e8ede6b92b209b4a35c28e01f5a0d17c23cf163c235d7107eb3fc7"
	goldenStealthPriv    = "0x420d36ef2e8bcaebeb9b86b47db2bd9803c8f8e0a3de1a4e5beb2d380fc0b146"
	goldenStealthAddress = "0x00000000000000000000000000000000689b02505e194aadb79b35cc2647806c"
)

// scalarKey returns the private key with integer value n
func scalarKey(n byte) PrivateKey {
	var k PrivateKey
	k[len(k)-1] = n
	return k
}

func mustPub(t *testing.T, s string) PublicKey {
	t.Helper()
	k, err := HexToPublicKey(s)
	if err != nil {
		t.Fatalf("Failed to parse public key %s: %v", s, err)
	}
	return k
}

func TestGoldenVector(t *testing.T) {
	spend, viewing, ephemeral := scalarKey(1), scalarKey(2), scalarKey(3)

	spendPub, err := DerivePublicKey(spend)
	if err != nil {
		t.Fatalf("Failed to derive spend public key: %v", err)
	}
	if spendPub.Hex() != hexG {
		t.Fatalf("spend public key mismatch: have %s, want %s", spendPub.Hex(), hexG)
	}
	viewingPub, _ := DerivePublicKey(viewing)
	if viewingPub.Hex() != hex2G {
		t.Fatalf("viewing public key mismatch: have %s, want %s", viewingPub.Hex(), hex2G)
	}

	payment, err := GenerateStealthAddress(spendPub, viewingPub, ephemeral, 0, params.AptosAddressFormat)
	if err != nil {
		t.Fatalf("Failed to generate stealth address: %v", err)
	}
	if payment.EphemeralPubKey.Hex() != hex3G {
		t.Errorf("ephemeral public key mismatch: have %s, want %s", payment.EphemeralPubKey.Hex(), hex3G)
	}
	if payment.ViewHint != 0x03 {
		t.Errorf("view hint mismatch: have %#x, want 0x03", payment.ViewHint)
	}
	if payment.Index != 0 {
		t.Errorf("index mismatch: have %d, want 0", payment.Index)
	}

	secret, err := ComputeSharedSecret(ephemeral, viewingPub)
	if err != nil {
		t.Fatalf("Failed to compute shared secret: %v", err)
	}
	if secret.Hex() != hex6G {
		t.Fatalf("shared secret mismatch: have %s, want %s", secret.Hex(), hex6G)
	}

	if payment.StealthPubKey.Hex() != goldenStealthPub {
		t.Errorf("stealth public key mismatch: have %s, want %s", payment.StealthPubKey.Hex(), goldenStealthPub)
	}
	if payment.StealthAddress != goldenStealthAddress {
		t.Errorf("stealth address mismatch: have %s, want %s", payment.StealthAddress, goldenStealthAddress)
	}

	priv, err := DeriveStealthPrivateKey(spend, secret, 0)
	if err != nil {
		t.Fatalf("Failed to derive stealth private key: %v", err)
	}
	if priv.Hex() != goldenStealthPriv {
		t.Errorf("stealth private key mismatch: have %s, want %s", priv.Hex(), goldenStealthPriv)
	}
	ecdsaKey, err := crypto.ToECDSA(priv[:])
	if err != nil {
		t.Fatalf("Stealth private key rejected: %v", err)
	}
	if !bytes.Equal(crypto.CompressPubkey(&ecdsaKey.PublicKey), payment.StealthPubKey[:]) {
		t.Error("stealth private key does not control the stealth public key")
	}
}

func TestAddressFormat(t *testing.T) {
	random := mrand.New(mrand.NewSource(7))
	for i := 0; i < 32; i++ {
		kp, err := GenerateKeyPair(random)
		if err != nil {
			t.Fatalf("Failed to generate key pair: %v", err)
		}
		addr, err := DeriveStealthAddress(kp.Public, params.AptosAddressFormat)
		if err != nil {
			t.Fatalf("Failed to derive address: %v", err)
		}
		if len(addr) != 66 || !strings.HasPrefix(addr, "0x") {
			t.Fatalf("malformed address %q", addr)
		}
		if addr[2:34] != strings.Repeat("0", 32) {
			t.Fatalf("address %q is not left-padded", addr)
		}
		if addr != strings.ToLower(addr) {
			t.Fatalf("address %q is not lower case", addr)
		}
		hash := sha3.Sum256(kp.Public[:])
		if addr[34:] != codec.Strip0x(codec.BytesToHex(hash[:16])) {
			t.Fatalf("address %q does not carry the key hash", addr)
		}

		full, err := DeriveStealthAddress(kp.Public, params.FullAddressFormat)
		if err != nil {
			t.Fatalf("Failed to derive full address: %v", err)
		}
		if full != codec.BytesToHex(hash[:]) {
			t.Fatalf("full address mismatch: have %s", full)
		}
	}

	if _, err := DeriveStealthAddress(mustPub(t, hexG), params.AddressFormat{Width: 40, Size: 32}); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength for oversized width, got %v", err)
	}
}

func TestNormalizeAddress(t *testing.T) {
	format := params.AptosAddressFormat
	canonical := "0x" + strings.Repeat("0", 32) + "0123456789abcdef0123456789abcdef"

	for _, in := range []string{
		canonical,
		strings.ToUpper(canonical[2:]),
		"0X" + canonical[2:],
		"0x123456789abcdef0123456789abcdef",
	} {
		got, err := NormalizeAddress(in, format)
		if err != nil {
			t.Fatalf("NormalizeAddress(%q) failed: %v", in, err)
		}
		if got != canonical {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", in, got, canonical)
		}
	}

	if _, err := NormalizeAddress("0xzz", format); !errors.Is(err, ErrInvalidHexDigit) {
		t.Errorf("expected ErrInvalidHexDigit, got %v", err)
	}
	if _, err := NormalizeAddress("0x"+strings.Repeat("ab", 33), format); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}
}

func TestValidatePublicKey(t *testing.T) {
	g, _ := codec.HexToBytes(hexG)

	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"generator", g, nil},
		{"negated generator", append([]byte{0x03}, g[1:]...), nil},
		{"32 bytes", g[:32], ErrInvalidLength},
		{"empty", nil, ErrInvalidLength},
		{"uncompressed prefix", append([]byte{0x04}, g[1:]...), ErrInvalidPrefix},
		{"zero prefix", append([]byte{0x00}, g[1:]...), ErrInvalidPrefix},
		{"x outside field", mustBytes(t, hexNotOnXff), ErrInvalidPoint},
		{"x not on curve", mustBytes(t, hexNotOnX5), ErrInvalidPoint},
		{"x not on curve, odd y", append([]byte{0x03}, mustBytes(t, hexNotOnX5)[1:]...), ErrInvalidPoint},
	}
	for _, tt := range tests {
		err := ValidatePublicKey(tt.input)
		if tt.want == nil {
			if err != nil {
				t.Errorf("%s: unexpected error: %v", tt.name, err)
			}
			continue
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: have %v, want %v", tt.name, err, tt.want)
		}
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != "publicKey" {
			t.Errorf("%s: expected ValidationError on publicKey, got %v", tt.name, err)
		}
	}

	if err := ValidatePublicKeyHex("0x02abc"); !errors.Is(err, ErrOddLength) {
		t.Errorf("expected ErrOddLength, got %v", err)
	}
	if err := ValidatePublicKeyHex("0x02zz"); !errors.Is(err, ErrInvalidHexDigit) {
		t.Errorf("expected ErrInvalidHexDigit, got %v", err)
	}
	if err := ValidatePublicKeyHex(strings.ToUpper(hexG[2:])); err != nil {
		t.Errorf("upper case unprefixed key rejected: %v", err)
	}
}

func mustBytes(t *testing.T, s string) []byte {
	t.Helper()
	b, err := codec.HexToBytes(s)
	if err != nil {
		t.Fatalf("Failed to decode %s: %v", s, err)
	}
	return b
}

func TestPrivateKeyRange(t *testing.T) {
	if _, err := PrivateKeyFromBytes(make([]byte, 32)); !errors.Is(err, ErrInvalidScalar) {
		t.Errorf("zero key: expected ErrInvalidScalar, got %v", err)
	}
	if _, err := HexToPrivateKey(hexOrderN); !errors.Is(err, ErrInvalidScalar) {
		t.Errorf("key equal to n: expected ErrInvalidScalar, got %v", err)
	}
	if _, err := PrivateKeyFromBytes(make([]byte, 31)); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("short key: expected ErrInvalidLength, got %v", err)
	}

	nMinusOne := mustBytes(t, hexOrderN)
	nMinusOne[31]--
	k, err := PrivateKeyFromBytes(nMinusOne)
	if err != nil {
		t.Fatalf("n-1 rejected: %v", err)
	}
	pub, err := DerivePublicKey(k)
	if err != nil {
		t.Fatalf("Failed to derive public key for n-1: %v", err)
	}
	if pub.Hex() != hexNegG {
		t.Errorf("(n-1)G mismatch: have %s, want %s", pub.Hex(), hexNegG)
	}

	k.Zero()
	if k != (PrivateKey{}) {
		t.Error("Zero did not wipe the key")
	}
}

func TestSharedSecretSymmetry(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := drawKey(t, "a")
		b := drawKey(t, "b")
		pubA, err := DerivePublicKey(a)
		if err != nil {
			t.Fatalf("derive A: %v", err)
		}
		pubB, err := DerivePublicKey(b)
		if err != nil {
			t.Fatalf("derive B: %v", err)
		}
		ab, err := ComputeSharedSecret(a, pubB)
		if err != nil {
			t.Fatalf("ecdh(a, B): %v", err)
		}
		ba, err := ComputeSharedSecret(b, pubA)
		if err != nil {
			t.Fatalf("ecdh(b, A): %v", err)
		}
		if ab != ba {
			t.Fatalf("shared secrets differ: %s != %s", ab.Hex(), ba.Hex())
		}
		if ValidatePublicKey(ab[:]) != nil {
			t.Fatalf("shared secret is not a compressed point")
		}
	})
}

// drawKey draws a valid private key. The top bit is cleared so the value is
// below the group order, and the low bit is set so it is never zero.
func drawKey(t *rapid.T, label string) PrivateKey {
	b := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, label)
	b[0] &= 0x7f
	b[31] |= 0x01
	var k PrivateKey
	copy(k[:], b)
	return k
}

func TestStealthKeyCorrespondence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		spend := drawKey(t, "spend")
		viewing := drawKey(t, "viewing")
		ephemeral := drawKey(t, "ephemeral")
		index := rapid.Uint32().Draw(t, "k")

		meta, err := MetaKeysFromPrivate(spend, viewing)
		if err != nil {
			t.Fatalf("meta keys: %v", err)
		}
		payment, err := GenerateStealthAddress(meta.Spend.Public, meta.Viewing.Public, ephemeral, index, params.AptosAddressFormat)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}

		// Payee side
		secret, err := ComputeSharedSecret(viewing, payment.EphemeralPubKey)
		if err != nil {
			t.Fatalf("payee ecdh: %v", err)
		}
		if DeriveViewHint(secret) != payment.ViewHint {
			t.Fatalf("payee view hint differs")
		}
		priv, err := DeriveStealthPrivateKey(spend, secret, index)
		if err != nil {
			t.Fatalf("stealth private key: %v", err)
		}
		pub, err := DerivePublicKey(priv)
		if err != nil {
			t.Fatalf("stealth public key: %v", err)
		}
		if pub != payment.StealthPubKey {
			t.Fatalf("stealth private key does not match: %s != %s", pub.Hex(), payment.StealthPubKey.Hex())
		}
		addr, err := DeriveStealthAddress(pub, params.AptosAddressFormat)
		if err != nil {
			t.Fatalf("address: %v", err)
		}
		if addr != payment.StealthAddress {
			t.Fatalf("address mismatch: %s != %s", addr, payment.StealthAddress)
		}
	})
}

func TestDeterminism(t *testing.T) {
	spendPub := mustPub(t, hexG)
	viewingPub := mustPub(t, hex2G)

	first, err := GenerateStealthAddress(spendPub, viewingPub, scalarKey(9), 5, params.AptosAddressFormat)
	if err != nil {
		t.Fatalf("Failed to generate stealth address: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := GenerateStealthAddress(spendPub, viewingPub, scalarKey(9), 5, params.AptosAddressFormat)
		if err != nil {
			t.Fatalf("Failed to generate stealth address: %v", err)
		}
		if *again != *first {
			t.Fatalf("repeated derivation differs: %+v != %+v", again, first)
		}
	}

	other, err := GenerateStealthAddress(spendPub, viewingPub, scalarKey(9), 6, params.AptosAddressFormat)
	if err != nil {
		t.Fatalf("Failed to generate stealth address: %v", err)
	}
	if other.StealthAddress == first.StealthAddress {
		t.Fatal("different indexes gave the same address")
	}
	if other.EphemeralPubKey != first.EphemeralPubKey || other.ViewHint != first.ViewHint {
		t.Fatal("index changed the ephemeral key or view hint")
	}
}

func TestTweakIndexEncoding(t *testing.T) {
	secret, err := HexToSharedSecret(hex6G)
	if err != nil {
		t.Fatalf("Failed to parse secret: %v", err)
	}
	msg := append(mustBytes(t, hex6G), 0x01, 0x02, 0x03, 0x04)
	want := stdsha256.Sum256(msg)
	if got := DeriveTweak(secret, 0x01020304); got != Tweak(want) {
		t.Fatalf("tweak mismatch: have %s, want %x", got.Hex(), want)
	}
}

func TestStealthPointAtInfinity(t *testing.T) {
	var one Tweak
	one[31] = 1

	_, err := DeriveStealthPublicKey(mustPub(t, hexNegG), one)
	if !errors.Is(err, ErrInvalidPoint) {
		t.Fatalf("expected ErrInvalidPoint for -G + G, got %v", err)
	}

	var zero Tweak
	if _, err := DeriveStealthPublicKey(mustPub(t, hexG), zero); !errors.Is(err, ErrInvalidPoint) {
		t.Fatalf("expected ErrInvalidPoint for zero tweak, got %v", err)
	}

	twoG, err := DeriveStealthPublicKey(mustPub(t, hexG), one)
	if err != nil {
		t.Fatalf("G + G failed: %v", err)
	}
	if twoG.Hex() != hex2G {
		t.Fatalf("G + G mismatch: have %s, want %s", twoG.Hex(), hex2G)
	}
}

func TestViewHintRate(t *testing.T) {
	random := mrand.New(mrand.NewSource(42))

	const trials = 2000
	var collisions int
	for i := 0; i < trials; i++ {
		a, err := GenerateKeyPair(random)
		if err != nil {
			t.Fatalf("Failed to generate key pair: %v", err)
		}
		b, err := GenerateKeyPair(random)
		if err != nil {
			t.Fatalf("Failed to generate key pair: %v", err)
		}
		c, err := GenerateKeyPair(random)
		if err != nil {
			t.Fatalf("Failed to generate key pair: %v", err)
		}
		s1, _ := ComputeSharedSecret(a.Private, b.Public)
		s2, _ := ComputeSharedSecret(a.Private, c.Public)

		h1, h2 := DeriveViewHint(s1), DeriveViewHint(s2)
		if h1 != 0x02 && h1 != 0x03 {
			t.Fatalf("unexpected view hint %#x", h1)
		}
		if h1 == h2 {
			collisions++
		}
	}
	rate := float64(collisions) / trials
	if rate < 0.4 || rate > 0.6 {
		t.Fatalf("view hint collision rate %.3f, expected about 0.5", rate)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy source offline") }

type constReader byte

func (r constReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}

func TestGeneratePrivateKeyRandomness(t *testing.T) {
	for name, r := range map[string]io.Reader{
		"failing":   failingReader{},
		"all zero":  constReader(0x00),
		"all 0xff":  constReader(0xff),
		"exhausted": bytes.NewReader(make([]byte, 8)),
	} {
		if _, err := GeneratePrivateKey(r); !errors.Is(err, ErrInsecureRandomness) {
			t.Errorf("%s: expected ErrInsecureRandomness, got %v", name, err)
		}
	}

	// One out-of-range draw followed by a valid one
	five := scalarKey(5)
	stream := append(bytes.Repeat([]byte{0xff}, 32), five[:]...)
	k, err := GeneratePrivateKey(bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("redraw failed: %v", err)
	}
	if k != scalarKey(5) {
		t.Fatalf("unexpected key after redraw: %s", k.Hex())
	}

	if _, err := NewEngine(WithRandom(nil)); !errors.Is(err, ErrInsecureRandomness) {
		t.Fatalf("expected ErrInsecureRandomness for nil source, got %v", err)
	}
	engine, err := NewEngine(WithRandom(failingReader{}))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	if _, err := engine.NewPayment(MetaAddress{SpendPubKey: mustPub(t, hexG), ViewingPubKey: mustPub(t, hex2G)}, 0); !errors.Is(err, ErrInsecureRandomness) {
		t.Fatalf("expected ErrInsecureRandomness from payment, got %v", err)
	}
}

func TestGenerateStealthAddressErrors(t *testing.T) {
	g := mustPub(t, hexG)
	var badPrefix PublicKey
	copy(badPrefix[:], g[:])
	badPrefix[0] = 0x04

	tests := []struct {
		name      string
		spend     PublicKey
		viewing   PublicKey
		ephemeral PrivateKey
		field     string
		want      error
	}{
		{"spend prefix", badPrefix, g, scalarKey(3), "spendPubKey", ErrInvalidPrefix},
		{"viewing prefix", g, badPrefix, scalarKey(3), "viewingPubKey", ErrInvalidPrefix},
		{"zero ephemeral", g, g, PrivateKey{}, "ephemeralPrivKey", ErrInvalidScalar},
		// the first failing step wins: ephemeral key, then viewing key, then spend key
		{"all invalid", badPrefix, badPrefix, PrivateKey{}, "ephemeralPrivKey", ErrInvalidScalar},
		{"viewing before spend", badPrefix, badPrefix, scalarKey(3), "viewingPubKey", ErrInvalidPrefix},
	}
	for _, tt := range tests {
		_, err := GenerateStealthAddress(tt.spend, tt.viewing, tt.ephemeral, 0, params.AptosAddressFormat)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: have %v, want %v", tt.name, err, tt.want)
			continue
		}
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != tt.field {
			t.Errorf("%s: expected field %s, got %v", tt.name, tt.field, err)
		}
	}

	// An invalid format surfaces from the last step
	_, err := GenerateStealthAddress(g, g, scalarKey(3), 0, params.AddressFormat{Width: 0, Size: 32})
	if !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength for bad format, got %v", err)
	}
}

func TestMetaAddress(t *testing.T) {
	engine, err := NewEngine(WithRandom(mrand.New(mrand.NewSource(3))))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	keys, err := engine.GenerateMetaKeys()
	if err != nil {
		t.Fatalf("Failed to generate meta keys: %v", err)
	}
	meta := keys.MetaAddress()
	if err := meta.Validate(); err != nil {
		t.Fatalf("generated meta address invalid: %v", err)
	}

	str := meta.String()
	if len(str) != 66+1+66 || str[66] != ':' {
		t.Fatalf("unexpected meta address form %q", str)
	}
	parsed, err := ParseMetaAddress(str)
	if err != nil {
		t.Fatalf("Failed to parse meta address: %v", err)
	}
	if parsed != meta {
		t.Fatalf("parsed meta address differs: %+v != %+v", parsed, meta)
	}

	prefixed := meta.SpendPubKey.Hex() + ":" + meta.ViewingPubKey.Hex()
	if parsed, err := ParseMetaAddress(prefixed); err != nil || parsed != meta {
		t.Fatalf("0x-prefixed meta address not accepted: %v", err)
	}

	if _, err := ParseMetaAddress(codec.Strip0x(hexG)); !errors.Is(err, ErrInvalidMetaAddress) {
		t.Errorf("expected ErrInvalidMetaAddress, got %v", err)
	}
	_, err = ParseMetaAddress(codec.Strip0x(hexG) + ":04" + codec.Strip0x(hexG)[2:])
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "viewingPubKey" || !errors.Is(err, ErrInvalidPrefix) {
		t.Errorf("expected viewingPubKey prefix error, got %v", err)
	}

	if _, err := NewMetaAddress(meta.SpendPubKey[:], meta.ViewingPubKey[:]); err != nil {
		t.Errorf("NewMetaAddress rejected valid keys: %v", err)
	}
	if _, err := NewMetaAddress(meta.SpendPubKey[:32], meta.ViewingPubKey[:]); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}
}

func TestEngineNewPayment(t *testing.T) {
	engine, err := NewEngine(WithRandom(mrand.New(mrand.NewSource(11))))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	if engine.AddressFormat() != params.AptosAddressFormat {
		t.Fatalf("unexpected default format %v", engine.AddressFormat())
	}
	keys, err := engine.GenerateMetaKeys()
	if err != nil {
		t.Fatalf("Failed to generate meta keys: %v", err)
	}

	seen := make(map[string]bool)
	for k := uint32(0); k < 8; k++ {
		payment, err := engine.NewPayment(keys.MetaAddress(), k)
		if err != nil {
			t.Fatalf("Failed to create payment: %v", err)
		}
		if seen[payment.StealthAddress] {
			t.Fatalf("stealth address reused: %s", payment.StealthAddress)
		}
		seen[payment.StealthAddress] = true

		secret, err := ComputeSharedSecret(keys.Viewing.Private, payment.EphemeralPubKey)
		if err != nil {
			t.Fatalf("payee ecdh: %v", err)
		}
		priv, err := DeriveStealthPrivateKey(keys.Spend.Private, secret, k)
		if err != nil {
			t.Fatalf("Failed to derive stealth private key: %v", err)
		}
		if pub, _ := DerivePublicKey(priv); pub != payment.StealthPubKey {
			t.Fatal("payee cannot spend from the stealth address")
		}
	}

	full, err := NewEngine(WithAddressFormat(params.FullAddressFormat))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	payment, err := full.NewPayment(keys.MetaAddress(), 0)
	if err != nil {
		t.Fatalf("Failed to create payment: %v", err)
	}
	if strings.HasPrefix(payment.StealthAddress, "0x00000000000000000000000000000000") {
		t.Fatalf("full-width address unexpectedly padded: %s", payment.StealthAddress)
	}
}

func TestEngineEphemeralKeyPair(t *testing.T) {
	seeded := func() *Engine {
		engine, err := NewEngine(WithRandom(mrand.New(mrand.NewSource(12))))
		if err != nil {
			t.Fatalf("Failed to create engine: %v", err)
		}
		return engine
	}
	meta := MetaAddress{SpendPubKey: mustPub(t, hexG), ViewingPubKey: mustPub(t, hex2G)}

	kp, err := seeded().GenerateEphemeralKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate ephemeral key pair: %v", err)
	}
	if pub, _ := DerivePublicKey(kp.Private); pub != kp.Public {
		t.Fatal("ephemeral public key does not match its private key")
	}

	// NewPayment draws the same ephemeral key from the same random stream
	payment, err := seeded().NewPayment(meta, 4)
	if err != nil {
		t.Fatalf("Failed to create payment: %v", err)
	}
	if payment.EphemeralPubKey != kp.Public {
		t.Fatalf("ephemeral key mismatch: have %s, want %s", payment.EphemeralPubKey.Hex(), kp.Public.Hex())
	}
	want, err := GenerateStealthAddress(meta.SpendPubKey, meta.ViewingPubKey, kp.Private, 4, params.AptosAddressFormat)
	if err != nil {
		t.Fatalf("Failed to generate stealth address: %v", err)
	}
	if payment.StealthAddress != want.StealthAddress {
		t.Fatalf("stealth address mismatch: have %s, want %s", payment.StealthAddress, want.StealthAddress)
	}
}

func TestPaymentJSON(t *testing.T) {
	payment, err := GenerateStealthAddress(mustPub(t, hexG), mustPub(t, hex2G), scalarKey(3), 0, params.AptosAddressFormat)
	if err != nil {
		t.Fatalf("Failed to generate stealth address: %v", err)
	}
	data, err := payment.MarshalJSON()
	if err != nil {
		t.Fatalf("Failed to encode payment: %v", err)
	}
	for _, field := range []string{`"viewHint":"0x03"`, `"k":0`, `"ephemeralPubKey":"` + hex3G + `"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("encoded payment %s lacks %s", data, field)
		}
	}
	var decoded Payment
	if err := decoded.UnmarshalJSON(data); err != nil {
		t.Fatalf("Failed to decode payment: %v", err)
	}
	if decoded != *payment {
		t.Fatalf("decoded payment differs: %+v != %+v", decoded, *payment)
	}
}
