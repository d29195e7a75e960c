// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

package stealth

import (
	"errors"
	"strings"

	"github.com/AmaanSayyad/PrivatePay/codec"
	"github.com/AmaanSayyad/PrivatePay/params"
)

// ErrInvalidMetaAddress is returned when a meta address string is malformed
var ErrInvalidMetaAddress = errors.New("invalid stealth meta-address format")

// MetaAddress is the public information a payee shares with payers
type MetaAddress struct {
	// SpendPubKey is the key stealth addresses are tweaked from
	SpendPubKey PublicKey `json:"spendPubKey"`
	// ViewingPubKey is the key payers run ECDH against
	ViewingPubKey PublicKey `json:"viewingPubKey"`
}

// NewMetaAddress validates both keys and builds a meta address
func NewMetaAddress(spendPub, viewingPub []byte) (MetaAddress, error) {
	spend, err := PublicKeyFromBytes(spendPub)
	if err != nil {
		return MetaAddress{}, withField("spendPubKey", err)
	}
	viewing, err := PublicKeyFromBytes(viewingPub)
	if err != nil {
		return MetaAddress{}, withField("viewingPubKey", err)
	}
	return MetaAddress{SpendPubKey: spend, ViewingPubKey: viewing}, nil
}

// Validate checks both keys are valid compressed points
func (m MetaAddress) Validate() error {
	if _, err := m.SpendPubKey.point("spendPubKey"); err != nil {
		return err
	}
	_, err := m.ViewingPubKey.point("viewingPubKey")
	return err
}

// String returns the stored form "<spendPubKey>:<viewingPubKey>" with
// unprefixed hex keys
func (m MetaAddress) String() string {
	return codec.Strip0x(m.SpendPubKey.Hex()) + params.MetaAddressSeparator + codec.Strip0x(m.ViewingPubKey.Hex())
}

// ParseMetaAddress parses the form produced by String. Keys may carry a 0x prefix.
func ParseMetaAddress(s string) (MetaAddress, error) {
	parts := strings.Split(strings.TrimSpace(s), params.MetaAddressSeparator)
	if len(parts) != 2 {
		return MetaAddress{}, ErrInvalidMetaAddress
	}
	spend, err := HexToPublicKey(parts[0])
	if err != nil {
		return MetaAddress{}, withField("spendPubKey", err)
	}
	viewing, err := HexToPublicKey(parts[1])
	if err != nil {
		return MetaAddress{}, withField("viewingPubKey", err)
	}
	return MetaAddress{SpendPubKey: spend, ViewingPubKey: viewing}, nil
}

// MetaKeys holds a payee's spend and viewing key pairs
type MetaKeys struct {
	Spend   KeyPair
	Viewing KeyPair
}

// MetaKeysFromPrivate rebuilds a payee's key pairs from the private keys
func MetaKeysFromPrivate(spendPriv, viewingPriv PrivateKey) (*MetaKeys, error) {
	spend, err := KeyPairFromPrivate(spendPriv)
	if err != nil {
		return nil, withField("spendPrivKey", err)
	}
	viewing, err := KeyPairFromPrivate(viewingPriv)
	if err != nil {
		return nil, withField("viewingPrivKey", err)
	}
	return &MetaKeys{Spend: *spend, Viewing: *viewing}, nil
}

// MetaAddress returns the meta address to publish
func (k *MetaKeys) MetaAddress() MetaAddress {
	return MetaAddress{
		SpendPubKey:   k.Spend.Public,
		ViewingPubKey: k.Viewing.Public,
	}
}
