// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

// Package keystore stores a payee's stealth spend and viewing keys in a
// password-encrypted JSON file (scrypt key derivation, AES-128-CTR, Keccak256
// MAC), the same construction as Ethereum version 3 key files.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"

	"github.com/AmaanSayyad/PrivatePay/codec"
	"github.com/AmaanSayyad/PrivatePay/params"
	"github.com/AmaanSayyad/PrivatePay/stealth"
)

const (
	// StandardScryptN is the N parameter of Scrypt encryption algorithm, using 256MB
	// memory and taking approximately 1s CPU time on a modern processor.
	StandardScryptN = 1 << 18

	// StandardScryptP is the P parameter of Scrypt encryption algorithm, using 256MB
	// memory and taking approximately 1s CPU time on a modern processor.
	StandardScryptP = 1

	// LightScryptN is the N parameter of Scrypt encryption algorithm, using 4MB
	// memory and taking approximately 100ms CPU time on a modern processor.
	LightScryptN = 1 << 12

	// LightScryptP is the P parameter of Scrypt encryption algorithm, using 4MB
	// memory and taking approximately 100ms CPU time on a modern processor.
	LightScryptP = 6

	scryptR     = 8
	scryptDKLen = 32

	keyFileVersion = 3
	cipherName     = "aes-128-ctr"
	kdfName        = "scrypt"
)

var (
	ErrDecrypt             = errors.New("could not decrypt key with given password")
	ErrUnsupportedKeyFile  = errors.New("unsupported key file")
	ErrMetaAddressMismatch = errors.New("decrypted keys do not match the stored meta address")
)

// Key is a payee's stealth key material with a stable file identifier
type Key struct {
	ID   uuid.UUID
	Keys *stealth.MetaKeys
}

// NewKey wraps keys under a fresh random identifier
func NewKey(keys *stealth.MetaKeys) (*Key, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("could not create key id: %w", err)
	}
	return &Key{ID: id, Keys: keys}, nil
}

// MetaAddress returns the meta address the key file is stored under
func (k *Key) MetaAddress() stealth.MetaAddress {
	return k.Keys.MetaAddress()
}

type encryptedKeyJSON struct {
	MetaAddress string     `json:"metaAddress"`
	ID          string     `json:"id"`
	Version     int        `json:"version"`
	Crypto      cryptoJSON `json:"crypto"`
}

type cryptoJSON struct {
	Cipher       string           `json:"cipher"`
	CipherText   string           `json:"ciphertext"`
	CipherParams cipherparamsJSON `json:"cipherparams"`
	KDF          string           `json:"kdf"`
	KDFParams    scryptParamsJSON `json:"kdfparams"`
	MAC          string           `json:"mac"`
}

type cipherparamsJSON struct {
	IV string `json:"iv"`
}

type scryptParamsJSON struct {
	N     int    `json:"n"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	DKLen int    `json:"dklen"`
	Salt  string `json:"salt"`
}

// EncryptKey encrypts the spend and viewing private keys with password and
// returns the JSON key file. Use StandardScryptN/P, or LightScryptN/P when
// the file only needs to withstand casual access.
func EncryptKey(key *Key, password string, scryptN, scryptP int) ([]byte, error) {
	salt, err := randomBytes(32)
	if err != nil {
		return nil, err
	}
	derivedKey, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptDKLen)
	if err != nil {
		return nil, err
	}
	iv, err := randomBytes(aes.BlockSize)
	if err != nil {
		return nil, err
	}

	plainText := make([]byte, 0, 2*params.PrivateKeyLength)
	plainText = append(plainText, key.Keys.Spend.Private[:]...)
	plainText = append(plainText, key.Keys.Viewing.Private[:]...)
	defer zeroBytes(plainText)

	cipherText, err := aesCTRXOR(derivedKey[:16], plainText, iv)
	if err != nil {
		return nil, err
	}
	mac := crypto.Keccak256(derivedKey[16:32], cipherText)

	return json.Marshal(&encryptedKeyJSON{
		MetaAddress: key.MetaAddress().String(),
		ID:          key.ID.String(),
		Version:     keyFileVersion,
		Crypto: cryptoJSON{
			Cipher:       cipherName,
			CipherText:   plainHex(cipherText),
			CipherParams: cipherparamsJSON{IV: plainHex(iv)},
			KDF:          kdfName,
			KDFParams: scryptParamsJSON{
				N:     scryptN,
				R:     scryptR,
				P:     scryptP,
				DKLen: scryptDKLen,
				Salt:  plainHex(salt),
			},
			MAC: plainHex(mac),
		},
	})
}

// DecryptKey decrypts a JSON key file with password
func DecryptKey(keyjson []byte, password string) (*Key, error) {
	var enc encryptedKeyJSON
	if err := json.Unmarshal(keyjson, &enc); err != nil {
		return nil, err
	}
	if enc.Version != keyFileVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedKeyFile, enc.Version)
	}
	if enc.Crypto.Cipher != cipherName {
		return nil, fmt.Errorf("%w: cipher %q", ErrUnsupportedKeyFile, enc.Crypto.Cipher)
	}
	if enc.Crypto.KDF != kdfName {
		return nil, fmt.Errorf("%w: kdf %q", ErrUnsupportedKeyFile, enc.Crypto.KDF)
	}

	kdf := enc.Crypto.KDFParams
	if kdf.DKLen < scryptDKLen {
		return nil, fmt.Errorf("%w: dklen %d", ErrUnsupportedKeyFile, kdf.DKLen)
	}
	salt, err := codec.HexToBytes(kdf.Salt)
	if err != nil {
		return nil, err
	}
	cipherText, err := codec.HexToBytes(enc.Crypto.CipherText)
	if err != nil {
		return nil, err
	}
	mac, err := codec.HexToBytes(enc.Crypto.MAC)
	if err != nil {
		return nil, err
	}
	iv, err := codec.HexToBytes(enc.Crypto.CipherParams.IV)
	if err != nil {
		return nil, err
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv of %d bytes", ErrUnsupportedKeyFile, len(iv))
	}

	derivedKey, err := scrypt.Key([]byte(password), salt, kdf.N, kdf.R, kdf.P, kdf.DKLen)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(mac, crypto.Keccak256(derivedKey[16:32], cipherText)) != 1 {
		return nil, ErrDecrypt
	}

	plainText, err := aesCTRXOR(derivedKey[:16], cipherText, iv)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(plainText)
	if len(plainText) != 2*params.PrivateKeyLength {
		return nil, fmt.Errorf("%w: key material of %d bytes", ErrUnsupportedKeyFile, len(plainText))
	}

	var spend, viewing stealth.PrivateKey
	copy(spend[:], plainText[:params.PrivateKeyLength])
	copy(viewing[:], plainText[params.PrivateKeyLength:])
	keys, err := stealth.MetaKeysFromPrivate(spend, viewing)
	if err != nil {
		return nil, err
	}
	if keys.MetaAddress().String() != enc.MetaAddress {
		return nil, ErrMetaAddressMismatch
	}

	id, err := uuid.Parse(enc.ID)
	if err != nil {
		return nil, err
	}
	return &Key{ID: id, Keys: keys}, nil
}

// plainHex encodes b the way key files carry hex, without a 0x prefix
func plainHex(b []byte) string {
	return codec.Strip0x(codec.BytesToHex(b))
}

func aesCTRXOR(key, input, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	stream := cipher.NewCTR(block, iv)
	output := make([]byte, len(input))
	stream.XORKeyStream(output, input)
	return output, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("%w: %v", stealth.ErrInsecureRandomness, err)
	}
	return b, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
