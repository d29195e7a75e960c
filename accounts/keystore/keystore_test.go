// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

package keystore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AmaanSayyad/PrivatePay/stealth"
)

func testKey(t *testing.T) *Key {
	t.Helper()
	engine, err := stealth.NewEngine()
	require.NoError(t, err)
	keys, err := engine.GenerateMetaKeys()
	require.NoError(t, err)
	key, err := NewKey(keys)
	require.NoError(t, err)
	return key
}

func TestKeyEncryptDecrypt(t *testing.T) {
	key := testKey(t)

	keyjson, err := EncryptKey(key, "correct horse", LightScryptN, LightScryptP)
	require.NoError(t, err)

	var enc encryptedKeyJSON
	require.NoError(t, json.Unmarshal(keyjson, &enc))
	require.Equal(t, key.MetaAddress().String(), enc.MetaAddress)
	require.Equal(t, keyFileVersion, enc.Version)
	require.NotContains(t, string(keyjson), key.Keys.Spend.Private.Hex()[2:])
	require.NotContains(t, string(keyjson), key.Keys.Viewing.Private.Hex()[2:])

	decrypted, err := DecryptKey(keyjson, "correct horse")
	require.NoError(t, err)
	require.Equal(t, key.ID, decrypted.ID)
	require.Equal(t, *key.Keys, *decrypted.Keys)

	_, err = DecryptKey(keyjson, "wrong horse")
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptRejectsTampering(t *testing.T) {
	key := testKey(t)
	keyjson, err := EncryptKey(key, "pw", LightScryptN, LightScryptP)
	require.NoError(t, err)

	tamper := func(f func(*encryptedKeyJSON)) []byte {
		var enc encryptedKeyJSON
		require.NoError(t, json.Unmarshal(keyjson, &enc))
		f(&enc)
		out, err := json.Marshal(&enc)
		require.NoError(t, err)
		return out
	}

	_, err = DecryptKey(tamper(func(e *encryptedKeyJSON) { e.Version = 1 }), "pw")
	require.ErrorIs(t, err, ErrUnsupportedKeyFile)

	_, err = DecryptKey(tamper(func(e *encryptedKeyJSON) { e.Crypto.Cipher = "aes-256-gcm" }), "pw")
	require.ErrorIs(t, err, ErrUnsupportedKeyFile)

	_, err = DecryptKey(tamper(func(e *encryptedKeyJSON) { e.Crypto.KDF = "pbkdf2" }), "pw")
	require.ErrorIs(t, err, ErrUnsupportedKeyFile)

	for _, iv := range []string{"", "00", "000102030405060708090a0b0c0d0e0f10"} {
		_, err = DecryptKey(tamper(func(e *encryptedKeyJSON) { e.Crypto.CipherParams.IV = iv }), "pw")
		require.ErrorIs(t, err, ErrUnsupportedKeyFile, "iv %q", iv)
	}

	_, err = DecryptKey(tamper(func(e *encryptedKeyJSON) {
		b := []byte(e.Crypto.CipherText)
		if b[0] == '0' {
			b[0] = '1'
		} else {
			b[0] = '0'
		}
		e.Crypto.CipherText = string(b)
	}), "pw")
	require.ErrorIs(t, err, ErrDecrypt)

	other := testKey(t)
	_, err = DecryptKey(tamper(func(e *encryptedKeyJSON) { e.MetaAddress = other.MetaAddress().String() }), "pw")
	require.ErrorIs(t, err, ErrMetaAddressMismatch)
}

func TestStoreLoadKey(t *testing.T) {
	key := testKey(t)
	path := filepath.Join(t.TempDir(), "keys", "payee.json")

	require.NoError(t, StoreKey(path, key, "pw", LightScryptN, LightScryptP))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadKey(path, "pw")
	require.NoError(t, err)
	require.Equal(t, key.MetaAddress(), loaded.MetaAddress())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = LoadKey(filepath.Join(t.TempDir(), "missing.json"), "pw")
	require.ErrorIs(t, err, os.ErrNotExist)
}
