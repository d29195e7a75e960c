// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

package keystore

import (
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
)

// StoreKey encrypts key and writes it to path, replacing any existing file
// atomically
func StoreKey(path string, key *Key, password string, scryptN, scryptP int) error {
	keyjson, err := EncryptKey(key, password, scryptN, scryptP)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err != nil {
		return err
	}
	if _, err := f.Write(keyjson); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	if err := os.Rename(f.Name(), path); err != nil {
		os.Remove(f.Name())
		return err
	}
	log.Info("Stored stealth key file", "path", path, "id", key.ID)
	return nil
}

// LoadKey reads and decrypts the key file at path
func LoadKey(path, password string) (*Key, error) {
	keyjson, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := DecryptKey(keyjson, password)
	if err != nil {
		return nil, err
	}
	log.Debug("Loaded stealth key file", "path", path, "id", key.ID)
	return key, nil
}
