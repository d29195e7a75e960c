// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

package stealthdb

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

var (
	// Database key prefixes
	paymentPrefix = []byte("p") // paymentPrefix + scanner hash + tx hash + index (uint32 big endian) -> payment record
	cursorPrefix  = []byte("c") // cursorPrefix + scanner hash -> last scanned cursor (uint64 big endian)

	headCursorKey = []byte("LastScanned")
)

// PaymentRecord is the stored form of a detected stealth payment. Stealth
// private keys are never stored; they are re-derived from the meta keys.
type PaymentRecord struct {
	ScannerID       string
	TxHash          common.Hash
	BlockNumber     uint64
	StealthAddress  string
	EphemeralPubKey []byte
	ViewHint        uint8
	Index           uint32
	Amount          *uint256.Int
}

// scannerHash maps a scanner ID to a fixed-width key component
func scannerHash(scannerID string) common.Hash {
	return crypto.Keccak256Hash([]byte(scannerID))
}

func encodeIndex(index uint32) []byte {
	enc := make([]byte, 4)
	binary.BigEndian.PutUint32(enc, index)
	return enc
}

func encodeCursor(cursor uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, cursor)
	return enc
}

// paymentsKey returns the prefix shared by all payments of a scanner
func paymentsKey(scannerID string) []byte {
	return append(append([]byte{}, paymentPrefix...), scannerHash(scannerID).Bytes()...)
}

// paymentKey returns the key of a single payment
func paymentKey(scannerID string, txHash common.Hash, index uint32) []byte {
	return append(append(paymentsKey(scannerID), txHash.Bytes()...), encodeIndex(index)...)
}

// cursorKey returns the cursor key of a scanner
func cursorKey(scannerID string) []byte {
	return append(append([]byte{}, cursorPrefix...), scannerHash(scannerID).Bytes()...)
}

// WritePayment stores a payment record
func WritePayment(db *Database, rec *PaymentRecord) error {
	if rec.Amount == nil {
		rec.Amount = new(uint256.Int)
	}
	data, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return fmt.Errorf("failed to encode payment: %w", err)
	}
	if err := db.Put(paymentKey(rec.ScannerID, rec.TxHash, rec.Index), data); err != nil {
		return fmt.Errorf("failed to store payment: %w", err)
	}
	return nil
}

// WritePayments stores several payment records atomically
func WritePayments(db *Database, recs []*PaymentRecord) error {
	batch := db.NewBatch()
	if err := putPayments(batch, recs); err != nil {
		return err
	}
	return batch.Write()
}

// WriteScanResult stores the payments a scanner found and its new cursor in
// one batch, so the cursor never moves past a payment that was not stored
func WriteScanResult(db *Database, scannerID string, cursor uint64, recs []*PaymentRecord) error {
	batch := db.NewBatch()
	if err := putPayments(batch, recs); err != nil {
		return err
	}
	_ = batch.Put(cursorKey(scannerID), encodeCursor(cursor))
	if err := batch.Write(); err != nil {
		return fmt.Errorf("failed to store scan result: %w", err)
	}
	return nil
}

func putPayments(batch *Batch, recs []*PaymentRecord) error {
	for _, rec := range recs {
		if rec.Amount == nil {
			rec.Amount = new(uint256.Int)
		}
		data, err := rlp.EncodeToBytes(rec)
		if err != nil {
			return fmt.Errorf("failed to encode payment: %w", err)
		}
		_ = batch.Put(paymentKey(rec.ScannerID, rec.TxHash, rec.Index), data)
	}
	return nil
}

// HasPayment reports whether a payment is already stored
func HasPayment(db *Database, scannerID string, txHash common.Hash, index uint32) bool {
	ok, err := db.Has(paymentKey(scannerID, txHash, index))
	return err == nil && ok
}

// ReadPayment retrieves a single payment record
func ReadPayment(db *Database, scannerID string, txHash common.Hash, index uint32) (*PaymentRecord, error) {
	data, err := db.Get(paymentKey(scannerID, txHash, index))
	if err != nil {
		return nil, err
	}
	var rec PaymentRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ReadPayments retrieves all payments of a scanner in key order. Undecodable
// entries are skipped with a warning.
func ReadPayments(db *Database, scannerID string) ([]*PaymentRecord, error) {
	it := db.NewIterator(paymentsKey(scannerID))
	defer it.Release()

	var recs []*PaymentRecord
	for it.Next() {
		var rec PaymentRecord
		if err := rlp.DecodeBytes(it.Value(), &rec); err != nil {
			log.Warn("Skipping corrupt payment record", "key", common.Bytes2Hex(it.Key()), "err", err)
			continue
		}
		recs = append(recs, &rec)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return recs, nil
}

// DeletePayments removes all payments of a scanner
func DeletePayments(db *Database, scannerID string) error {
	it := db.NewIterator(paymentsKey(scannerID))
	defer it.Release()

	batch := db.NewBatch()
	for it.Next() {
		key := append([]byte{}, it.Key()...)
		_ = batch.Delete(key)
	}
	if err := it.Error(); err != nil {
		return err
	}
	return batch.Write()
}

// ReadCursor retrieves the last cursor scanned for a scanner
func ReadCursor(db *Database, scannerID string) (uint64, bool) {
	data, err := db.Get(cursorKey(scannerID))
	if err != nil || len(data) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(data), true
}

// WriteCursor stores the last cursor scanned for a scanner
func WriteCursor(db *Database, scannerID string, cursor uint64) error {
	return db.Put(cursorKey(scannerID), encodeCursor(cursor))
}

// ReadHeadCursor retrieves the last cursor scanned by the service
func ReadHeadCursor(db *Database) (uint64, bool) {
	data, err := db.Get(headCursorKey)
	if err != nil || len(data) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(data), true
}

// WriteHeadCursor stores the last cursor scanned by the service
func WriteHeadCursor(db *Database, cursor uint64) error {
	return db.Put(headCursorKey, encodeCursor(cursor))
}
