// Copyright 2024 The PrivatePay Authors
// This file is part of the PrivatePay library.

// Package stealthdb persists the payments a payee's scanners have detected,
// together with the scan cursor, in LevelDB.
package stealthdb

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("database closed")
)

// Database wraps access to LevelDB
type Database struct {
	db     *leveldb.DB
	path   string
	mu     sync.RWMutex
	closed bool
}

// NewDatabase opens (or creates) a database at path
func NewDatabase(path string, cacheMB, handles int) (*Database, error) {
	if cacheMB < 16 {
		cacheMB = 16
	}
	if handles < 16 {
		handles = 16
	}
	opts := &opt.Options{
		OpenFilesCacheCapacity: handles,
		BlockCacheCapacity:     cacheMB / 2 * opt.MiB,
		WriteBuffer:            cacheMB / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	}

	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, err
	}

	log.Info("Opened stealth database", "path", path, "cache", cacheMB, "handles", handles)
	return &Database{
		db:   db,
		path: path,
	}, nil
}

// NewMemoryDatabase creates an ephemeral in-memory database
func NewMemoryDatabase() *Database {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		// Memory storage cannot fail to open
		panic(err)
	}
	return &Database{db: db, path: ":memory:"}
}

// Path returns the on-disk location of the database
func (d *Database) Path() string {
	return d.path
}

// Close closes the database
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}

// Put writes a key-value pair to the database
func (d *Database) Put(key, value []byte) error {
	return d.db.Put(key, value, nil)
}

// Get retrieves a value by key
func (d *Database) Get(key []byte) ([]byte, error) {
	value, err := d.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if errors.Is(err, leveldb.ErrClosed) {
		return nil, ErrClosed
	}
	return value, err
}

// Has checks if a key exists
func (d *Database) Has(key []byte) (bool, error) {
	return d.db.Has(key, nil)
}

// Delete removes a key
func (d *Database) Delete(key []byte) error {
	return d.db.Delete(key, nil)
}

// NewIterator iterates over all keys with the given prefix
func (d *Database) NewIterator(prefix []byte) iterator.Iterator {
	return d.db.NewIterator(util.BytesPrefix(prefix), nil)
}

// NewBatch creates a new write batch
func (d *Database) NewBatch() *Batch {
	return &Batch{
		db:    d.db,
		batch: new(leveldb.Batch),
	}
}

// Batch represents a batch of writes
type Batch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
	size  int
}

// Put adds a put operation to the batch
func (b *Batch) Put(key, value []byte) error {
	b.batch.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

// Delete adds a delete operation to the batch
func (b *Batch) Delete(key []byte) error {
	b.batch.Delete(key)
	b.size += len(key)
	return nil
}

// ValueSize returns the size of data in the batch
func (b *Batch) ValueSize() int {
	return b.size
}

// Write commits the batch to the database
func (b *Batch) Write() error {
	return b.db.Write(b.batch, nil)
}

// Reset resets the batch
func (b *Batch) Reset() {
	b.batch.Reset()
	b.size = 0
}
