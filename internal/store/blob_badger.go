// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package store

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/probelab/linkscope/internal/logging"
)

// BlobConfig configures the badger-backed blob store.
type BlobConfig struct {
	// Dir is the badger directory; empty runs fully in memory.
	Dir string
}

// BadgerBlobStore keeps uploaded raw log files in a badger key-value store.
// Values are the raw file bytes; keys are caller-chosen file ids.
type BadgerBlobStore struct {
	db *badger.DB
}

// NewBadgerBlobStore opens the blob store.
func NewBadgerBlobStore(cfg BlobConfig) (*BadgerBlobStore, error) {
	opts := badger.DefaultOptions(cfg.Dir).
		WithLogger(nil)
	if cfg.Dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening blob store: %w", err)
	}
	logging.Debug().Str("dir", cfg.Dir).Msg("blob store opened")
	return &BadgerBlobStore{db: db}, nil
}

// Put stores the raw bytes under key, replacing any existing value.
func (s *BadgerBlobStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("storing blob %q: %w", key, err)
	}
	return nil
}

// Get fetches the raw bytes stored under key.
func (s *BadgerBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("blob %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching blob %q: %w", key, err)
	}
	return data, nil
}

// Delete removes the value stored under key. Deleting a missing key is not an
// error.
func (s *BadgerBlobStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("deleting blob %q: %w", key, err)
	}
	return nil
}

// RunGC runs one badger value-log garbage collection cycle. Returns
// badger.ErrNoRewrite when there was nothing to reclaim and
// badger.ErrGCInMemoryMode for in-memory stores.
func (s *BadgerBlobStore) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// Close flushes and closes the underlying badger database.
func (s *BadgerBlobStore) Close() error {
	return s.db.Close()
}

var _ BlobStore = (*BadgerBlobStore)(nil)
