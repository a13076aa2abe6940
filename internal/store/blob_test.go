// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package store

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

func testBlobStore(t *testing.T) *BadgerBlobStore {
	t.Helper()
	s, err := NewBadgerBlobStore(BlobConfig{}) // in-memory
	if err != nil {
		t.Fatalf("NewBadgerBlobStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerBlobStore(t *testing.T) {
	s := testBlobStore(t)
	ctx := context.Background()

	data := []byte("raw log bytes")
	if err := s.Put(ctx, "f1", data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "f1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get = %q, want %q", got, data)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing key err = %v, want ErrNotFound", err)
	}

	if err := s.Delete(ctx, "f1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "f1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted key err = %v, want ErrNotFound", err)
	}

	if err := s.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("deleting missing key: %v", err)
	}
}

// failingBlobStore always errors, for breaker tests.
type failingBlobStore struct{}

var errBackend = errors.New("backend down")

func (failingBlobStore) Put(context.Context, string, []byte) error { return errBackend }
func (failingBlobStore) Get(context.Context, string) ([]byte, error) {
	return nil, errBackend
}
func (failingBlobStore) Delete(context.Context, string) error { return errBackend }
func (failingBlobStore) Close() error                         { return nil }

func TestResilientBlobStore(t *testing.T) {
	t.Run("passes through healthy store", func(t *testing.T) {
		s := NewResilientBlobStore(testBlobStore(t), DefaultBreakerConfig())
		ctx := context.Background()

		if err := s.Put(ctx, "k", []byte("v")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := s.Get(ctx, "k")
		if err != nil || string(got) != "v" {
			t.Errorf("Get = %q, %v", got, err)
		}
	})

	t.Run("not found does not trip the breaker", func(t *testing.T) {
		cfg := DefaultBreakerConfig()
		cfg.FailureThreshold = 2
		s := NewResilientBlobStore(testBlobStore(t), cfg)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get: %v", err)
			}
		}
		if s.State() != "closed" {
			t.Errorf("breaker state = %s, want closed after misses only", s.State())
		}
	})

	t.Run("consecutive failures open the breaker", func(t *testing.T) {
		cfg := BreakerConfig{
			Name:             "test",
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          time.Minute,
			FailureThreshold: 3,
		}
		s := NewResilientBlobStore(failingBlobStore{}, cfg)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			if _, err := s.Get(ctx, "k"); err == nil {
				t.Fatal("expected backend error")
			}
		}
		if s.State() != "open" {
			t.Fatalf("breaker state = %s, want open", s.State())
		}

		_, err := s.Get(ctx, "k")
		if !errors.Is(err, gobreaker.ErrOpenState) {
			t.Errorf("err = %v, want open-breaker rejection", err)
		}
	})
}
