// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package store

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/probelab/linkscope/internal/logging"
	"github.com/probelab/linkscope/internal/metrics"
)

// BreakerConfig tunes the circuit breaker guarding blob-store access.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultBreakerConfig returns the standard blob-store breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "blobstore",
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// ResilientBlobStore wraps a BlobStore with a circuit breaker, shedding load
// while the backing store is failing. Lookup misses are not failures and never
// trip the breaker.
type ResilientBlobStore struct {
	inner   BlobStore
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewResilientBlobStore wraps inner with breaker protection.
func NewResilientBlobStore(inner BlobStore, cfg BreakerConfig) *ResilientBlobStore {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordBreakerTransition(name, from.String(), to.String())
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("blob store breaker state changed")
		},
	}
	return &ResilientBlobStore{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

// State reports the breaker state for monitoring.
func (s *ResilientBlobStore) State() string {
	return s.breaker.State().String()
}

func (s *ResilientBlobStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.breaker.Execute(func() ([]byte, error) {
		return nil, s.inner.Put(ctx, key, data)
	})
	return err
}

func (s *ResilientBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.breaker.Execute(func() ([]byte, error) {
		return s.inner.Get(ctx, key)
	})
}

func (s *ResilientBlobStore) Delete(ctx context.Context, key string) error {
	_, err := s.breaker.Execute(func() ([]byte, error) {
		return nil, s.inner.Delete(ctx, key)
	})
	return err
}

func (s *ResilientBlobStore) Close() error {
	return s.inner.Close()
}

var _ BlobStore = (*ResilientBlobStore)(nil)
