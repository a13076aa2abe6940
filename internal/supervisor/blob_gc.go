// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package supervisor

import (
	"context"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/probelab/linkscope/internal/logging"
)

// BlobGC is the slice of the blob store the GC service needs.
type BlobGC interface {
	RunGC(discardRatio float64) error
}

// BlobGCService periodically reclaims badger value-log space. Badger does not
// garbage-collect on its own; something has to call RunValueLogGC.
type BlobGCService struct {
	store        BlobGC
	interval     time.Duration
	discardRatio float64
}

// NewBlobGCService creates a GC service running every interval. A zero
// interval defaults to 10 minutes, a zero discardRatio to 0.5.
func NewBlobGCService(store BlobGC, interval time.Duration, discardRatio float64) *BlobGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if discardRatio <= 0 {
		discardRatio = 0.5
	}
	return &BlobGCService{
		store:        store,
		interval:     interval,
		discardRatio: discardRatio,
	}
}

// Serve implements suture.Service.
func (s *BlobGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// One successful cycle often frees up more; loop until badger
			// reports nothing left to rewrite.
			for {
				err := s.store.RunGC(s.discardRatio)
				if err == nil {
					continue
				}
				if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
					break
				}
				logging.Warn().Err(err).Msg("blob store gc failed")
				break
			}
		}
	}
}

func (s *BlobGCService) String() string {
	return "blob-gc"
}
