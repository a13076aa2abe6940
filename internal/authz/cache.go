// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package authz

import (
	"strings"
	"sync"
	"time"
)

// enforcementCache memoizes subject/object/action decisions for a TTL, so
// hot API paths do not re-run the Casbin matcher on every request. Keys are
// "subject\x00object\x00action"; the NUL separator keeps subjects containing
// ':' from colliding.
type enforcementCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry

	done     chan struct{}
	stopOnce sync.Once
}

type cacheEntry struct {
	allowed  bool
	deadline time.Time
}

func newEnforcementCache(ttl time.Duration) *enforcementCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &enforcementCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		done:    make(chan struct{}),
	}
	go c.janitor()
	return c
}

func cacheKey(subject, object, action string) string {
	return subject + "\x00" + object + "\x00" + action
}

func (c *enforcementCache) get(subject, object, action string) (allowed, ok bool) {
	c.mu.RLock()
	entry, ok := c.entries[cacheKey(subject, object, action)]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.deadline) {
		return false, false
	}
	return entry.allowed, true
}

func (c *enforcementCache) set(subject, object, action string, allowed bool) {
	c.mu.Lock()
	c.entries[cacheKey(subject, object, action)] = cacheEntry{
		allowed:  allowed,
		deadline: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// invalidateUser drops every cached decision for one subject, called when
// the subject's roles change.
func (c *enforcementCache) invalidateUser(subject string) {
	prefix := subject + "\x00"

	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

func (c *enforcementCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// janitor evicts expired entries once per TTL period until stop.
func (c *enforcementCache) janitor() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for key, entry := range c.entries {
				if now.After(entry.deadline) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// stop ends the janitor goroutine. Safe to call more than once.
func (c *enforcementCache) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}
