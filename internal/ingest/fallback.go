// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package ingest

import "github.com/probelab/linkscope/internal/models"

// uniqueIndex maps a correlation key to a value only while the mapping stays
// unambiguous. A key observed with two different values resolves to nothing.
type uniqueIndex struct {
	values    map[string]string
	ambiguous map[string]bool
}

func newUniqueIndex() *uniqueIndex {
	return &uniqueIndex{
		values:    make(map[string]string),
		ambiguous: make(map[string]bool),
	}
}

func (u *uniqueIndex) add(key, value string) {
	if key == "" || value == "" || u.ambiguous[key] {
		return
	}
	if existing, ok := u.values[key]; ok {
		if existing != value {
			delete(u.values, key)
			u.ambiguous[key] = true
		}
		return
	}
	u.values[key] = value
}

// get returns the unique value for key, or "" when the key is unknown or
// ambiguous.
func (u *uniqueIndex) get(key string) string {
	if key == "" {
		return ""
	}
	return u.values[key]
}

// uniqueValue tracks whether the whole batch shares exactly one value for a field.
type uniqueValue struct {
	value string
	mixed bool
}

func (u *uniqueValue) add(v string) {
	if v == "" || u.mixed {
		return
	}
	if u.value == "" {
		u.value = v
		return
	}
	if u.value != v {
		u.value = ""
		u.mixed = true
	}
}

func (u *uniqueValue) get() string {
	return u.value
}

// InferFallback backfills missing correlation fields across a fully ingested
// batch using uniqueness closure. Each cycle builds five lookup maps from the
// batch (deviceSn by linkCode, deviceSn by deviceMac, deviceMac by deviceSn,
// linkCode by deviceSn, linkCode by deviceMac) and fills a missing field only
// when the relevant map resolves to a single unique value for the event's
// known keys, falling back to a batch-wide unique value when the whole batch
// agrees.
//
// A fill can itself create a new unambiguous pairing (backfilled sn on an
// event that carries a mac, say), so cycles repeat until none fills anything.
// One call therefore returns the full closure and the pass is idempotent.
// Fields only ever go from empty to set, which bounds the iteration.
//
// The input batch is never mutated; each cycle builds its maps before filling,
// so fills within a cycle cannot observe each other. Synthetic error events
// are excluded from map construction and are never backfilled. The pass is
// best-effort and never fabricates ambiguous values.
func InferFallback(events []*models.CanonicalEvent) []*models.CanonicalEvent {
	out := make([]*models.CanonicalEvent, len(events))
	for i, ev := range events {
		cp := *ev
		out[i] = &cp
	}

	for inferCycle(out) {
	}
	return out
}

// inferCycle runs one build-maps/fill pass over the batch in place and
// reports whether any field was filled.
func inferCycle(events []*models.CanonicalEvent) bool {
	snByLink := newUniqueIndex()
	snByMac := newUniqueIndex()
	macBySN := newUniqueIndex()
	linkBySN := newUniqueIndex()
	linkByMac := newUniqueIndex()

	var batchSN, batchMac, batchLink uniqueValue

	for _, ev := range events {
		if ev.IsSynthetic() {
			continue
		}
		t := ev.Tracking
		snByLink.add(t.LinkCode, t.DeviceSN)
		snByMac.add(t.DeviceMac, t.DeviceSN)
		macBySN.add(t.DeviceSN, t.DeviceMac)
		linkBySN.add(t.DeviceSN, t.LinkCode)
		linkByMac.add(t.DeviceMac, t.LinkCode)

		batchSN.add(t.DeviceSN)
		batchMac.add(t.DeviceMac)
		batchLink.add(t.LinkCode)
	}

	changed := false
	for _, ev := range events {
		if ev.IsSynthetic() {
			continue
		}
		t := &ev.Tracking

		if t.DeviceSN == "" {
			if sn := snByLink.get(t.LinkCode); sn != "" {
				t.DeviceSN = sn
			} else if sn := snByMac.get(t.DeviceMac); sn != "" {
				t.DeviceSN = sn
			} else {
				t.DeviceSN = batchSN.get()
			}
			changed = changed || t.DeviceSN != ""
		}
		if t.DeviceMac == "" {
			if mac := macBySN.get(t.DeviceSN); mac != "" {
				t.DeviceMac = mac
			} else {
				t.DeviceMac = batchMac.get()
			}
			changed = changed || t.DeviceMac != ""
		}
		if t.LinkCode == "" {
			if link := linkBySN.get(t.DeviceSN); link != "" {
				t.LinkCode = link
			} else if link := linkByMac.get(t.DeviceMac); link != "" {
				t.LinkCode = link
			} else {
				t.LinkCode = batchLink.get()
			}
			changed = changed || t.LinkCode != ""
		}
	}
	return changed
}
