// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package quality

import (
	"sort"

	"github.com/probelab/linkscope/internal/models"
)

type continuityKind int

const (
	continuityNone continuityKind = iota
	continuityDuplicate
	continuityOutOfOrder
	continuityOrderBroken
	continuityPersistTimeout
	continuityRTBufferDrop
)

// BuildContinuity computes the data-continuity report from the error codes the
// SDK stamps on ordering, persistence, and realtime-buffer failures. Each
// matching event is counted once globally and once per device, link, and
// request correlator; the per-correlator lists are ranked by total descending
// and capped at TopN.
func BuildContinuity(events []*models.CanonicalEvent, params ContinuityParams) *models.ContinuityReport {
	if params.TopN <= 0 {
		params.TopN = DefaultContinuityParams().TopN
	}
	classify := newContinuityClassifier(params)

	report := &models.ContinuityReport{}
	byDevice := newOffenderSet()
	byLink := newOffenderSet()
	byRequest := newOffenderSet()

	for _, ev := range events {
		kind := classify(ev.Tracking.ErrorCode)
		if kind == continuityNone {
			continue
		}

		switch kind {
		case continuityDuplicate:
			report.OrderBroken.Total++
			report.OrderBroken.Duplicate++
		case continuityOutOfOrder:
			report.OrderBroken.Total++
			report.OrderBroken.OutOfOrder++
		case continuityOrderBroken:
			report.OrderBroken.Total++
		case continuityPersistTimeout:
			report.PersistTimeout++
		case continuityRTBufferDrop:
			report.RTBufferDrop++
		}

		byDevice.add(ev.Tracking.DeviceSN, kind)
		byLink.add(ev.Tracking.LinkCode, kind)
		byRequest.add(ev.Tracking.RequestID, kind)
	}

	report.ByDevice = byDevice.ranked(params.TopN)
	report.ByLink = byLink.ranked(params.TopN)
	report.ByRequest = byRequest.ranked(params.TopN)
	return report
}

func newContinuityClassifier(params ContinuityParams) func(code string) continuityKind {
	table := make(map[string]continuityKind)
	for _, c := range params.DuplicateCodes {
		table[c] = continuityDuplicate
	}
	for _, c := range params.OutOfOrderCodes {
		table[c] = continuityOutOfOrder
	}
	for _, c := range params.OrderBrokenCodes {
		table[c] = continuityOrderBroken
	}
	for _, c := range params.PersistTimeoutCodes {
		table[c] = continuityPersistTimeout
	}
	for _, c := range params.RTBufferDropCodes {
		table[c] = continuityRTBufferDrop
	}
	return func(code string) continuityKind {
		if code == "" {
			return continuityNone
		}
		return table[code]
	}
}

type offenderSet struct {
	byKey map[string]*models.ContinuityOffender
	order []string
}

func newOffenderSet() *offenderSet {
	return &offenderSet{byKey: make(map[string]*models.ContinuityOffender)}
}

func (s *offenderSet) add(key string, kind continuityKind) {
	if key == "" {
		return
	}
	off, ok := s.byKey[key]
	if !ok {
		off = &models.ContinuityOffender{Key: key}
		s.byKey[key] = off
		s.order = append(s.order, key)
	}
	off.Total++
	switch kind {
	case continuityDuplicate, continuityOutOfOrder, continuityOrderBroken:
		off.OrderBroken++
	case continuityPersistTimeout:
		off.PersistTimeout++
	case continuityRTBufferDrop:
		off.RTBufferDrop++
	}
}

func (s *offenderSet) ranked(topN int) []models.ContinuityOffender {
	out := make([]models.ContinuityOffender, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, *s.byKey[key])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
