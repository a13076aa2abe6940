// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package session

import (
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/probelab/linkscope/internal/models"
)

// Command-name keys probed in the payload, normalized like the extractor's alias
// tables (lower-cased, underscores stripped).
var commandKeys = []string{"command", "cmd", "cmdcode", "method"}

// buildChains reconstructs command/request chains from the ordered event
// sequence. Events carrying a requestId are grouped by it; the remainder is
// split by the time-gap heuristic: a new chain starts whenever the gap to the
// previous uncorrelated event exceeds the configured window.
func (r *Reconstructor) buildChains(events []*models.CanonicalEvent) []models.CommandChain {
	byRequest := make(map[string]*models.CommandChain)
	var order []string
	var gapChains []models.CommandChain
	var gapCur *models.CommandChain
	var gapLastTs int64

	for _, ev := range events {
		reqID := ev.Tracking.RequestID
		if reqID != "" {
			chain, ok := byRequest[reqID]
			if !ok {
				chain = &models.CommandChain{
					RequestID: reqID,
					StartedAt: ev.Timestamp,
				}
				byRequest[reqID] = chain
				order = append(order, reqID)
			}
			extendChain(chain, ev)
			continue
		}

		if gapCur == nil || ev.Timestamp-gapLastTs > r.chainGapMs {
			gapChains = append(gapChains, models.CommandChain{StartedAt: ev.Timestamp})
			gapCur = &gapChains[len(gapChains)-1]
		}
		extendChain(gapCur, ev)
		gapLastTs = ev.Timestamp
	}

	chains := make([]models.CommandChain, 0, len(order)+len(gapChains))
	for _, id := range order {
		chains = append(chains, *byRequest[id])
	}
	chains = append(chains, gapChains...)

	sort.SliceStable(chains, func(i, j int) bool {
		return chains[i].StartedAt < chains[j].StartedAt
	})
	return chains
}

func extendChain(chain *models.CommandChain, ev *models.CanonicalEvent) {
	chain.EndedAt = ev.Timestamp
	chain.EventCount++
	if isErrorEvent(ev) {
		chain.ErrorCount++
	}
	if chain.Command == "" {
		chain.Command = commandFromPayload(ev.Payload)
	}
}

// commandFromPayload extracts a command name or code from the event payload.
func commandFromPayload(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return ""
	}
	norm := make(map[string]any, len(obj))
	for k, v := range obj {
		norm[strings.ReplaceAll(strings.ToLower(k), "_", "")] = v
	}
	for _, key := range commandKeys {
		switch v := norm[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			if v == float64(int64(v)) {
				return strconv.FormatInt(int64(v), 10)
			}
		}
	}
	return ""
}
