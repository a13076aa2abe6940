// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package quality

import (
	"strings"

	"github.com/probelab/linkscope/internal/models"
)

// nameStats accumulates per-event-name observations.
type nameStats struct {
	count    int
	byLevel  map[int]int
	topLevel int // most frequent severity, first-seen wins ties
}

// BuildCoverage evaluates the protocol coverage matrix against an event batch.
//
// Each required event is matched exactly first, then by case/whitespace-
// normalized alias match aggregating all aliases, and classified as ok, missing,
// level_mismatch, or name_mismatch. Start/end pair checks count starts minus
// ends floored at zero. The overall coverage ratio is okTotal/requiredTotal and
// always lies in [0,1].
func BuildCoverage(events []*models.CanonicalEvent, params CoverageParams) *models.CoverageReport {
	stats := collectNameStats(events)

	// Normalized view for alias matching.
	normStats := make(map[string]*nameStats)
	for name, st := range stats {
		key := normalizeName(name)
		agg, ok := normStats[key]
		if !ok {
			agg = &nameStats{byLevel: make(map[int]int)}
			normStats[key] = agg
		}
		mergeStats(agg, st)
	}

	report := &models.CoverageReport{
		ByCategory:    make(map[string]models.CategoryCoverage),
		RequiredTotal: len(params.Required),
	}

	for _, req := range params.Required {
		entry := models.CoverageEntry{
			Name:          req.Name,
			Category:      req.Category,
			ExpectedLevel: req.ExpectedLevel,
		}

		if st, ok := stats[req.Name]; ok {
			entry.Count = st.count
			entry.ActualLevel = st.topLevel
			if st.byLevel[req.ExpectedLevel] > 0 {
				entry.Status = models.CoverageOK
				entry.ActualLevel = req.ExpectedLevel
			} else {
				entry.Status = models.CoverageLevelMismatch
			}
		} else if matched, matchedName := aliasMatch(req, normStats); matched != nil {
			entry.Status = models.CoverageNameMismatch
			entry.Count = matched.count
			entry.ActualLevel = matched.topLevel
			entry.MatchedName = matchedName
		} else {
			entry.Status = models.CoverageMissing
		}

		report.Entries = append(report.Entries, entry)

		cat := report.ByCategory[req.Category]
		cat.Required++
		switch entry.Status {
		case models.CoverageOK:
			cat.OK++
			report.OKTotal++
		case models.CoverageMissing:
			report.MissingTotal++
		default:
			report.MismatchTotal++
		}
		report.ByCategory[req.Category] = cat
	}

	for name, cat := range report.ByCategory {
		if cat.Required > 0 {
			cat.Ratio = float64(cat.OK) / float64(cat.Required)
		}
		report.ByCategory[name] = cat
	}
	if report.RequiredTotal > 0 {
		report.Ratio = float64(report.OKTotal) / float64(report.RequiredTotal)
	}

	for _, pair := range params.Pairs {
		starts, ends := 0, 0
		if st, ok := stats[pair.StartEvent]; ok {
			starts = st.count
		}
		if st, ok := stats[pair.EndEvent]; ok {
			ends = st.count
		}
		unclosed := starts - ends
		if unclosed < 0 {
			unclosed = 0
		}
		report.Pairs = append(report.Pairs, models.PairCheckResult{
			StartEvent: pair.StartEvent,
			EndEvent:   pair.EndEvent,
			StartCount: starts,
			EndCount:   ends,
			Unclosed:   unclosed,
		})
	}

	return report
}

func collectNameStats(events []*models.CanonicalEvent) map[string]*nameStats {
	stats := make(map[string]*nameStats)
	for _, ev := range events {
		if ev.IsSynthetic() {
			continue
		}
		st, ok := stats[ev.EventName]
		if !ok {
			st = &nameStats{byLevel: make(map[int]int)}
			stats[ev.EventName] = st
		}
		st.count++
		st.byLevel[ev.Level]++
		if st.byLevel[ev.Level] > st.byLevel[st.topLevel] || st.topLevel == 0 {
			st.topLevel = ev.Level
		}
	}
	return stats
}

func mergeStats(dst, src *nameStats) {
	dst.count += src.count
	for level, n := range src.byLevel {
		dst.byLevel[level] += n
		if dst.byLevel[level] > dst.byLevel[dst.topLevel] || dst.topLevel == 0 {
			dst.topLevel = level
		}
	}
}

// aliasMatch looks for the required event under its normalized name or any of
// its normalized aliases, aggregating everything that matches.
func aliasMatch(req RequiredEvent, normStats map[string]*nameStats) (*nameStats, string) {
	candidates := append([]string{req.Name}, req.Aliases...)
	agg := &nameStats{byLevel: make(map[int]int)}
	matchedName := ""
	for _, cand := range candidates {
		if st, ok := normStats[normalizeName(cand)]; ok {
			mergeStats(agg, st)
			if matchedName == "" {
				matchedName = cand
			}
		}
	}
	if agg.count == 0 {
		return nil, ""
	}
	return agg, matchedName
}

// normalizeName lower-cases and strips whitespace for tolerant name matching.
func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "")
}
