// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package quality

import (
	"math"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/probelab/linkscope/internal/models"
)

// streamSummary is the payload shape of a per-session stream summary event.
// Counters arrive as JSON numbers; absence is distinguished from zero by the
// pointer fields.
type streamSummary struct {
	Reason     *string  `json:"reason"`
	BufferedOO *float64 `json:"buffered_out_of_order"`
	IndexGap   *float64 `json:"index_gap"`
}

// BuildStreamScores computes the stream-session scoring report. Each summary
// event becomes one scored session: a 100-point base minus per-field penalties,
// clamped to [0,100] and banded against the fixed thresholds. Group aggregates
// are built per device, link, request, and failure reason.
func BuildStreamScores(events []*models.CanonicalEvent, params StreamParams) *models.StreamScoreReport {
	def := DefaultStreamParams()
	if len(params.SummaryEventNames) == 0 {
		params.SummaryEventNames = def.SummaryEventNames
	}
	if params.TopN <= 0 {
		params.TopN = def.TopN
	}

	names := make(map[string]struct{}, len(params.SummaryEventNames))
	for _, n := range params.SummaryEventNames {
		names[strings.ToLower(n)] = struct{}{}
	}

	report := &models.StreamScoreReport{}
	var total int

	byDevice := newScoreGroups()
	byLink := newScoreGroups()
	byRequest := newScoreGroups()
	byReason := newScoreGroups()

	for _, ev := range events {
		if _, ok := names[strings.ToLower(ev.EventName)]; !ok {
			continue
		}

		session := scoreSession(ev, params)
		report.Sessions = append(report.Sessions, session)
		total += session.Score

		switch session.Band {
		case models.StreamGood:
			report.Good++
		case models.StreamWarn:
			report.Warn++
		case models.StreamBad:
			report.Bad++
		}

		byDevice.add(session.DeviceSN, session)
		byLink.add(session.LinkCode, session)
		byRequest.add(session.RequestID, session)
		byReason.add(session.Reason, session)
	}

	if n := len(report.Sessions); n > 0 {
		report.AvgScore = round2(float64(total) / float64(n))
	}
	report.ByDevice = byDevice.ranked(params.TopN)
	report.ByLink = byLink.ranked(params.TopN)
	report.ByRequest = byRequest.ranked(params.TopN)
	report.ByReason = byReason.ranked(params.TopN)
	return report
}

func scoreSession(ev *models.CanonicalEvent, params StreamParams) models.StreamSessionScore {
	session := models.StreamSessionScore{
		DeviceSN:  ev.Tracking.DeviceSN,
		LinkCode:  ev.Tracking.LinkCode,
		RequestID: ev.Tracking.RequestID,
	}

	summary, parsed := parseStreamSummary(ev.Payload)

	score := 100
	if !parsed {
		// An unparseable summary scores as one with every field absent.
		score -= 3 * params.MissingFieldPenalty
	} else {
		if summary.Reason == nil {
			score -= params.MissingFieldPenalty
		} else {
			session.Reason = strings.ToLower(strings.TrimSpace(*summary.Reason))
			if p, ok := params.BadReasonPenalties[session.Reason]; ok {
				score -= p
			}
		}
		if summary.BufferedOO == nil {
			score -= params.MissingFieldPenalty
		} else {
			session.BufferedOutOfO = int(*summary.BufferedOO)
			score -= capped(session.BufferedOutOfO*params.OutOfOrderPenalty, params.OutOfOrderPenaltyCap)
		}
		if summary.IndexGap == nil {
			score -= params.MissingFieldPenalty
		} else {
			session.IndexGap = int(*summary.IndexGap)
			score -= capped(session.IndexGap*params.IndexGapPenalty, params.IndexGapPenaltyCap)
		}
	}

	if score < 0 {
		score = 0
	}
	session.Score = score
	session.Band = bandFor(score, params)
	return session
}

// parseStreamSummary accepts both payload encodings the SDK has shipped: a
// JSON object, or a string containing the serialized object.
func parseStreamSummary(payload json.RawMessage) (streamSummary, bool) {
	var summary streamSummary
	if len(payload) == 0 {
		return summary, false
	}
	raw := payload
	var wrapped string
	if err := json.Unmarshal(payload, &wrapped); err == nil {
		raw = json.RawMessage(wrapped)
	}
	if err := json.Unmarshal(raw, &summary); err != nil {
		return streamSummary{}, false
	}
	return summary, true
}

func bandFor(score int, params StreamParams) models.StreamBand {
	warnBelow, badBelow := params.WarnBelow, params.BadBelow
	if warnBelow <= 0 {
		warnBelow = DefaultStreamParams().WarnBelow
	}
	if badBelow <= 0 {
		badBelow = DefaultStreamParams().BadBelow
	}
	switch {
	case score < badBelow:
		return models.StreamBad
	case score < warnBelow:
		return models.StreamWarn
	}
	return models.StreamGood
}

func capped(v, limit int) int {
	if limit > 0 && v > limit {
		return limit
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type scoreGroups struct {
	byKey map[string]*scoreAccum
	order []string
}

type scoreAccum struct {
	sessions int
	total    int
	bad      int
}

func newScoreGroups() *scoreGroups {
	return &scoreGroups{byKey: make(map[string]*scoreAccum)}
}

func (g *scoreGroups) add(key string, session models.StreamSessionScore) {
	if key == "" {
		return
	}
	acc, ok := g.byKey[key]
	if !ok {
		acc = &scoreAccum{}
		g.byKey[key] = acc
		g.order = append(g.order, key)
	}
	acc.sessions++
	acc.total += session.Score
	if session.Band == models.StreamBad {
		acc.bad++
	}
}

func (g *scoreGroups) ranked(topN int) []models.StreamGroupStats {
	out := make([]models.StreamGroupStats, 0, len(g.order))
	for _, key := range g.order {
		acc := g.byKey[key]
		out = append(out, models.StreamGroupStats{
			Key:      key,
			Sessions: acc.sessions,
			AvgScore: round2(float64(acc.total) / float64(acc.sessions)),
			Bad:      acc.bad,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Bad != out[j].Bad {
			return out[i].Bad > out[j].Bad
		}
		return out[i].AvgScore < out[j].AvgScore
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
