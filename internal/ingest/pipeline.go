// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/probelab/linkscope/internal/models"
)

// maxLineBytes bounds one physical log line. SDK lines are small; anything larger
// is treated as a parse failure for that line.
const maxLineBytes = 1 << 20

// Header/preamble markers written by the SDK log writer. These lines are skipped,
// not treated as parse errors.
var headerPrefixes = []string{"====", "#"}

// outerEnvelope is the first decoding level of a physical log line.
type outerEnvelope struct {
	Timestamp int64           `json:"timestamp"`
	Level     int             `json:"level"`
	Thread    string          `json:"thread,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// innerPayload is the second decoding level: the event body nested inside the
// outer envelope's payload.
type innerPayload struct {
	Event string `json:"event"`
	Msg   string `json:"msg,omitempty"`
}

// Result is the output of ingesting one raw capture.
type Result struct {
	Events []*models.CanonicalEvent

	// HadError is true iff at least one synthetic error event was emitted
	// (parser errors or decrypt degradation).
	HadError bool
}

// Pipeline decodes a raw log capture into a flat ordered batch of canonical
// events. A Pipeline is stateless and safe for concurrent use.
type Pipeline struct {
	dec Decryptor

	// projectID and fileID are stamped onto every produced event.
	projectID string
	fileID    string
}

// NewPipeline creates an ingestion pipeline. dec may be nil when encrypted
// captures are not expected.
func NewPipeline(dec Decryptor, projectID, fileID string) *Pipeline {
	return &Pipeline{dec: dec, projectID: projectID, fileID: fileID}
}

// Ingest decodes raw capture bytes into canonical events.
//
// Decoding failures are isolated per line: a synthetic PARSER_ERROR event
// (severity 4) carrying the failure message and the raw line is emitted and
// ingestion continues. Header/preamble lines are skipped. If the bytes are an
// encrypted container, the decrypt collaborator runs first: zero decrypted
// blocks aborts with a single DECRYPT_FAILED event, partial success emits one
// DECRYPT_DEGRADED event and continues over the recovered blocks. After all
// lines are decoded the fallback-inference pass runs over the full batch.
func (p *Pipeline) Ingest(raw []byte) (*Result, error) {
	res := &Result{}

	if p.dec != nil && p.dec.Detect(raw) {
		dr, err := p.dec.Decrypt(raw)
		if err != nil || dr.BlocksOK == 0 {
			failed := 0
			if dr != nil {
				failed = dr.BlocksFailed
			}
			msg := fmt.Sprintf("decrypt failed for all %d blocks", failed)
			if err != nil {
				msg = fmt.Sprintf("decrypt failed: %v", err)
			}
			res.Events = append(res.Events, p.synthetic(models.EventDecryptFailed, models.LevelError, 0, msg, ""))
			res.HadError = true
			return res, nil
		}
		if dr.BlocksFailed > 0 {
			msg := fmt.Sprintf("decrypt degraded: %d blocks recovered, %d blocks lost", dr.BlocksOK, dr.BlocksFailed)
			res.Events = append(res.Events, p.synthetic(models.EventDecryptDegraded, models.LevelWarn, 0, msg, ""))
			res.HadError = true
		}
		raw = dr.Text
	}

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var lastTs int64
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || isHeaderLine(line) {
			continue
		}

		ev, err := p.decodeLine(line)
		if err != nil {
			res.Events = append(res.Events, p.synthetic(models.EventParserError, models.LevelError, lastTs, err.Error(), line))
			res.HadError = true
			continue
		}
		lastTs = ev.Timestamp
		res.Events = append(res.Events, ev)
	}
	if err := scanner.Err(); err != nil {
		res.Events = append(res.Events, p.synthetic(models.EventParserError, models.LevelError, lastTs, fmt.Sprintf("line scan: %v", err), ""))
		res.HadError = true
	}

	res.Events = InferFallback(res.Events)
	return res, nil
}

// decodeLine decodes the two-level envelope of one physical line.
func (p *Pipeline) decodeLine(line string) (*models.CanonicalEvent, error) {
	var outer outerEnvelope
	if err := json.Unmarshal([]byte(line), &outer); err != nil {
		return nil, fmt.Errorf("outer envelope: %w", err)
	}

	inner, payload, err := decodePayload(outer.Payload)
	if err != nil {
		return nil, err
	}
	if inner.Event == "" {
		return nil, fmt.Errorf("payload has no event name")
	}

	ev := models.NewCanonicalEvent(inner.Event, clampLevel(outer.Level), outer.Timestamp)
	ev.ProjectID = p.projectID
	ev.FileID = p.fileID
	ev.Message = inner.Msg
	ev.Thread = outer.Thread
	ev.Payload = payload
	ev.Tracking = Extract(payload)
	return ev, nil
}

// decodePayload unwraps the outer payload, which is either a JSON string holding
// the nested JSON text or (from newer SDK builds) the object directly.
func decodePayload(raw json.RawMessage) (innerPayload, json.RawMessage, error) {
	if len(raw) == 0 {
		return innerPayload{}, nil, fmt.Errorf("empty payload")
	}

	body := raw
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return innerPayload{}, nil, fmt.Errorf("payload string: %w", err)
		}
		body = json.RawMessage(s)
	}

	var inner innerPayload
	if err := json.Unmarshal(body, &inner); err != nil {
		return innerPayload{}, nil, fmt.Errorf("inner payload: %w", err)
	}
	return inner, body, nil
}

func (p *Pipeline) synthetic(name string, level int, ts int64, msg, rawLine string) *models.CanonicalEvent {
	ev := models.NewCanonicalEvent(name, level, ts)
	ev.ProjectID = p.projectID
	ev.FileID = p.fileID
	ev.Message = msg
	if rawLine != "" {
		if body, err := json.Marshal(map[string]string{"raw_line": rawLine}); err == nil {
			ev.Payload = body
		}
	}
	return ev
}

func isHeaderLine(line string) bool {
	for _, prefix := range headerPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func clampLevel(level int) int {
	if level < models.LevelDebug {
		return models.LevelDebug
	}
	if level > models.LevelError {
		return models.LevelError
	}
	return level
}
