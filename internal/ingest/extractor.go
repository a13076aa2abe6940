// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package ingest

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/probelab/linkscope/internal/models"
)

// Key alias tables for tracking-field extraction. Keys are matched after
// normalization (lower-cased, underscores stripped), which folds the legacy
// spellings the SDK has shipped over time (requestId/request_id, Stage/stage,
// link_code/linkCode) into one canonical form.
var (
	linkCodeKeys   = []string{"linkcode"}
	requestIDKeys  = []string{"requestid", "msgid"}
	attemptIDKeys  = []string{"attemptid"}
	deviceMacKeys  = []string{"devicemac", "mac"}
	deviceSNKeys   = []string{"devicesn", "sn", "serialnumber", "serial"}
	errorCodeKeys  = []string{"errorcode"}
	reasonCodeKeys = []string{"reasoncode"}
	stageKeys      = []string{"stage"}
	opKeys         = []string{"op"}
	resultKeys     = []string{"result"}
)

// Extract decodes an arbitrary payload value into canonical tracking fields.
//
// The payload is treated as a closed tagged union: string, structured object, or
// nothing. A string payload that looks like a single JSON object ({...}) is
// re-parsed and extracted recursively; any other string yields no fields; free
// text is never mined. For structured input the top-level object is scanned first,
// then its "data" sub-object, taking the first non-empty match per field. A field
// set from an earlier candidate object is never overwritten.
//
// Extract never panics; unsupported payload shapes yield all-empty fields.
func Extract(payload any) models.TrackingFields {
	var tf models.TrackingFields
	extractInto(&tf, payload)
	return tf
}

func extractInto(tf *models.TrackingFields, payload any) {
	switch v := payload.(type) {
	case nil:
	case string:
		s := strings.TrimSpace(v)
		if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
			var obj map[string]any
			if err := json.Unmarshal([]byte(s), &obj); err == nil {
				extractInto(tf, obj)
			}
		}
	case json.RawMessage:
		extractRaw(tf, []byte(v))
	case []byte:
		extractRaw(tf, v)
	case map[string]any:
		scanObject(tf, v)
		if data, ok := v["data"].(map[string]any); ok {
			scanObject(tf, data)
		}
	}
}

func extractRaw(tf *models.TrackingFields, raw []byte) {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return
	}
	// A raw JSON string payload re-enters the string path so that quoted JSON
	// objects are still unwrapped.
	extractInto(tf, decoded)
}

// scanObject fills unset tracking fields from one candidate object. The object's
// keys are normalized once; alias lookup order decides which legacy spelling wins
// when several are present.
func scanObject(tf *models.TrackingFields, obj map[string]any) {
	norm := normalizeKeys(obj)

	setField(&tf.LinkCode, norm, linkCodeKeys, false)
	setField(&tf.RequestID, norm, requestIDKeys, false)
	setField(&tf.AttemptID, norm, attemptIDKeys, false)
	setField(&tf.DeviceSN, norm, deviceSNKeys, false)
	setField(&tf.ErrorCode, norm, errorCodeKeys, false)
	setField(&tf.ReasonCode, norm, reasonCodeKeys, false)
	setField(&tf.Stage, norm, stageKeys, true)
	setField(&tf.Op, norm, opKeys, true)
	setField(&tf.Result, norm, resultKeys, true)

	if tf.DeviceMac == "" {
		for _, k := range deviceMacKeys {
			if mac := models.CleanMacField(coerceString(norm[k])); mac != "" {
				tf.DeviceMac = mac
				break
			}
		}
	}

	// deviceSn can be derived from a pub/sub topic (data/<sn>/... or
	// data_reply/<sn>/...) or from a url's sn query parameter.
	if tf.DeviceSN == "" {
		tf.DeviceSN = snFromTopic(coerceString(norm["topic"]))
	}
	if tf.DeviceSN == "" {
		tf.DeviceSN = snFromURL(coerceString(norm["url"]))
	}

	// errorCode falls back to a nested error object's code/reason_code.
	if tf.ErrorCode == "" {
		if errObj, ok := norm["error"].(map[string]any); ok {
			errNorm := normalizeKeys(errObj)
			if code := coerceString(errNorm["code"]); code != "" {
				tf.ErrorCode = code
			} else if code := coerceString(errNorm["reasoncode"]); code != "" {
				tf.ErrorCode = code
			}
		}
	}
}

func setField(dst *string, norm map[string]any, aliases []string, lower bool) {
	if *dst != "" {
		return
	}
	for _, k := range aliases {
		v := coerceString(norm[k])
		if v == "" {
			continue
		}
		if lower {
			v = strings.ToLower(v)
		}
		*dst = v
		return
	}
}

// normalizeKeys rewrites the object's keys to lower-case with underscores
// stripped. When two spellings of the same key collide, the first one seen wins;
// candidate objects are small fixed-shape SDK payloads so collisions are benign.
func normalizeKeys(obj map[string]any) map[string]any {
	norm := make(map[string]any, len(obj))
	for k, v := range obj {
		nk := strings.ReplaceAll(strings.ToLower(k), "_", "")
		if _, exists := norm[nk]; !exists {
			norm[nk] = v
		}
	}
	return norm
}

// coerceString renders a scalar JSON value as a trimmed string. Numeric codes are
// common in legacy payloads (errorCode: 1021), so whole floats are rendered
// without a decimal point. Objects, arrays and booleans yield "".
func coerceString(v any) string {
	switch s := v.(type) {
	case string:
		return models.CleanField(s)
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	}
	return ""
}

// snFromTopic derives a device serial from a messaging topic of the shape
// data/<sn>/... or data_reply/<sn>/....
func snFromTopic(topic string) string {
	if topic == "" {
		return ""
	}
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	if parts[0] != "data" && parts[0] != "data_reply" {
		return ""
	}
	return models.CleanField(parts[1])
}

// snFromURL derives a device serial from a url's sn query parameter.
func snFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return models.CleanField(u.Query().Get("sn"))
}
