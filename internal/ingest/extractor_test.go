// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package ingest

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestExtract_StructuredPayload(t *testing.T) {
	t.Run("top-level fields", func(t *testing.T) {
		tf := Extract(map[string]any{
			"linkCode":  "LC-1",
			"requestId": "req-9",
			"deviceSn":  "SN123",
			"deviceMac": "AA:BB:CC:DD:EE:FF",
			"stage":     "BLE",
			"op":        "Connect",
			"result":    "OK",
		})
		if tf.LinkCode != "LC-1" {
			t.Errorf("Expected LinkCode=LC-1, got %q", tf.LinkCode)
		}
		if tf.RequestID != "req-9" {
			t.Errorf("Expected RequestID=req-9, got %q", tf.RequestID)
		}
		if tf.DeviceSN != "SN123" {
			t.Errorf("Expected DeviceSN=SN123, got %q", tf.DeviceSN)
		}
		if tf.DeviceMac != "AA:BB:CC:DD:EE:FF" {
			t.Errorf("Expected DeviceMac set, got %q", tf.DeviceMac)
		}
		if tf.Stage != "ble" || tf.Op != "connect" || tf.Result != "ok" {
			t.Errorf("Expected lower-cased stage/op/result, got %q/%q/%q", tf.Stage, tf.Op, tf.Result)
		}
	})

	t.Run("legacy aliases", func(t *testing.T) {
		tf := Extract(map[string]any{
			"msgId":        "m-1",
			"sn":           "SN9",
			"mac":          "aabbccddeeff",
			"link_code":    "LC-2",
			"attempt_id":   "at-3",
			"reason_code":  "5",
			"serialNumber": "ignored-sn-comes-second",
		})
		if tf.RequestID != "m-1" {
			t.Errorf("Expected msgId alias, got %q", tf.RequestID)
		}
		if tf.DeviceSN != "SN9" {
			t.Errorf("Expected sn alias to win over serialNumber, got %q", tf.DeviceSN)
		}
		if tf.DeviceMac != "aabbccddeeff" {
			t.Errorf("Expected bare hex mac accepted, got %q", tf.DeviceMac)
		}
		if tf.LinkCode != "LC-2" {
			t.Errorf("Expected link_code alias, got %q", tf.LinkCode)
		}
		if tf.AttemptID != "at-3" {
			t.Errorf("Expected attempt_id alias, got %q", tf.AttemptID)
		}
		if tf.ReasonCode != "5" {
			t.Errorf("Expected reason_code alias, got %q", tf.ReasonCode)
		}
	})

	t.Run("case-insensitive keys", func(t *testing.T) {
		tf := Extract(map[string]any{"Stage": "MQTT", "OP": "publish", "Result": "FAIL"})
		if tf.Stage != "mqtt" || tf.Op != "publish" || tf.Result != "fail" {
			t.Errorf("Expected case-insensitive key match, got %q/%q/%q", tf.Stage, tf.Op, tf.Result)
		}
	})

	t.Run("data sub-object scanned after top level", func(t *testing.T) {
		tf := Extract(map[string]any{
			"linkCode": "outer",
			"data": map[string]any{
				"linkCode": "inner",
				"deviceSn": "SN-sub",
			},
		})
		if tf.LinkCode != "outer" {
			t.Errorf("Top-level match must not be overwritten, got %q", tf.LinkCode)
		}
		if tf.DeviceSN != "SN-sub" {
			t.Errorf("Expected data sub-object fill, got %q", tf.DeviceSN)
		}
	})

	t.Run("invalid mac treated as absent", func(t *testing.T) {
		tf := Extract(map[string]any{"deviceMac": "not-a-mac"})
		if tf.DeviceMac != "" {
			t.Errorf("Expected invalid MAC rejected, got %q", tf.DeviceMac)
		}
	})

	t.Run("numeric error code coerced", func(t *testing.T) {
		tf := Extract(map[string]any{"errorCode": float64(1021)})
		if tf.ErrorCode != "1021" {
			t.Errorf("Expected errorCode=1021, got %q", tf.ErrorCode)
		}
	})

	t.Run("nested error object fallback", func(t *testing.T) {
		tf := Extract(map[string]any{
			"error": map[string]any{"code": float64(77)},
		})
		if tf.ErrorCode != "77" {
			t.Errorf("Expected error.code fallback, got %q", tf.ErrorCode)
		}

		tf = Extract(map[string]any{
			"error": map[string]any{"reason_code": "timeout"},
		})
		if tf.ErrorCode != "timeout" {
			t.Errorf("Expected error.reason_code fallback, got %q", tf.ErrorCode)
		}
	})
}

func TestExtract_SNDerivation(t *testing.T) {
	t.Run("from data topic", func(t *testing.T) {
		tf := Extract(map[string]any{"topic": "data/SN777/stream"})
		if tf.DeviceSN != "SN777" {
			t.Errorf("Expected SN from topic, got %q", tf.DeviceSN)
		}
	})

	t.Run("from data_reply topic", func(t *testing.T) {
		tf := Extract(map[string]any{"topic": "data_reply/SN888/ack"})
		if tf.DeviceSN != "SN888" {
			t.Errorf("Expected SN from data_reply topic, got %q", tf.DeviceSN)
		}
	})

	t.Run("unrelated topic ignored", func(t *testing.T) {
		tf := Extract(map[string]any{"topic": "control/SN999/cmd"})
		if tf.DeviceSN != "" {
			t.Errorf("Expected no SN from unrelated topic, got %q", tf.DeviceSN)
		}
	})

	t.Run("from url query parameter", func(t *testing.T) {
		tf := Extract(map[string]any{"url": "https://api.example.com/v2/upload?sn=SN555&x=1"})
		if tf.DeviceSN != "SN555" {
			t.Errorf("Expected SN from url, got %q", tf.DeviceSN)
		}
	})
}

func TestExtract_StringPayload(t *testing.T) {
	t.Run("json object string re-parsed", func(t *testing.T) {
		tf := Extract(`{"linkCode":"LC-s","requestId":"r1"}`)
		if tf.LinkCode != "LC-s" || tf.RequestID != "r1" {
			t.Errorf("Expected fields from JSON string, got %+v", tf)
		}
	})

	t.Run("free text never mined", func(t *testing.T) {
		tf := Extract("connect failed for linkCode=LC-x")
		if !tf.IsZero() {
			t.Errorf("Expected no fields from free text, got %+v", tf)
		}
	})

	t.Run("string and parsed object equivalent", func(t *testing.T) {
		raw := `{"deviceSn":"SN1","stage":"ble","op":"scan","result":"start"}`
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if Extract(raw) != Extract(obj) {
			t.Errorf("String payload and parsed object must extract identically")
		}
	})
}

func TestExtract_NeverPanics(t *testing.T) {
	payloads := []any{
		nil,
		"",
		"{broken json",
		"[1,2,3]",
		map[string]any{"data": "not-an-object"},
		map[string]any{"error": "not-an-object"},
		json.RawMessage(`"just a string"`),
		json.RawMessage(`{{`),
		[]byte(nil),
		42,
		[]any{"a", "b"},
	}
	for _, p := range payloads {
		tf := Extract(p)
		if p == nil || p == 42 {
			if !tf.IsZero() {
				t.Errorf("Expected zero fields for %v, got %+v", p, tf)
			}
		}
	}
}
