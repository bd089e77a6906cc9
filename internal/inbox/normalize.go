// Package inbox turns provider inbox payloads into uniform inbound records.
//
// The provider does not commit to a response schema: the message list may be
// wrapped under "messages" or "data" or be the top-level array, and every
// message attribute has several accepted names.
package inbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/LeventeLantos/message-sync/internal/model"
)

const UnknownSender = "Unknown"

var (
	listKeys   = []string{"messages", "data"}
	bodyKeys   = []string{"message", "text", "body"}
	senderKeys = []string{"sender", "from", "phone"}
	timeKeys   = []string{"timestamp", "time", "date"}
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02",
}

// Normalize extracts inbound records from a raw provider payload. A payload
// that decodes but matches none of the known shapes yields no records.
func Normalize(payload []byte) ([]model.InboundRecord, error) {
	return normalizeAt(payload, time.Now().UTC())
}

func normalizeAt(payload []byte, now time.Time) ([]model.InboundRecord, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode inbox payload: %w", err)
	}

	items := messageList(root)
	out := make([]model.InboundRecord, 0, len(items))
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, record(obj, now))
	}
	return out, nil
}

func messageList(root any) []any {
	switch v := root.(type) {
	case []any:
		return v
	case map[string]any:
		for _, k := range listKeys {
			if arr, ok := v[k].([]any); ok {
				return arr
			}
		}
	}
	return nil
}

func record(obj map[string]any, now time.Time) model.InboundRecord {
	rec := model.InboundRecord{
		Body:   firstString(obj, bodyKeys),
		Sender: firstString(obj, senderKeys),
		Time:   now,
	}
	if rec.Sender == "" {
		rec.Sender = UnknownSender
	}
	if raw := firstValue(obj, timeKeys); raw != nil {
		if ts, ok := parseTime(raw); ok {
			rec.Time = ts
			rec.HasTime = true
		}
	}
	return rec
}

// firstValue returns the first alias holding a scalar. Objects, arrays and
// empty strings are passed over so a later alias can still match.
func firstValue(obj map[string]any, keys []string) any {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number, bool:
			return v
		}
	}
	return nil
}

func firstString(obj map[string]any, keys []string) string {
	switch v := firstValue(obj, keys).(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case json.Number:
		return parseEpoch(t.String())
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
		return parseEpoch(s)
	}
	return time.Time{}, false
}

// parseEpoch accepts unix seconds or milliseconds.
func parseEpoch(s string) (time.Time, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return time.Time{}, false
	}
	if f >= 1e12 {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC(), true
}
