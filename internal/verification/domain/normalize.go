package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PayloadKind is the shape of a get_verifications result.
type PayloadKind int

const (
	// PayloadUnrecognized is anything that is not a sequence or a string:
	// null, an object, a number, or bytes that are not JSON at all.
	PayloadUnrecognized PayloadKind = iota
	// PayloadMappingSequence is a sequence holding at least one key/value
	// mapping, encoded on the wire as a list of [key, value] pairs.
	PayloadMappingSequence
	// PayloadPlainSequence is a sequence of already record-shaped objects.
	PayloadPlainSequence
	// PayloadJSONString is a string carrying a JSON-encoded sequence.
	PayloadJSONString
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadMappingSequence:
		return "mapping_sequence"
	case PayloadPlainSequence:
		return "plain_sequence"
	case PayloadJSONString:
		return "json_string"
	default:
		return "unrecognized"
	}
}

// RawPayload is a classified contract result.
type RawPayload struct {
	Kind     PayloadKind
	elements []any
	text     string
}

// Len returns the number of sequence elements, or 0 for non-sequences.
func (p RawPayload) Len() int {
	return len(p.elements)
}

// ClassifyPayload decodes raw and tags its shape. It never fails; bytes
// that do not decode are PayloadUnrecognized.
func ClassifyPayload(raw json.RawMessage) RawPayload {
	v, err := decode(raw)
	if err != nil {
		return RawPayload{Kind: PayloadUnrecognized}
	}
	switch t := v.(type) {
	case []any:
		kind := PayloadPlainSequence
		for _, el := range t {
			if _, ok := asMapping(el); ok {
				kind = PayloadMappingSequence
				break
			}
		}
		return RawPayload{Kind: kind, elements: t}
	case string:
		return RawPayload{Kind: PayloadJSONString, text: t}
	default:
		return RawPayload{Kind: PayloadUnrecognized}
	}
}

// Normalize converts a raw contract result into the canonical sequence, in
// source order. Unusable shapes yield an empty, non-nil slice.
func Normalize(raw json.RawMessage) []Record {
	return ClassifyPayload(raw).Records()
}

// Records converts the payload into records.
func (p RawPayload) Records() []Record {
	switch p.Kind {
	case PayloadMappingSequence, PayloadPlainSequence:
		return fromSequence(p.elements)
	case PayloadJSONString:
		v, err := decode([]byte(p.text))
		if err != nil {
			return []Record{}
		}
		seq, ok := v.([]any)
		if !ok {
			return []Record{}
		}
		return fromSequence(seq)
	case PayloadUnrecognized:
		return []Record{}
	default:
		return []Record{}
	}
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

// fromSequence keeps one record per element so the count is preserved.
// Elements that are neither mappings nor objects become empty records.
func fromSequence(seq []any) []Record {
	out := make([]Record, 0, len(seq))
	for _, el := range seq {
		if m, ok := asMapping(el); ok {
			out = append(out, recordFromFields(m))
			continue
		}
		if obj, ok := el.(map[string]any); ok {
			out = append(out, recordFromFields(obj))
			continue
		}
		out = append(out, Record{})
	}
	return out
}

// asMapping flattens a [[key, value], ...] pair list. Every entry must be a
// two-element list with a string key, and the list must be non-empty.
func asMapping(v any) (map[string]any, bool) {
	pairs, ok := v.([]any)
	if !ok || len(pairs) == 0 {
		return nil, false
	}
	m := make(map[string]any, len(pairs))
	for _, p := range pairs {
		kv, ok := p.([]any)
		if !ok || len(kv) != 2 {
			return nil, false
		}
		k, ok := kv[0].(string)
		if !ok {
			return nil, false
		}
		m[k] = kv[1]
	}
	return m, true
}

func recordFromFields(f map[string]any) Record {
	return Record{
		URL:           text(f["url"]),
		Timestamp:     text(f["timestamp"]),
		StatusCode:    integer(f["status_code"]),
		IsAccessible:  truthy(f["is_accessible"]),
		ErrorMessage:  text(f["error_message"]),
		Query:         text(f["query"]),
		ContentFound:  truthy(f["content_found"]),
		ConciseAnswer: text(f["concise_answer"]),
		Analysis:      text(f["analysis"]),
	}
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func integer(v any) int {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		if f, err := t.Float64(); err == nil {
			return int(f)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return i
		}
	case bool:
		if t {
			return 1
		}
	}
	return 0
}

// truthy maps a field to a tri-state boolean: nil when the field is absent,
// otherwise the value's truthiness (non-zero numbers, non-empty strings).
func truthy(v any) *bool {
	var b bool
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		b = t
	case json.Number:
		f, err := t.Float64()
		b = err == nil && f != 0
	case string:
		b = t != ""
	default:
		b = true
	}
	return &b
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parseTimestamp accepts ISO-8601 variants and Unix epochs in seconds or
// milliseconds. Anything else is the Unix epoch.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Unix(0, 0).UTC()
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f > 1e12 {
			return time.UnixMilli(int64(f)).UTC()
		}
		return time.Unix(int64(f), 0).UTC()
	}
	return time.Unix(0, 0).UTC()
}
