package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical encodes one event as canonical JSON: object keys sorted,
// strings NFC-normalized, no HTML escaping, no insignificant whitespace.
// Empty session, zero subject and empty detail are omitted.
//
// Golden trace files and the trace store both use this encoding, so two
// runs of the same scenario compare byte for byte.
func MarshalCanonical(e Event) ([]byte, error) {
	fields := map[string]any{
		"seq":  e.Seq,
		"kind": string(e.Kind),
	}
	if e.Session != "" {
		fields["session"] = e.Session
	}
	if e.Subject != 0 {
		fields["subject"] = e.Subject
	}
	if e.Detail != "" {
		fields["detail"] = e.Detail
	}
	return marshalObject(fields)
}

// MarshalLines encodes events as newline-terminated canonical JSON lines.
func MarshalLines(events []Event) ([]byte, error) {
	var buf bytes.Buffer
	for i, e := range events {
		line, err := MarshalCanonical(e)
		if err != nil {
			return nil, fmt.Errorf("event[%d]: %w", i, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// UnmarshalLines decodes the output of MarshalLines.
func UnmarshalLines(data []byte) ([]Event, error) {
	var events []Event
	for i, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		events = append(events, e)
	}
	return events, nil
}

func marshalObject(fields map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	// Keys are ASCII, so byte order equals UTF-16 code unit order.
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalString(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := marshalValue(fields[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case string:
		return marshalString(val)
	case int64:
		return []byte(fmt.Sprintf("%d", val)), nil
	case uint64:
		return []byte(fmt.Sprintf("%d", val)), nil
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// marshalString NFC-normalizes s and encodes it without HTML escaping.
func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
