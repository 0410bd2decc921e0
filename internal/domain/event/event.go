package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Envelope is the decoded upstream event. The producer publishes CloudEvent
// style JSON; only id and subject/type are load-bearing, everything else is
// reached into dynamically because payload shapes vary per producer version.
type Envelope struct {
	ID      string
	Subject string
	Source  string
	Raw     map[string]any
}

// Decode parses a broker payload into an Envelope. It fails on empty or
// non-object payloads; field-level requirements are checked by Validate.
func Decode(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode event payload: %w", err)
	}

	subject, _ := raw["subject"].(string)
	if subject == "" {
		subject, _ = raw["type"].(string)
	}

	id, _ := raw["id"].(string)
	source, _ := raw["source"].(string)

	return &Envelope{
		ID:      id,
		Subject: subject,
		Source:  source,
		Raw:     raw,
	}, nil
}

// Validate checks the envelope fields required before the event may enter
// the inbox: a non-empty id and a non-empty subject.
func (e *Envelope) Validate() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.ID, validation.Required),
		validation.Field(&e.Subject, validation.Required),
	)
}

// Dig walks a dot-delimited path through nested JSON objects.
// Returns nil when any segment is missing or not an object.
func (e *Envelope) Dig(path string) any {
	var cur any = e.Raw
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[key]
		if !ok {
			return nil
		}
	}
	return cur
}

// DigMap is Dig constrained to an object value.
func (e *Envelope) DigMap(path string) map[string]any {
	m, _ := e.Dig(path).(map[string]any)
	return m
}

// FirstMap returns the first path that resolves to an object.
func (e *Envelope) FirstMap(paths ...string) map[string]any {
	for _, p := range paths {
		if m := e.DigMap(p); m != nil {
			return m
		}
	}
	return nil
}

// First returns the first path that resolves to a non-nil value.
func (e *Envelope) First(paths ...string) any {
	for _, p := range paths {
		if v := e.Dig(p); v != nil {
			return v
		}
	}
	return nil
}

// AsInt normalizes upstream ids that arrive as JSON numbers or numeric
// strings. Anything else normalizes to 0 and is rejected by id guards.
func AsInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return i
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
	}
	return 0
}

// DeltaString extracts the new value for one field of a changed_fields
// delta map. Supported shapes:
//
//	changed["field"] = {"from": X, "to": Y}
//	changed["field"] = "bare value"
//
// Returns nil when the key is absent, the value is not scalar, or the
// resulting string is empty after trimming.
func DeltaString(changed map[string]any, field string) *string {
	v, ok := changed[field]
	if !ok {
		return nil
	}

	if pair, ok := v.(map[string]any); ok {
		to, ok := pair["to"]
		if !ok {
			return nil
		}
		return scalarString(to)
	}

	return scalarString(v)
}

// DeltaMap extracts the new object value for one field of a changed_fields
// delta map. The bool reports key presence; a present key with a non-object
// new value yields an empty map.
func DeltaMap(changed map[string]any, field string) (map[string]any, bool) {
	v, ok := changed[field]
	if !ok {
		return nil, false
	}

	if pair, ok := v.(map[string]any); ok {
		if to, ok := pair["to"]; ok {
			if m, ok := to.(map[string]any); ok {
				return m, true
			}
			return map[string]any{}, true
		}
	}

	return map[string]any{}, true
}

func scalarString(v any) *string {
	switch s := v.(type) {
	case string:
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			return nil
		}
		return &trimmed
	case float64:
		out := strconv.FormatFloat(s, 'f', -1, 64)
		return &out
	case bool:
		out := strconv.FormatBool(s)
		return &out
	}
	return nil
}

// StringAt reads a string field from an object, with a default.
func StringAt(m map[string]any, key, fallback string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return fallback
}
