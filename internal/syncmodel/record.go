package syncmodel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Record is the decoded JSON payload of one syncable row. The server is the
// source of truth for "id" and "updated_at"; everything else is
// table-specific and validated against the registry column set at the
// storage boundary.
type Record map[string]any

// localOnlyFields are client bookkeeping keys that must never reach the
// server store.
var localOnlyFields = []string{"synced_at", "is_dirty", "local_id"}

// ID returns the record's "id" field, or "" if absent.
func (r Record) ID() string {
	return r.GetString("id")
}

// GetString returns the named field as a string, or "" when the field is
// missing or not a string.
func (r Record) GetString(key string) string {
	if r == nil {
		return ""
	}
	s, _ := r[key].(string)
	return s
}

// Clone returns a shallow copy safe to mutate during reconciliation.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// StripLocalFields removes client-side bookkeeping keys in place.
func (r Record) StripLocalFields() {
	for _, f := range localOnlyFields {
		delete(r, f)
	}
}

// NormalizeTimestamps rewrites the given timestamp columns to UTC time
// values, accepting whatever representation the client used on the wire.
// Null values are preserved as null.
func (r Record) NormalizeTimestamps(fields []string) error {
	for _, f := range fields {
		v, ok := r[f]
		if !ok || v == nil {
			continue
		}
		t, err := AsTime(v)
		if err != nil {
			return fmt.Errorf("field %q: %w", f, err)
		}
		r[f] = t
	}
	return nil
}

// UpdatedAt returns the record's normalized updated_at, if parseable.
func (r Record) UpdatedAt() (time.Time, bool) {
	v, ok := r["updated_at"]
	if !ok || v == nil {
		return time.Time{}, false
	}
	t, err := AsTime(v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// AsTime converts a wire-format timestamp to UTC. Clients send either
// millisecond epochs (JSON numbers or numeric strings) or RFC 3339 strings;
// the server always works with time values internally.
func AsTime(v any) (time.Time, error) {
	switch value := v.(type) {
	case time.Time:
		return value.UTC(), nil
	case float64:
		return time.UnixMilli(int64(value)).UTC(), nil
	case int64:
		return time.UnixMilli(value).UTC(), nil
	case int:
		return time.UnixMilli(int64(value)).UTC(), nil
	case json.Number:
		ms, err := value.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp number: %v", value)
		}
		return time.UnixMilli(ms).UTC(), nil
	case string:
		if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
			return t.UTC(), nil
		}
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("invalid timestamp string: %q", value)
	default:
		return time.Time{}, fmt.Errorf("invalid timestamp type %T", v)
	}
}
