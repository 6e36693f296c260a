package vendorapi

import (
	"sort"
	"time"
)

// Record is one decoded API object. The vendor's payloads are loose
// key/value bags; typed extraction happens in the mapper.
type Record map[string]any

// timeLayouts are the datetime forms observed in vendor payloads.
// The list API uses "2006-01-02 15:04:05"; some detail payloads use
// RFC3339 variants.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses a vendor datetime string. Returns the zero time
// and false for absent or unparseable values.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatSince serializes t for the updated_since query parameter:
// "YYYY-MM-DD HH:MM:SS" in UTC, space separated (not RFC3339 "T").
func FormatSince(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

// Str safely extracts a string value.
func (r Record) Str(k string) (string, bool) {
	if v, ok := r[k]; ok {
		if s, ok2 := v.(string); ok2 {
			return s, true
		}
	}
	return "", false
}

// Int64 safely extracts an integer value. JSON numbers decode as
// float64; numeric strings are not accepted.
func (r Record) Int64(k string) (int64, bool) {
	switch v := r[k].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// Map safely extracts a nested object.
func (r Record) Map(k string) (Record, bool) {
	if v, ok := r[k]; ok {
		if m, ok2 := v.(map[string]any); ok2 {
			return Record(m), true
		}
	}
	return nil, false
}

// Slice safely extracts an array value.
func (r Record) Slice(k string) ([]any, bool) {
	if v, ok := r[k]; ok {
		if s, ok2 := v.([]any); ok2 {
			return s, true
		}
	}
	return nil, false
}

// Time extracts and parses a datetime field.
func (r Record) Time(k string) (time.Time, bool) {
	s, ok := r.Str(k)
	if !ok {
		return time.Time{}, false
	}
	return ParseTime(s)
}

// UpdatedAt returns the record's update timestamp, trying the field
// names the vendor uses across entities. Zero time when absent.
func (r Record) UpdatedAt() time.Time {
	for _, k := range []string{"updated_at", "updated", "updated_at_utc"} {
		if t, ok := r.Time(k); ok {
			return t
		}
	}
	return time.Time{}
}

// SortByUpdatedDesc orders records newest-first by their update
// timestamp. Upstream ordering is never relied upon; every page is
// re-sorted before cutoff tests and writes.
func SortByUpdatedDesc(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].UpdatedAt().After(recs[j].UpdatedAt())
	})
}
