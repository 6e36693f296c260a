package vendorapi

import (
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
		ok    bool
	}{
		{
			name:  "space separated",
			input: "2025-03-04 17:08:09",
			want:  time.Date(2025, 3, 4, 17, 8, 9, 0, time.UTC),
			ok:    true,
		},
		{
			name:  "rfc3339",
			input: "2025-03-04T17:08:09Z",
			want:  time.Date(2025, 3, 4, 17, 8, 9, 0, time.UTC),
			ok:    true,
		},
		{
			name:  "t separated without zone",
			input: "2025-03-04T17:08:09",
			want:  time.Date(2025, 3, 4, 17, 8, 9, 0, time.UTC),
			ok:    true,
		},
		{
			name:  "date only",
			input: "2025-03-04",
			want:  time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC),
			ok:    true,
		},
		{name: "empty", input: "", ok: false},
		{name: "garbage", input: "last tuesday", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTime(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParseTime(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatSince(t *testing.T) {
	in := time.Date(2025, 3, 4, 18, 8, 9, 0, time.FixedZone("CET", 3600))
	if got := FormatSince(in); got != "2025-03-04 17:08:09" {
		t.Errorf("FormatSince() = %q, want %q", got, "2025-03-04 17:08:09")
	}
}

func TestRecordAccessors(t *testing.T) {
	rec := Record{
		"name":   "widget",
		"id":     float64(42),
		"nested": map[string]any{"iduser": float64(7)},
		"items":  []any{"a", "b"},
		"numstr": "42",
	}

	if s, ok := rec.Str("name"); !ok || s != "widget" {
		t.Errorf("Str(name) = (%q, %v)", s, ok)
	}
	if _, ok := rec.Str("id"); ok {
		t.Error("Str(id) should reject a number")
	}
	if n, ok := rec.Int64("id"); !ok || n != 42 {
		t.Errorf("Int64(id) = (%d, %v)", n, ok)
	}
	if _, ok := rec.Int64("numstr"); ok {
		t.Error("Int64 should reject numeric strings")
	}
	if m, ok := rec.Map("nested"); !ok {
		t.Error("Map(nested) not found")
	} else if n, _ := m.Int64("iduser"); n != 7 {
		t.Errorf("nested iduser = %d, want 7", n)
	}
	if s, ok := rec.Slice("items"); !ok || len(s) != 2 {
		t.Errorf("Slice(items) = (%v, %v)", s, ok)
	}
	if _, ok := rec.Int64("absent"); ok {
		t.Error("Int64(absent) should be not-ok")
	}
}

func TestUpdatedAtFieldFallback(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want time.Time
	}{
		{
			name: "updated_at",
			rec:  Record{"updated_at": "2025-03-04 10:00:00"},
			want: time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "updated",
			rec:  Record{"updated": "2025-03-04 10:00:00"},
			want: time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "updated_at_utc",
			rec:  Record{"updated_at_utc": "2025-03-04 10:00:00"},
			want: time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
		},
		{name: "absent", rec: Record{"name": "x"}, want: time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.UpdatedAt(); !got.Equal(tt.want) {
				t.Errorf("UpdatedAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSortByUpdatedDescIsStable(t *testing.T) {
	recs := []Record{
		{"id": float64(1), "updated": "2025-03-01 10:00:00"},
		{"id": float64(2)}, // no timestamp, sorts last
		{"id": float64(3), "updated": "2025-03-03 10:00:00"},
		{"id": float64(4)}, // keeps relative order with id 2
	}

	SortByUpdatedDesc(recs)

	var ids []int64
	for _, r := range recs {
		id, _ := r.Int64("id")
		ids = append(ids, id)
	}
	want := []int64{3, 1, 2, 4}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
}
