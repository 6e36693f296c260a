package progress

import (
	"strings"
	"testing"
)

func TestNewSyncIDShape(t *testing.T) {
	id := NewSyncID("products")

	parts := strings.Split(id, "-")
	if len(parts) != 3 {
		t.Fatalf("NewSyncID() = %q, want 3 dash-separated parts", id)
	}
	if parts[0] != "products" {
		t.Errorf("prefix = %q, want products", parts[0])
	}
	if len(parts[2]) != 8 {
		t.Errorf("suffix = %q, want 8 characters", parts[2])
	}

	if NewSyncID("products") == id {
		t.Error("consecutive sync ids should differ")
	}
}

func TestEntityFromSyncID(t *testing.T) {
	tests := []struct {
		name   string
		syncID string
		want   string
		ok     bool
	}{
		{name: "round trip", syncID: NewSyncID("picklists"), want: "picklists", ok: true},
		{name: "explicit", syncID: "users-1700000000-abcd1234", want: "users", ok: true},
		{name: "no dash", syncID: "nodashes", ok: false},
		{name: "empty", syncID: "", ok: false},
		{name: "leading dash", syncID: "-123-abc", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EntityFromSyncID(tt.syncID)
			if ok != tt.ok {
				t.Fatalf("EntityFromSyncID(%q) ok = %v, want %v", tt.syncID, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("EntityFromSyncID(%q) = %q, want %q", tt.syncID, got, tt.want)
			}
		})
	}
}
