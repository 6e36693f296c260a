package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// ModeKind selects how a sync resolves its starting point.
type ModeKind int

const (
	// Full ignores the last-sync date and pulls from offset 0.
	Full ModeKind = iota
	// Incremental pulls records updated since the last sync,
	// expanded backward by the rolling window, resuming any
	// in-progress attempt.
	Incremental
	// DaysWindow pulls records updated in the last N days with an
	// early pagination exit at the cutoff.
	DaysWindow
	// Retry resumes a specific earlier attempt under its recorded
	// mode.
	Retry
)

// Mode is a resolved sync request.
type Mode struct {
	Kind   ModeKind
	Days   int    // DaysWindow only
	SyncID string // Retry only
}

// Encode serializes the mode for the progress record, so a retry can
// reuse it.
func (m Mode) Encode() string {
	switch m.Kind {
	case Full:
		return "full"
	case Incremental:
		return "incremental"
	case DaysWindow:
		return fmt.Sprintf("days_window:%d", m.Days)
	case Retry:
		return "retry"
	}
	return "incremental"
}

func (m Mode) String() string { return m.Encode() }

// DecodeMode parses a recorded mode. Unknown or empty input falls
// back to incremental, the safest resume semantics.
func DecodeMode(s string) Mode {
	switch {
	case s == "full":
		return Mode{Kind: Full}
	case strings.HasPrefix(s, "days_window:"):
		n, err := strconv.Atoi(strings.TrimPrefix(s, "days_window:"))
		if err != nil || n <= 0 {
			return Mode{Kind: Incremental}
		}
		return Mode{Kind: DaysWindow, Days: n}
	default:
		return Mode{Kind: Incremental}
	}
}
