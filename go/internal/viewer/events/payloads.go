package events

import (
	"time"

	"github.com/mcdev12/deckcast/go/internal/viewer/pointer"
	"github.com/mcdev12/deckcast/go/internal/viewer/timer"
)

// SyncPayload is the payload for a sync event
type SyncPayload struct {
	CurrentPage int     `json:"current_page"`
	NumPages    *int    `json:"num_pages,omitempty"`
	LockedBy    *string `json:"locked_by"`
}

// ResetPayload is the payload for a reset event. A nil page means page 1.
type ResetPayload struct {
	CurrentPage *int `json:"current_page,omitempty"`
}

// PDFChangedPayload is the payload for a pdf_changed event
type PDFChangedPayload struct {
	URL string `json:"url"`
}

// PointerUpdatePayload is the payload for a pointer_update event. The
// coordinates are pointers so that a message missing one is detectable.
type PointerUpdatePayload struct {
	X    *float64 `json:"x"`
	Y    *float64 `json:"y"`
	Page int      `json:"page"`
}

// Update converts the payload, reporting false when a coordinate is missing.
func (p PointerUpdatePayload) Update() (pointer.Update, bool) {
	if p.X == nil || p.Y == nil {
		return pointer.Update{}, false
	}
	return pointer.Update{X: *p.X, Y: *p.Y, Page: p.Page}, true
}

// PointerHidePayload is the payload for a pointer_hide event
type PointerHidePayload struct {
	Room string `json:"room,omitempty"`
}

// TimerUpdatePayload is the payload for a timer_update event. Timestamps are
// server epoch seconds.
type TimerUpdatePayload struct {
	Running   bool     `json:"running"`
	ElapsedMS int64    `json:"elapsed_ms"`
	StartTS   *float64 `json:"start_ts"`
	ServerNow float64  `json:"server_now"`
}

// Snapshot converts the payload for the synced timer.
func (p TimerUpdatePayload) Snapshot() timer.Snapshot {
	s := timer.Snapshot{
		Running:     p.Running,
		Accumulated: time.Duration(p.ElapsedMS) * time.Millisecond,
		ServerNow:   fromEpoch(p.ServerNow),
	}
	if p.StartTS != nil {
		start := fromEpoch(*p.StartTS)
		s.ServerStart = &start
	}
	return s
}

// LockDeniedPayload is the payload for a lock_denied event
type LockDeniedPayload struct {
	LockedBy string `json:"locked_by"`
}

// RoomPayload is the payload for join, lock, unlock, force_unlock,
// pointer_hide and the timer controls.
type RoomPayload struct {
	Room string `json:"room"`
}

// StepPayload is the payload for a step event
type StepPayload struct {
	Room  string `json:"room"`
	Delta int    `json:"delta"`
}

// GotoPayload is the payload for a goto event
type GotoPayload struct {
	Room string `json:"room"`
	Page int    `json:"page"`
}

// PointerMovePayload is the payload for a pointer_move event
type PointerMovePayload struct {
	Room string  `json:"room"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Page int     `json:"page"`
}

// ReportNumPagesPayload is the payload for a report_num_pages event
type ReportNumPagesPayload struct {
	Room     string `json:"room"`
	NumPages int    `json:"num_pages"`
}

// fromEpoch returns the zero time for a zero timestamp.
func fromEpoch(sec float64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(sec*float64(time.Second)))
}
