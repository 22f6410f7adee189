package spaced_repetition

import (
	"encoding"
	"fmt"
	"time"

	"github.com/example/reviewalarm/pkg/models"
)

// StatusKind is the review state of an item. It is never stored; it is
// derived from the item's schedule log.
type StatusKind int

const (
	NoSchedule StatusKind = iota
	Pending
	Mastered
)

var statusNames = [...]string{NoSchedule: "no_schedule", Pending: "pending", Mastered: "mastered"}

var (
	_ fmt.Stringer           = StatusKind(0)
	_ encoding.TextMarshaler = StatusKind(0)
)

func (k StatusKind) String() string {
	if k >= NoSchedule && k <= Mastered {
		return statusNames[k]
	}
	return fmt.Sprintf("StatusKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler
func (k StatusKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Status is the derived review state of one knowledge item
type Status struct {
	Kind        StatusKind `json:"kind"`
	Stage       int        `json:"stage"`
	DueAt       time.Time  `json:"due_at,omitempty"`
	ScheduleID  int64      `json:"schedule_id,omitempty"`
	Completions int        `json:"completions"`
}

// DeriveStatus folds a schedule log into a Status. Completion always writes
// the next open schedule in the same transaction unless the item was
// mastered, so a non-empty log with nothing open means mastered.
func DeriveStatus(history []models.ReviewSchedule) Status {
	if len(history) == 0 {
		return Status{Kind: NoSchedule}
	}

	st := Status{Kind: Mastered}
	for _, s := range history {
		if s.Completed {
			st.Completions++
			if st.Kind == Mastered {
				st.Stage = s.Stage
			}
			continue
		}
		st.Kind = Pending
		st.Stage = s.Stage
		st.DueAt = s.DueAt
		st.ScheduleID = s.ID
	}
	return st
}

// StartOfDay truncates t to midnight in t's location
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
