// Package flow derives presentation and scheduling metrics for move-event
// flows and the tasks they bundle. Every function is total: missing fields
// fall back to neutral values instead of failing.
package flow

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/vbonduro/roomcheck/internal/domain"
)

// NoDueLabel is shown when a flow carries no schedule information.
const NoDueLabel = "-"

var typeLabels = map[domain.TaskType]string{
	domain.TaskInspection: "ROOM",
	domain.TaskFridge:     "FRIDGE",
	domain.TaskCar:        "PARKING",
}

// TypeLabel returns the short display tag for t. Unknown types pass through.
func TypeLabel(t domain.TaskType) string {
	if l, ok := typeLabels[normalize(string(t))]; ok {
		return l
	}
	return string(t)
}

// Tone classifies a task status for presentation.
type Tone string

const (
	ToneDone    Tone = "done"
	TonePending Tone = "pending"
)

// StatusTone reports whether status is done-like. It is defined for every
// string, including the empty one.
func StatusTone(status string) Tone {
	if IsDone(status) {
		return ToneDone
	}
	return TonePending
}

func IsDone(status string) bool {
	switch normalize(status) {
	case "DONE", "COMPLETED":
		return true
	}
	return false
}

func normalize(s string) domain.TaskType {
	return domain.TaskType(strings.ToUpper(strings.TrimSpace(s)))
}

// ProgressPercent is round(100 * progress); an absent progress counts as 0.
func ProgressPercent(f domain.FlowSummary) int {
	if f.Progress == nil {
		return 0
	}
	p := *f.Progress
	if math.IsNaN(p) {
		return 0
	}
	return int(math.Round(100 * p))
}

// DueLabel renders the flow's deadline state.
func DueLabel(f domain.FlowSummary) string {
	overdue := f.Overdue != nil && *f.Overdue
	if overdue || (f.DaysLeft != nil && *f.DaysLeft < 0) {
		days := 0
		if f.DaysLeft != nil {
			days = abs(*f.DaysLeft)
		}
		return fmt.Sprintf("overdue by %d %s", days, plural(days, "day", "days"))
	}
	if f.DaysLeft != nil {
		return fmt.Sprintf("D-%d", *f.DaysLeft)
	}
	return NoDueLabel
}

// DeriveProgress is the fraction of tasks whose status is done-like. A flow
// with no tasks has progress 0.
func DeriveProgress(tasks []domain.Task) float64 {
	if len(tasks) == 0 {
		return 0
	}
	done := 0
	for _, t := range tasks {
		if IsDone(t.Status) {
			done++
		}
	}
	return float64(done) / float64(len(tasks))
}

// Schedule fills DaysLeft and Overdue from DueAt when the backend omitted
// them. Days are counted between calendar dates in now's location.
func Schedule(f domain.FlowSummary, now time.Time) domain.FlowSummary {
	if f.DueAt == nil {
		return f
	}
	if f.DaysLeft == nil {
		d := daysBetween(now, *f.DueAt)
		f.DaysLeft = &d
	}
	if f.Overdue == nil {
		o := now.After(*f.DueAt)
		f.Overdue = &o
	}
	return f
}

// Escalated reports whether the flow's escalation date has passed.
func Escalated(f domain.FlowSummary, now time.Time) bool {
	return f.EscalateAt != nil && now.After(*f.EscalateAt)
}

// FromDetail builds a summary from a flow detail lookup, deriving progress
// from the task list when the header lacks it.
func FromDetail(flowID string, d domain.FlowDetail) domain.FlowSummary {
	s := domain.FlowSummary{FlowID: flowID, Tasks: d.Tasks}
	if d.Flow != nil {
		if d.Flow.FlowID != "" {
			s.FlowID = d.Flow.FlowID
		}
		s.RoomID = d.Flow.RoomID
		s.DueAt = d.Flow.DueAt
		s.EscalateAt = d.Flow.EscalateAt
		s.Progress = d.Flow.Progress
	}
	if s.Progress == nil && len(d.Tasks) > 0 {
		p := DeriveProgress(d.Tasks)
		s.Progress = &p
	}
	return s
}

func daysBetween(from, to time.Time) int {
	loc := from.Location()
	fy, fm, fd := from.Date()
	ty, tm, td := to.In(loc).Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
