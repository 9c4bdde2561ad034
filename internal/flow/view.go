package flow

import (
	"time"

	"github.com/vbonduro/roomcheck/internal/domain"
)

type TaskView struct {
	TaskID string `json:"taskId"`
	Type   string `json:"type"`
	Label  string `json:"label"`
	Status string `json:"status"`
	Tone   Tone   `json:"tone"`
}

// View is the presentation-ready form of a flow summary.
type View struct {
	FlowID          string     `json:"flowId"`
	RoomID          string     `json:"roomId"`
	Tasks           []TaskView `json:"tasks"`
	ProgressPercent int        `json:"progressPercent"`
	DueLabel        string     `json:"dueLabel"`
	Overdue         bool       `json:"overdue"`
	Escalated       bool       `json:"escalated"`
	DueAt           *time.Time `json:"dueAt,omitempty"`
}

func NewView(f domain.FlowSummary, now time.Time) View {
	f = Schedule(f, now)
	tasks := make([]TaskView, 0, len(f.Tasks))
	for _, t := range f.Tasks {
		tasks = append(tasks, TaskView{
			TaskID: t.TaskID,
			Type:   string(t.Type),
			Label:  TypeLabel(t.Type),
			Status: t.Status,
			Tone:   StatusTone(t.Status),
		})
	}
	return View{
		FlowID:          f.FlowID,
		RoomID:          f.RoomID,
		Tasks:           tasks,
		ProgressPercent: ProgressPercent(f),
		DueLabel:        DueLabel(f),
		Overdue:         (f.Overdue != nil && *f.Overdue) || (f.DaysLeft != nil && *f.DaysLeft < 0),
		Escalated:       Escalated(f, now),
		DueAt:           f.DueAt,
	}
}

// Inbox converts a list of flows, preserving order.
func Inbox(flows []domain.FlowSummary, now time.Time) []View {
	out := make([]View, 0, len(flows))
	for _, f := range flows {
		out = append(out, NewView(f, now))
	}
	return out
}
