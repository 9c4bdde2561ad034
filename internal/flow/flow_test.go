package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vbonduro/roomcheck/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func TestTypeLabel(t *testing.T) {
	assert.Equal(t, "ROOM", TypeLabel(domain.TaskInspection))
	assert.Equal(t, "FRIDGE", TypeLabel(domain.TaskFridge))
	assert.Equal(t, "PARKING", TypeLabel(domain.TaskCar))
	assert.Equal(t, "PARKING", TypeLabel("car"))
	assert.Equal(t, "LAUNDRY", TypeLabel("LAUNDRY"))
	assert.Equal(t, "", TypeLabel(""))
}

func TestStatusTone(t *testing.T) {
	tests := map[string]Tone{
		"DONE":        ToneDone,
		"COMPLETED":   ToneDone,
		" completed ": ToneDone,
		"PENDING":     TonePending,
		"START":       TonePending,
		"":            TonePending,
		"???":         TonePending,
	}
	for status, want := range tests {
		assert.Equal(t, want, StatusTone(status), "status %q", status)
	}
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, 0, ProgressPercent(domain.FlowSummary{}))
	assert.Equal(t, 33, ProgressPercent(domain.FlowSummary{Progress: ptr(1.0 / 3)}))
	assert.Equal(t, 67, ProgressPercent(domain.FlowSummary{Progress: ptr(2.0 / 3)}))
	assert.Equal(t, 100, ProgressPercent(domain.FlowSummary{Progress: ptr(1.0)}))
}

func TestDueLabel(t *testing.T) {
	tests := []struct {
		name string
		flow domain.FlowSummary
		want string
	}{
		{"overdue without days", domain.FlowSummary{Overdue: ptr(true)}, "overdue by 0 days"},
		{"negative days", domain.FlowSummary{DaysLeft: ptr(-2)}, "overdue by 2 days"},
		{"overdue flag and days", domain.FlowSummary{Overdue: ptr(true), DaysLeft: ptr(-1)}, "overdue by 1 day"},
		{"days left", domain.FlowSummary{DaysLeft: ptr(3)}, "D-3"},
		{"due today", domain.FlowSummary{DaysLeft: ptr(0), Overdue: ptr(false)}, "D-0"},
		{"empty", domain.FlowSummary{}, NoDueLabel},
		{"not overdue no days", domain.FlowSummary{Overdue: ptr(false)}, NoDueLabel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DueLabel(tt.flow))
		})
	}
}

func TestDeriveProgress(t *testing.T) {
	assert.Equal(t, 0.0, DeriveProgress(nil))
	tasks := []domain.Task{
		{TaskID: "1", Type: domain.TaskInspection, Status: "DONE"},
		{TaskID: "2", Type: domain.TaskFridge, Status: "PENDING"},
		{TaskID: "3", Type: domain.TaskCar, Status: "COMPLETED"},
		{TaskID: "4", Type: "LAUNDRY", Status: ""},
	}
	assert.Equal(t, 0.5, DeriveProgress(tasks))
}

func TestSchedule(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, loc)

	future := domain.FlowSummary{DueAt: ptr(time.Date(2026, 3, 13, 9, 0, 0, 0, loc))}
	s := Schedule(future, now)
	assert.Equal(t, 3, *s.DaysLeft)
	assert.False(t, *s.Overdue)
	assert.Equal(t, "D-3", DueLabel(s))

	past := domain.FlowSummary{DueAt: ptr(time.Date(2026, 3, 8, 9, 0, 0, 0, loc))}
	s = Schedule(past, now)
	assert.Equal(t, -2, *s.DaysLeft)
	assert.True(t, *s.Overdue)
	assert.Equal(t, "overdue by 2 days", DueLabel(s))

	kept := domain.FlowSummary{DueAt: future.DueAt, DaysLeft: ptr(7)}
	assert.Equal(t, 7, *Schedule(kept, now).DaysLeft)

	assert.Nil(t, Schedule(domain.FlowSummary{}, now).DaysLeft)
}

func TestEscalated(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	assert.False(t, Escalated(domain.FlowSummary{}, now))
	assert.True(t, Escalated(domain.FlowSummary{EscalateAt: ptr(now.Add(-time.Hour))}, now))
	assert.False(t, Escalated(domain.FlowSummary{EscalateAt: ptr(now.Add(time.Hour))}, now))
}

func TestFromDetail(t *testing.T) {
	s := FromDetail("F1", domain.FlowDetail{OK: true})
	assert.Equal(t, "F1", s.FlowID)
	assert.Nil(t, s.Progress)

	s = FromDetail("F1", domain.FlowDetail{
		OK:    true,
		Flow:  &domain.FlowMeta{RoomID: "B503"},
		Tasks: []domain.Task{{Status: "DONE"}, {Status: "PENDING"}},
	})
	assert.Equal(t, "B503", s.RoomID)
	assert.Equal(t, 50, ProgressPercent(s))

	s = FromDetail("F1", domain.FlowDetail{
		Flow:  &domain.FlowMeta{Progress: ptr(0.9)},
		Tasks: []domain.Task{{Status: "PENDING"}},
	})
	assert.Equal(t, 90, ProgressPercent(s))
}

func TestActionFor(t *testing.T) {
	a := ActionFor(domain.Task{TaskID: "t1", Type: domain.TaskInspection})
	assert.Equal(t, OpenInspection{TaskID: "t1"}, a)

	for _, typ := range []domain.TaskType{domain.TaskFridge, domain.TaskCar, "LAUNDRY", ""} {
		a := ActionFor(domain.Task{TaskID: "t2", Type: typ})
		ni, ok := a.(NotImplemented)
		if assert.True(t, ok, "type %q", typ) {
			assert.NotEmpty(t, ni.Message)
		}
	}
}

func TestInboxViews(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	views := Inbox([]domain.FlowSummary{
		{FlowID: "A", RoomID: "B503", Progress: ptr(0.5), DaysLeft: ptr(2), Tasks: []domain.Task{{TaskID: "1", Type: domain.TaskInspection, Status: "DONE"}}},
		{FlowID: "B"},
	}, now)

	assert.Len(t, views, 2)
	assert.Equal(t, 50, views[0].ProgressPercent)
	assert.Equal(t, "D-2", views[0].DueLabel)
	assert.Equal(t, "ROOM", views[0].Tasks[0].Label)
	assert.Equal(t, ToneDone, views[0].Tasks[0].Tone)
	assert.Equal(t, NoDueLabel, views[1].DueLabel)
	assert.Equal(t, 0, views[1].ProgressPercent)
	assert.NotNil(t, views[1].Tasks)
}
