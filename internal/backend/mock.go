package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vbonduro/roomcheck/internal/domain"
	"github.com/vbonduro/roomcheck/internal/inspection"
)

// MockBackend is an in-memory backend for demos and tests. Unknown flows
// resolve to an open session whose room is the last "-" separated segment of
// the flow identifier.
type MockBackend struct {
	mu          sync.Mutex
	openStatus  string
	sessions    map[string]domain.Session
	details     map[string]domain.FlowDetail
	submissions []inspection.Payload
	now         func() time.Time
}

// NewMockBackend returns a mock whose unknown flows report openStatus.
func NewMockBackend(openStatus string) *MockBackend {
	return &MockBackend{
		openStatus: openStatus,
		sessions:   make(map[string]domain.Session),
		details:    make(map[string]domain.FlowDetail),
		now:        time.Now,
	}
}

// SetSession overrides the lookup result for s.FlowID.
func (m *MockBackend) SetSession(s domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.FlowID] = s
}

// SetFlowDetail overrides the flow detail for flowID.
func (m *MockBackend) SetFlowDetail(flowID string, d domain.FlowDetail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[flowID] = d
}

func (m *MockBackend) Resolve(ctx context.Context, flowID string) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[flowID]; ok {
		return s, nil
	}
	return m.defaultSession(flowID), nil
}

func (m *MockBackend) defaultSession(flowID string) domain.Session {
	room := flowID
	if i := strings.LastIndexByte(flowID, '-'); i >= 0 && i < len(flowID)-1 {
		room = flowID[i+1:]
	}
	building, floor := "", ""
	if len(room) > 0 {
		building = room[:1]
	}
	if len(room) > 1 {
		floor = room[1:2]
	}
	return domain.Session{
		OK:          true,
		FlowID:      flowID,
		Status:      m.openStatus,
		Building:    building,
		Floor:       floor,
		RoomID:      room,
		TenantName:  "Demo Tenant",
		TenantPhone: "000-000-0000",
	}
}

func (m *MockBackend) FlowDetail(ctx context.Context, flowID string) (domain.FlowDetail, error) {
	if err := ctx.Err(); err != nil {
		return domain.FlowDetail{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.details[flowID]; ok {
		return d, nil
	}
	return m.defaultDetail(m.defaultSession(flowID)), nil
}

func (m *MockBackend) defaultDetail(s domain.Session) domain.FlowDetail {
	due := m.now().Add(72 * time.Hour)
	escalate := due.Add(48 * time.Hour)
	return domain.FlowDetail{
		OK: true,
		Flow: &domain.FlowMeta{
			FlowID:     s.FlowID,
			RoomID:     s.RoomID,
			DueAt:      &due,
			EscalateAt: &escalate,
		},
		Tasks: []domain.Task{
			{TaskID: s.FlowID + "-room", Type: domain.TaskInspection, Status: "PENDING"},
			{TaskID: s.FlowID + "-fridge", Type: domain.TaskFridge, Status: "PENDING"},
			{TaskID: s.FlowID + "-car", Type: domain.TaskCar, Status: "PENDING"},
		},
	}
}

// ListTasks returns one flow per configured session, ordered by flow ID.
func (m *MockBackend) ListTasks(ctx context.Context) (domain.TaskInbox, error) {
	if err := ctx.Err(); err != nil {
		return domain.TaskInbox{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	flows := make([]domain.FlowSummary, 0, len(ids))
	for _, id := range ids {
		d, ok := m.details[id]
		if !ok {
			d = m.defaultDetail(m.sessions[id])
		}
		s := domain.FlowSummary{FlowID: id, RoomID: m.sessions[id].RoomID, Tasks: d.Tasks}
		if d.Flow != nil {
			s.DueAt = d.Flow.DueAt
			s.EscalateAt = d.Flow.EscalateAt
			s.Progress = d.Flow.Progress
		}
		flows = append(flows, s)
	}
	return domain.TaskInbox{OK: true, Flows: flows}, nil
}

func (m *MockBackend) Submit(ctx context.Context, p inspection.Payload) (domain.SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.SubmitResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions = append(m.submissions, p)
	return domain.SubmitResult{
		OK:     true,
		RoomID: p.Fields.RoomID,
		PDFURL: fmt.Sprintf("https://example.invalid/reports/%s-%d.pdf", p.Fields.RoomID, len(m.submissions)),
	}, nil
}

// Submissions returns every payload received so far.
func (m *MockBackend) Submissions() []inspection.Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]inspection.Payload, len(m.submissions))
	copy(out, m.submissions)
	return out
}
