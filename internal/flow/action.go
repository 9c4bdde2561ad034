package flow

import (
	"fmt"

	"github.com/vbonduro/roomcheck/internal/domain"
)

// Action is what selecting a task leads to. The set of implementations is
// closed to this package.
type Action interface {
	isAction()
}

// OpenInspection switches the session from the flow summary to the
// inspection form.
type OpenInspection struct {
	TaskID string
}

// NotImplemented is returned for task types that have no form yet.
type NotImplemented struct {
	TaskID  string
	Type    domain.TaskType
	Message string
}

func (OpenInspection) isAction() {}
func (NotImplemented) isAction() {}

// ActionFor maps a task to the action its selection triggers.
func ActionFor(t domain.Task) Action {
	switch normalize(string(t.Type)) {
	case domain.TaskInspection:
		return OpenInspection{TaskID: t.TaskID}
	case domain.TaskFridge, domain.TaskCar:
		return NotImplemented{
			TaskID:  t.TaskID,
			Type:    t.Type,
			Message: fmt.Sprintf("%s check is not available yet", TypeLabel(t.Type)),
		}
	default:
		return NotImplemented{
			TaskID:  t.TaskID,
			Type:    t.Type,
			Message: fmt.Sprintf("task type %q is not supported yet", string(t.Type)),
		}
	}
}
