// Package backend holds the remote collaborators an inspection session talks
// to: session lookup, task inbox, flow detail and submission.
package backend

import (
	"context"

	"github.com/vbonduro/roomcheck/internal/domain"
	"github.com/vbonduro/roomcheck/internal/inspection"
)

// SessionLookup resolves a flow identifier. Implementations must be
// side-effect free.
type SessionLookup interface {
	Resolve(ctx context.Context, flowID string) (domain.Session, error)
}

type TaskInbox interface {
	ListTasks(ctx context.Context) (domain.TaskInbox, error)
}

type FlowDetails interface {
	FlowDetail(ctx context.Context, flowID string) (domain.FlowDetail, error)
}

type Submitter interface {
	Submit(ctx context.Context, p inspection.Payload) (domain.SubmitResult, error)
}

// Backend bundles every collaborator.
type Backend interface {
	SessionLookup
	TaskInbox
	FlowDetails
	Submitter
}
