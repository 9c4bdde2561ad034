package session

import (
	"errors"

	"github.com/vbonduro/roomcheck/internal/domain"
	"github.com/vbonduro/roomcheck/internal/flow"
	"github.com/vbonduro/roomcheck/internal/inspection"
)

type State string

const (
	StateManualEntry State = "manual_entry"
	StateLoading     State = "loading"
	StateResolved    State = "resolved"
	StateError       State = "error"
	StateSubmitted   State = "submitted"
)

// View selects which screen a resolved session shows.
type View string

const (
	ViewIntro View = "intro"
	ViewFlow  View = "flow"
	ViewForm  View = "form"
)

type ErrorView struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Areas   []string `json:"areas,omitempty"`
}

// ErrorViewOf converts a controller error into its presentation form.
func ErrorViewOf(err error) *ErrorView {
	if err == nil {
		return nil
	}
	var (
		resErr *ResolutionError
		subErr *SubmissionError
		valErr *inspection.ValidationError
	)
	switch {
	case errors.As(err, &resErr):
		return &ErrorView{Kind: string(resErr.Kind), Message: resErr.Error()}
	case errors.As(err, &subErr):
		return &ErrorView{Kind: "submission_" + string(subErr.Kind), Message: subErr.Error()}
	case errors.As(err, &valErr):
		return &ErrorView{Kind: string(valErr.Kind), Message: valErr.Error(), Areas: valErr.Labels()}
	}
	return &ErrorView{Kind: "error", Message: err.Error()}
}

type AttachmentView struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Preview  string `json:"preview"`
}

type AreaView struct {
	ID          string            `json:"id"`
	Label       string            `json:"label"`
	Status      domain.AreaStatus `json:"status"`
	Note        string            `json:"note"`
	Attachments []AttachmentView  `json:"attachments"`
}

type FormView struct {
	Areas           []AreaView `json:"areas"`
	Inspector       string     `json:"inspector"`
	GlobalNote      string     `json:"globalNote"`
	HasSignature    bool       `json:"hasSignature"`
	Completed       int        `json:"completed"`
	Total           int        `json:"total"`
	ProgressPercent int        `json:"progressPercent"`
	Version         int        `json:"version"`
}

func newFormView(f *inspection.Form, version int) *FormView {
	areas := make([]AreaView, 0, f.Total())
	for _, rec := range f.Records() {
		atts := make([]AttachmentView, 0, len(rec.Attachments))
		for _, a := range rec.Attachments {
			atts = append(atts, AttachmentView{Name: a.Name, MimeType: a.MimeType, Preview: a.PreviewData})
		}
		areas = append(areas, AreaView{
			ID:          rec.AreaID,
			Label:       f.Label(rec.AreaID),
			Status:      rec.Status,
			Note:        rec.Note,
			Attachments: atts,
		})
	}
	return &FormView{
		Areas:           areas,
		Inspector:       f.Inspector(),
		GlobalNote:      f.GlobalNote(),
		HasSignature:    f.HasSignature(),
		Completed:       f.CompletedCount(),
		Total:           f.Total(),
		ProgressPercent: f.ProgressPercent(),
		Version:         version,
	}
}

// Snapshot is a point-in-time copy of a session, safe to serialize.
type Snapshot struct {
	State   State                `json:"state"`
	View    View                 `json:"view,omitempty"`
	Variant string               `json:"variant"`
	FlowID  string               `json:"flowId,omitempty"`
	Session *domain.Session      `json:"session,omitempty"`
	Flow    *flow.View           `json:"flow,omitempty"`
	Form    *FormView            `json:"form,omitempty"`
	Error   *ErrorView           `json:"error,omitempty"`
	Result  *domain.SubmitResult `json:"result,omitempty"`

	Submitting bool `json:"submitting,omitempty"`
}
