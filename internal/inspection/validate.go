package inspection

import (
	"fmt"
	"strings"

	"github.com/vbonduro/roomcheck/internal/domain"
)

type ValidationKind string

const (
	ValidationIncomplete       ValidationKind = "incomplete_areas"
	ValidationMissingEvidence  ValidationKind = "missing_evidence"
	ValidationMissingSignature ValidationKind = "missing_signature"
)

// ValidationError blocks a submission. Areas lists the offending areas in
// checklist order; it is empty for a missing signature.
type ValidationError struct {
	Kind  ValidationKind
	Areas []domain.AreaDef
}

func (e *ValidationError) Labels() []string {
	labels := make([]string, len(e.Areas))
	for i, a := range e.Areas {
		labels[i] = a.Label
	}
	return labels
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case ValidationIncomplete:
		return fmt.Sprintf("please check every area (%d remaining): %s", len(e.Areas), strings.Join(e.Labels(), ", "))
	case ValidationMissingEvidence:
		return fmt.Sprintf("areas marked as a problem need a note and at least one photo: %s", strings.Join(e.Labels(), ", "))
	case ValidationMissingSignature:
		return "please sign before submitting"
	}
	return string(e.Kind)
}

// Validate runs the submission gates in order and returns the first failure.
func (v Variant) Validate(f *Form) error {
	var pending []domain.AreaDef
	for _, a := range f.areas {
		if f.records[a.ID].Status == domain.StatusPending {
			pending = append(pending, a)
		}
	}
	if len(pending) > 0 {
		return &ValidationError{Kind: ValidationIncomplete, Areas: pending}
	}

	if v.RequireEvidence {
		var missing []domain.AreaDef
		for _, a := range f.areas {
			rec := f.records[a.ID]
			if rec.Status != domain.StatusProblem {
				continue
			}
			if strings.TrimSpace(rec.Note) == "" || len(rec.Attachments) == 0 {
				missing = append(missing, a)
			}
		}
		if len(missing) > 0 {
			return &ValidationError{Kind: ValidationMissingEvidence, Areas: missing}
		}
	}

	if !f.HasSignature() {
		return &ValidationError{Kind: ValidationMissingSignature}
	}
	return nil
}
