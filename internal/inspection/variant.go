package inspection

import (
	"fmt"
	"strings"

	"github.com/vbonduro/roomcheck/internal/domain"
)

// Shape selects the submission payload serialization.
type Shape string

const (
	// ShapeNested groups session fields under "fields". This is the canonical shape.
	ShapeNested Shape = "nested"
	// ShapeFlat places session fields at the top level of the payload.
	ShapeFlat Shape = "flat"
)

func ParseShape(s string) (Shape, error) {
	switch Shape(strings.ToLower(strings.TrimSpace(s))) {
	case "", ShapeNested:
		return ShapeNested, nil
	case ShapeFlat:
		return ShapeFlat, nil
	}
	return "", fmt.Errorf("unknown payload shape %q", s)
}

// Resolution is the outcome of mapping a backend session status.
type Resolution int

const (
	ResolutionNotFound Resolution = iota
	ResolutionContinue
	ResolutionAlreadyCompleted
)

// Variant parameterizes one kind of inspection: which backend statuses allow
// the form, whether defects need evidence, and how the payload is shaped.
type Variant struct {
	Name              string
	ContinueStatuses  []string
	CompletedStatuses []string
	RequireEvidence   bool
	Shape             Shape
	// FlowTasks reports whether sessions of this variant carry a task bundle.
	FlowTasks        bool
	DefaultInspector string
}

func CheckIn() Variant {
	return Variant{
		Name:              "checkin",
		ContinueStatuses:  []string{"waiting_form"},
		CompletedStatuses: []string{"completed"},
		RequireEvidence:   false,
		Shape:             ShapeNested,
		DefaultInspector:  "Tenant",
	}
}

func CheckOut() Variant {
	return Variant{
		Name:              "checkout",
		ContinueStatuses:  []string{"START"},
		CompletedStatuses: []string{"INSPECTION_DONE", "COMPLETED"},
		RequireEvidence:   true,
		Shape:             ShapeNested,
		FlowTasks:         true,
		DefaultInspector:  "Tenant",
	}
}

// VariantByName returns the named variant with the given payload shape.
func VariantByName(name string, shape Shape) (Variant, error) {
	var v Variant
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "checkin", "check-in":
		v = CheckIn()
	case "checkout", "check-out":
		v = CheckOut()
	default:
		return Variant{}, fmt.Errorf("unknown inspection variant %q", name)
	}
	if shape != "" {
		v.Shape = shape
	}
	return v, nil
}

// Classify maps a looked-up session to a resolution. A completed status wins
// even when the backend reports ok=false.
func (v Variant) Classify(s domain.Session) Resolution {
	if contains(v.CompletedStatuses, s.Status) {
		return ResolutionAlreadyCompleted
	}
	if s.OK && contains(v.ContinueStatuses, s.Status) {
		return ResolutionContinue
	}
	return ResolutionNotFound
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
