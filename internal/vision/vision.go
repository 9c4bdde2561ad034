// Package vision suggests defect notes from evidence photos.
package vision

import (
	"context"
	"fmt"
	"io"
)

// NotePrompt asks for a single-line description of damage in one area.
const NotePrompt = `This photo was taken during a rental room inspection of the area "%s".
Describe any visible damage, dirt or missing parts in one short sentence
suitable for an inspection report. If nothing is wrong, answer exactly: none`

func PromptFor(areaLabel string) string {
	return fmt.Sprintf(NotePrompt, areaLabel)
}

// Describer produces a note suggestion for one evidence photo. Suggestions
// are returned to the user and never applied to the form automatically.
type Describer interface {
	Describe(ctx context.Context, r io.Reader, mimeType, areaLabel string) (*Suggestion, error)
}

type Suggestion struct {
	// Note is empty when the model saw nothing worth reporting.
	Note        string
	RawResponse string
}
