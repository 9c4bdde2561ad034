package inspection

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/vbonduro/roomcheck/internal/checklist"
	"github.com/vbonduro/roomcheck/internal/domain"
)

var (
	ErrUnknownArea         = errors.New("unknown area")
	ErrInvalidStatus       = errors.New("invalid area status")
	ErrDuplicateAttachment = errors.New("attachment name already used in this area")
	ErrAttachmentNotFound  = errors.New("attachment not found")
)

// Form is an immutable snapshot of an inspection in progress. Every update
// returns a new Form; only the targeted area record is replaced and the
// receiver is never modified.
type Form struct {
	areas      []domain.AreaDef
	records    map[string]domain.AreaRecord
	inspector  string
	globalNote string
	signature  string
}

// NewForm creates a form with one pending record per checklist area.
func NewForm(cl *checklist.Checklist) *Form {
	areas := cl.Areas()
	records := make(map[string]domain.AreaRecord, len(areas))
	for _, a := range areas {
		records[a.ID] = domain.AreaRecord{AreaID: a.ID, Status: domain.StatusPending}
	}
	return &Form{areas: areas, records: records}
}

func (f *Form) clone() *Form {
	records := make(map[string]domain.AreaRecord, len(f.records))
	for k, v := range f.records {
		records[k] = v
	}
	return &Form{
		areas:      f.areas,
		records:    records,
		inspector:  f.inspector,
		globalNote: f.globalNote,
		signature:  f.signature,
	}
}

func (f *Form) withRecord(rec domain.AreaRecord) *Form {
	nf := f.clone()
	nf.records[rec.AreaID] = rec
	return nf
}

func (f *Form) lookup(areaID string) (domain.AreaRecord, error) {
	rec, ok := f.records[areaID]
	if !ok {
		return domain.AreaRecord{}, fmt.Errorf("%w: %q", ErrUnknownArea, areaID)
	}
	return rec, nil
}

// Areas returns the checklist definitions in display order.
func (f *Form) Areas() []domain.AreaDef {
	out := make([]domain.AreaDef, len(f.areas))
	copy(out, f.areas)
	return out
}

func (f *Form) Label(areaID string) string {
	for _, a := range f.areas {
		if a.ID == areaID {
			return a.Label
		}
	}
	return areaID
}

func (f *Form) Record(areaID string) (domain.AreaRecord, bool) {
	rec, ok := f.records[areaID]
	return rec, ok
}

// Records returns every area record in checklist order.
func (f *Form) Records() []domain.AreaRecord {
	out := make([]domain.AreaRecord, 0, len(f.areas))
	for _, a := range f.areas {
		out = append(out, f.records[a.ID])
	}
	return out
}

func (f *Form) SetStatus(areaID string, status domain.AreaStatus) (*Form, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	rec, err := f.lookup(areaID)
	if err != nil {
		return nil, err
	}
	rec.Status = status
	return f.withRecord(rec), nil
}

func (f *Form) SetNote(areaID, note string) (*Form, error) {
	rec, err := f.lookup(areaID)
	if err != nil {
		return nil, err
	}
	rec.Note = note
	return f.withRecord(rec), nil
}

func (f *Form) AddAttachment(areaID string, att domain.Attachment) (*Form, error) {
	rec, err := f.lookup(areaID)
	if err != nil {
		return nil, err
	}
	for _, existing := range rec.Attachments {
		if existing.Name == att.Name {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateAttachment, att.Name)
		}
	}
	att.AreaID = areaID
	files := make([]domain.Attachment, len(rec.Attachments), len(rec.Attachments)+1)
	copy(files, rec.Attachments)
	rec.Attachments = append(files, att)
	return f.withRecord(rec), nil
}

// RemoveAttachment drops the first attachment called name from areaID.
func (f *Form) RemoveAttachment(areaID, name string) (*Form, error) {
	rec, err := f.lookup(areaID)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, a := range rec.Attachments {
		if a.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrAttachmentNotFound, name)
	}
	files := make([]domain.Attachment, 0, len(rec.Attachments)-1)
	files = append(files, rec.Attachments[:idx]...)
	files = append(files, rec.Attachments[idx+1:]...)
	rec.Attachments = files
	return f.withRecord(rec), nil
}

// Attachment returns the attachment called name in areaID.
func (f *Form) Attachment(areaID, name string) (domain.Attachment, bool) {
	rec, ok := f.records[areaID]
	if !ok {
		return domain.Attachment{}, false
	}
	for _, a := range rec.Attachments {
		if a.Name == name {
			return a, true
		}
	}
	return domain.Attachment{}, false
}

// UniqueName returns name, or name with a " (n)" suffix before the extension
// when an attachment with that name already exists in areaID.
func (f *Form) UniqueName(areaID, name string) string {
	rec, ok := f.records[areaID]
	if !ok {
		return name
	}
	taken := make(map[string]bool, len(rec.Attachments))
	for _, a := range rec.Attachments {
		taken[a.Name] = true
	}
	if !taken[name] {
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if !taken[candidate] {
			return candidate
		}
	}
}

func (f *Form) WithInspector(name string) *Form {
	nf := f.clone()
	nf.inspector = strings.TrimSpace(name)
	return nf
}

func (f *Form) WithGlobalNote(note string) *Form {
	nf := f.clone()
	nf.globalNote = note
	return nf
}

// WithSignature stores the signature image. An empty string clears it.
func (f *Form) WithSignature(sig string) *Form {
	nf := f.clone()
	nf.signature = strings.TrimSpace(sig)
	return nf
}

func (f *Form) Inspector() string  { return f.inspector }
func (f *Form) GlobalNote() string { return f.globalNote }
func (f *Form) Signature() string  { return f.signature }
func (f *Form) HasSignature() bool { return f.signature != "" }

func (f *Form) Total() int { return len(f.areas) }

// CompletedCount is the number of areas whose status is no longer pending.
func (f *Form) CompletedCount() int {
	n := 0
	for _, rec := range f.records {
		if rec.Status != domain.StatusPending {
			n++
		}
	}
	return n
}

func (f *Form) ProgressPercent() int {
	if len(f.areas) == 0 {
		return 0
	}
	return int(math.Round(100 * float64(f.CompletedCount()) / float64(len(f.areas))))
}

// AttachmentCount is the number of attachments across every area.
func (f *Form) AttachmentCount() int {
	n := 0
	for _, rec := range f.records {
		n += len(rec.Attachments)
	}
	return n
}
