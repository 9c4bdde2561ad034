package inspection

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/roomcheck/internal/checklist"
	"github.com/vbonduro/roomcheck/internal/domain"
)

var session = domain.Session{OK: true, FlowID: "U1-B503", Status: "waiting_form", Building: "B", Floor: "5", RoomID: "B503"}

func allOK(t *testing.T, f *Form) *Form {
	t.Helper()
	var err error
	for _, a := range f.Areas() {
		f, err = f.SetStatus(a.ID, domain.StatusOK)
		require.NoError(t, err)
	}
	return f
}

func validationErr(t *testing.T, err error) *ValidationError {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	return verr
}

func TestValidateNamesExactlyPendingAreas(t *testing.T) {
	f := NewForm(checklist.Default())
	f, _ = f.SetStatus("DOOR", domain.StatusOK)
	f, _ = f.SetStatus("CURTAIN", domain.StatusOK)
	f, _ = f.SetStatus("BED", domain.StatusProblem)
	f, _ = f.SetStatus("CHAIR_TABLE", domain.StatusOK)
	f, _ = f.SetStatus("WARDROBE", domain.StatusOK)
	f, _ = f.SetStatus("TOILET_SINK", domain.StatusOK)
	f, _ = f.SetStatus("SHOWER_HEATER", domain.StatusOK)

	verr := validationErr(t, CheckIn().Validate(f.WithSignature("sig")))
	assert.Equal(t, ValidationIncomplete, verr.Kind)
	assert.Equal(t, []string{"Air conditioner", "Floor / walls / ceiling"}, verr.Labels())
	assert.Contains(t, verr.Error(), "2 remaining")
}

func TestValidateCheckInSkipsEvidenceRule(t *testing.T) {
	f := allOK(t, NewForm(checklist.Default()))
	f, _ = f.SetStatus("BED", domain.StatusProblem)
	f = f.WithSignature("sig")

	assert.NoError(t, CheckIn().Validate(f))
}

func TestValidateCheckOutEvidenceRule(t *testing.T) {
	f := allOK(t, NewForm(checklist.Default()))
	f, _ = f.SetStatus("BED", domain.StatusProblem)
	f = f.WithSignature("sig")
	v := CheckOut()

	verr := validationErr(t, v.Validate(f))
	assert.Equal(t, ValidationMissingEvidence, verr.Kind)
	assert.Equal(t, []string{"Bed and mattress"}, verr.Labels())

	withNote, _ := f.SetNote("BED", "stain on mattress")
	verr = validationErr(t, v.Validate(withNote))
	assert.Equal(t, ValidationMissingEvidence, verr.Kind)

	withPhoto, _ := f.AddAttachment("BED", att("BED", "bed.jpg"))
	verr = validationErr(t, v.Validate(withPhoto))
	assert.Equal(t, ValidationMissingEvidence, verr.Kind)

	blankNote, _ := withPhoto.SetNote("BED", "   ")
	verr = validationErr(t, v.Validate(blankNote))
	assert.Equal(t, ValidationMissingEvidence, verr.Kind)

	both, _ := withPhoto.SetNote("BED", "stain on mattress")
	assert.NoError(t, v.Validate(both))
}

func TestValidateRequiresSignature(t *testing.T) {
	f := allOK(t, NewForm(checklist.Default()))

	verr := validationErr(t, CheckIn().Validate(f))
	assert.Equal(t, ValidationMissingSignature, verr.Kind)
	assert.Empty(t, verr.Areas)
}

func TestValidateOrderCompletenessFirst(t *testing.T) {
	f := NewForm(checklist.Default())
	f, _ = f.SetStatus("DOOR", domain.StatusProblem)

	verr := validationErr(t, CheckOut().Validate(f))
	assert.Equal(t, ValidationIncomplete, verr.Kind)
}

func TestAssembleNestedPayload(t *testing.T) {
	f := allOK(t, NewForm(checklist.Default()))
	f, _ = f.SetStatus("AC", domain.StatusProblem)
	f, _ = f.SetNote("AC", "noisy")
	f, _ = f.AddAttachment("AC", att("AC", "ac1.jpg"))
	f, _ = f.AddAttachment("AC", att("AC", "ac2.jpg"))
	f, _ = f.AddAttachment("DOOR", att("DOOR", "door.jpg"))
	f = f.WithSignature("data:image/png;base64,SIG").WithGlobalNote("all good")

	p, err := CheckIn().Assemble(session, f)
	require.NoError(t, err)

	assert.Equal(t, "U1-B503", p.FlowID)
	assert.Equal(t, "Tenant", p.Fields.Inspector)
	assert.Equal(t, "B503", p.Fields.RoomID)
	assert.Len(t, p.MetaByArea, 9)
	assert.Equal(t, AreaMeta{Status: domain.StatusProblem, Note: "noisy"}, p.MetaByArea["AC"])
	assert.Equal(t, 1, p.ProblemCount())

	require.Len(t, p.Files, 3)
	assert.Equal(t, "door.jpg", p.Files[0].Name)
	assert.Equal(t, "ac1.jpg", p.Files[1].Name)
	assert.Equal(t, "ac2.jpg", p.Files[2].Name)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	fields, ok := decoded["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "data:image/png;base64,SIG", fields["tenantSignature"])
	assert.Equal(t, "all good", fields["globalNotes"])
	assert.NotContains(t, decoded, "roomId")

	files := decoded["files"].([]any)
	first := files[0].(map[string]any)
	assert.NotContains(t, first, "preview")
	assert.Equal(t, "DOOR", first["area"])
}

func TestAssembleFlatPayload(t *testing.T) {
	f := allOK(t, NewForm(checklist.Default())).WithSignature("sig").WithInspector("Nok")
	v := CheckOut()
	v.Shape = ShapeFlat

	p, err := v.Assemble(session, f)
	require.NoError(t, err)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.NotContains(t, decoded, "fields")
	assert.Equal(t, "B503", decoded["roomId"])
	assert.Equal(t, "Nok", decoded["inspector"])
	assert.Equal(t, []any{}, decoded["files"])
}

func TestAssembleRejectsInvalidForm(t *testing.T) {
	_, err := CheckIn().Assemble(session, NewForm(checklist.Default()))
	validationErr(t, err)
}
