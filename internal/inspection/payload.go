package inspection

import (
	"encoding/json"

	"github.com/vbonduro/roomcheck/internal/domain"
)

type AreaMeta struct {
	Status domain.AreaStatus `json:"status"`
	Note   string            `json:"note"`
}

// FileUpload is an attachment in transport form; the preview is not carried.
type FileUpload struct {
	Area   string `json:"area"`
	Name   string `json:"name"`
	Mime   string `json:"mime"`
	Base64 string `json:"base64"`
}

type Fields struct {
	Building        string `json:"building"`
	Floor           string `json:"floor"`
	RoomID          string `json:"roomId"`
	Inspector       string `json:"inspector"`
	GlobalNotes     string `json:"globalNotes"`
	TenantSignature string `json:"tenantSignature"`
}

// Payload is the single record sent to the submission endpoint. Shape
// controls whether Fields is serialized nested under "fields" or inlined.
type Payload struct {
	FlowID     string
	Fields     Fields
	MetaByArea map[string]AreaMeta
	Files      []FileUpload
	Shape      Shape
}

type nestedPayload struct {
	FlowID     string              `json:"flowId"`
	Fields     Fields              `json:"fields"`
	MetaByArea map[string]AreaMeta `json:"metaByArea"`
	Files      []FileUpload        `json:"files"`
}

type flatPayload struct {
	FlowID string `json:"flowId"`
	Fields
	MetaByArea map[string]AreaMeta `json:"metaByArea"`
	Files      []FileUpload        `json:"files"`
}

func (p Payload) MarshalJSON() ([]byte, error) {
	files := p.Files
	if files == nil {
		files = []FileUpload{}
	}
	if p.Shape == ShapeFlat {
		return json.Marshal(flatPayload{
			FlowID:     p.FlowID,
			Fields:     p.Fields,
			MetaByArea: p.MetaByArea,
			Files:      files,
		})
	}
	return json.Marshal(nestedPayload{
		FlowID:     p.FlowID,
		Fields:     p.Fields,
		MetaByArea: p.MetaByArea,
		Files:      files,
	})
}

// ProblemCount is the number of areas reported as a problem.
func (p Payload) ProblemCount() int {
	n := 0
	for _, m := range p.MetaByArea {
		if m.Status == domain.StatusProblem {
			n++
		}
	}
	return n
}

// Assemble validates f and builds the outbound payload for session s.
// Attachments are flattened in checklist order, then in attachment order.
func (v Variant) Assemble(s domain.Session, f *Form) (Payload, error) {
	if err := v.Validate(f); err != nil {
		return Payload{}, err
	}

	meta := make(map[string]AreaMeta, len(f.areas))
	files := make([]FileUpload, 0, f.AttachmentCount())
	for _, rec := range f.Records() {
		meta[rec.AreaID] = AreaMeta{Status: rec.Status, Note: rec.Note}
		for _, a := range rec.Attachments {
			files = append(files, FileUpload{
				Area:   a.AreaID,
				Name:   a.Name,
				Mime:   a.MimeType,
				Base64: a.EncodedData,
			})
		}
	}

	inspector := f.Inspector()
	if inspector == "" {
		inspector = v.DefaultInspector
	}

	return Payload{
		FlowID: s.FlowID,
		Fields: Fields{
			Building:        s.Building,
			Floor:           s.Floor,
			RoomID:          s.RoomID,
			Inspector:       inspector,
			GlobalNotes:     f.GlobalNote(),
			TenantSignature: f.Signature(),
		},
		MetaByArea: meta,
		Files:      files,
		Shape:      v.Shape,
	}, nil
}
