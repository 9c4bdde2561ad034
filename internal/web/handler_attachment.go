package web

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/vbonduro/roomcheck/internal/session"
)

// uploadMemory is how much of a multipart upload is held in memory before
// spilling to temporary files.
const uploadMemory = 32 << 20

// handleUploadAttachments accepts one or more images in "file" form fields and
// adds them to the area in order. Processing stops at the first failure; files
// added before it are kept.
func (s *Server) handleUploadAttachments(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) {
	areaID := r.PathValue("areaId")

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooBig *http.MaxBytesError
		if !errors.As(err, &tooBig) {
			err = badRequest("failed to parse form")
		}
		s.respond(w, r, ctrl.Snapshot(), err)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.Warn("failed to remove multipart temp files", "error", err)
		}
	}()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		s.respond(w, r, ctrl.Snapshot(), badRequest("at least one file is required"))
		return
	}

	snap := ctrl.Snapshot()
	for _, fh := range files {
		var err error
		snap, err = s.addAttachment(r, ctrl, areaID, fh)
		if err != nil {
			s.respond(w, r, snap, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, snap, s.logger)
}

func (s *Server) addAttachment(r *http.Request, ctrl *session.Controller, areaID string, fh *multipart.FileHeader) (session.Snapshot, error) {
	f, err := fh.Open()
	if err != nil {
		return ctrl.Snapshot(), badRequest("failed to read upload")
	}
	defer closeWithLog(f, "upload file", s)
	return ctrl.AddAttachment(r.Context(), areaID, fh.Filename, f)
}

func (s *Server) handleRemoveAttachment(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) {
	snap, err := ctrl.RemoveAttachment(r.PathValue("areaId"), r.PathValue("name"))
	s.respond(w, r, snap, err)
}

type suggestionResponse struct {
	AreaID string `json:"areaId"`
	Name   string `json:"name"`
	Note   string `json:"note"`
	Raw    string `json:"raw"`
}

// handleSuggestNote asks the vision backend for a defect note. The note is
// returned for the user to apply; the form is not changed.
func (s *Server) handleSuggestNote(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) {
	areaID, name := r.PathValue("areaId"), r.PathValue("name")

	att, err := ctrl.Attachment(areaID, name)
	if err != nil {
		s.respond(w, r, ctrl.Snapshot(), err)
		return
	}

	snap := ctrl.Snapshot()
	label := areaLabel(snap, areaID)
	sug, err := s.submissions.SuggestNote(r.Context(), att, label)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, suggestionResponse{AreaID: areaID, Name: att.Name, Note: sug.Note, Raw: sug.RawResponse}, s.logger)
}

func areaLabel(snap session.Snapshot, areaID string) string {
	if snap.Form != nil {
		for _, a := range snap.Form.Areas {
			if a.ID == areaID {
				return a.Label
			}
		}
	}
	return areaID
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, s *Server) {
	if err := c.Close(); err != nil {
		s.logger.Error("failed to close resource", "label", label, "error", err)
	}
}
