package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/vbonduro/roomcheck/internal/domain"
	"github.com/vbonduro/roomcheck/internal/flow"
	"github.com/vbonduro/roomcheck/internal/session"
)

// maxJSONBody bounds JSON request bodies; a drawn signature is the largest.
const maxJSONBody = 8 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return badRequest("request body is required")
		}
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// respond writes the snapshot, or the error together with the snapshot.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, snap session.Snapshot, err error) {
	if err != nil {
		s.writeError(w, r, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, snap, s.logger)
}

// handleStart is the deep-link entry point. With a flowId it resolves right
// away; without one it shows manual entry.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) {
	flowID := r.URL.Query().Get("flowId")
	if flowID == "" {
		snap, err := ctrl.Reset()
		s.respond(w, r, snap, err)
		return
	}
	snap, err := ctrl.Resolve(r.Context(), flowID)
	s.respond(w, r, snap, err)
}

// handleGetSession never creates a session; a browser without one sees the
// manual entry screen.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if ctrl, ok := s.existingController(r); ok {
		writeJSON(w, http.StatusOK, ctrl.Snapshot(), s.logger)
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.Blank(), s.logger)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) {
	var req struct {
		FlowID string `json:"flowId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respond(w, r, ctrl.Snapshot(), err)
		return
	}
	snap, err := ctrl.Resolve(r.Context(), req.FlowID)
	s.respond(w, r, snap, err)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) {
	snap, err := ctrl.Reset()
	s.respond(w, r, snap, err)
}

func (s *Server) handleStartInspection(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) {
	snap, err := ctrl.Start()
	s.respond(w, r, snap, err)
}

type notImplementedResponse struct {
	Error    *session.ErrorView `json:"error"`
	TaskID   string             `json:"taskId"`
	Type     domain.TaskType    `json:"type"`
	Snapshot session.Snapshot   `json:"snapshot"`
}

func (s *Server) handleOpenTask(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) {
	action, snap, err := ctrl.OpenTask(r.PathValue("taskId"))
	if err != nil {
		s.respond(w, r, snap, err)
		return
	}
	switch a := action.(type) {
	case flow.NotImplemented:
		writeJSON(w, http.StatusNotImplemented, notImplementedResponse{
			Error:    &session.ErrorView{Kind: "not_implemented", Message: a.Message},
			TaskID:   a.TaskID,
			Type:     a.Type,
			Snapshot: snap,
		}, s.logger)
	default:
		writeJSON(w, http.StatusOK, snap, s.logger)
	}
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) {
	var req struct {
		Status domain.AreaStatus `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respond(w, r, ctrl.Snapshot(), err)
		return
	}
	snap, err := ctrl.SetStatus(r.PathValue("areaId"), req.Status)
	s.respond(w, r, snap, err)
}

func (s *Server) handleSetNote(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) {
	var req struct {
		Note string `json:"note"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respond(w, r, ctrl.Snapshot(), err)
		return
	}
	snap, err := ctrl.SetNote(r.PathValue("areaId"), req.Note)
	s.respond(w, r, snap, err)
}

func (s *Server) handleSetInspector(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) {
	var req struct {
		Inspector string `json:"inspector"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respond(w, r, ctrl.Snapshot(), err)
		return
	}
	snap, err := ctrl.SetInspector(req.Inspector)
	s.respond(w, r, snap, err)
}

func (s *Server) handleSetGlobalNote(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) {
	var req struct {
		Note string `json:"note"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respond(w, r, ctrl.Snapshot(), err)
		return
	}
	snap, err := ctrl.SetGlobalNote(req.Note)
	s.respond(w, r, snap, err)
}

func (s *Server) handleSetSignature(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) {
	var req struct {
		Signature string `json:"signature"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respond(w, r, ctrl.Snapshot(), err)
		return
	}
	snap, err := ctrl.SetSignature(req.Signature)
	s.respond(w, r, snap, err)
}

type confirmResponse struct {
	Token    string           `json:"token"`
	Snapshot session.Snapshot `json:"snapshot"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) {
	token, snap, err := ctrl.Confirm()
	if err != nil {
		s.respond(w, r, snap, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Token: token, Snapshot: snap}, s.logger)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, ctrl *session.Controller) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respond(w, r, ctrl.Snapshot(), err)
		return
	}
	snap, err := ctrl.Submit(r.Context(), req.Token)
	s.respond(w, r, snap, err)
}
