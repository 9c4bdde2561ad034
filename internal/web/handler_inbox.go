package web

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vbonduro/roomcheck/internal/flow"
	"github.com/vbonduro/roomcheck/internal/service"
	"github.com/vbonduro/roomcheck/internal/session"
)

type inboxResponse struct {
	OK    bool        `json:"ok"`
	Flows []flow.View `json:"flows"`
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	inbox, err := s.inbox.ListTasks(r.Context())
	if err != nil {
		s.logger.Warn("task inbox unavailable", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error: &session.ErrorView{Kind: "network", Message: "task inbox is unavailable"},
		}, s.logger)
		return
	}
	writeJSON(w, http.StatusOK, inboxResponse{OK: inbox.OK, Flows: flow.Inbox(inbox.Flows, s.now())}, s.logger)
}

type archivedFileJSON struct {
	ID         int64     `json:"id"`
	AreaID     string    `json:"areaId"`
	Name       string    `json:"name"`
	StorageKey string    `json:"storageKey"`
	MimeType   string    `json:"mimeType"`
	ArchivedAt time.Time `json:"archivedAt"`
	// URL is the public object URL when the store has one, otherwise the
	// download route of this server.
	URL string `json:"url"`
}

type receiptJSON struct {
	ID           int64              `json:"id"`
	FlowID       string             `json:"flowId"`
	RoomID       string             `json:"roomId"`
	PDFURL       string             `json:"pdfUrl"`
	Variant      string             `json:"variant"`
	AreaCount    int                `json:"areaCount"`
	ProblemCount int                `json:"problemCount"`
	FileCount    int                `json:"fileCount"`
	SubmittedAt  time.Time          `json:"submittedAt"`
	Files        []archivedFileJSON `json:"files"`
}

func toReceiptJSON(v service.ReceiptView) receiptJSON {
	files := make([]archivedFileJSON, 0, len(v.Files))
	for _, f := range v.Files {
		url := f.PublicURL
		if url == "" {
			url = fmt.Sprintf("/receipts/%d/files/%d", v.ID, f.ID)
		}
		files = append(files, archivedFileJSON{
			ID:         f.ID,
			AreaID:     f.AreaID,
			Name:       f.Name,
			StorageKey: f.StorageKey,
			MimeType:   f.MimeType,
			ArchivedAt: f.ArchivedAt,
			URL:        url,
		})
	}
	return receiptJSON{
		ID:           v.ID,
		FlowID:       v.FlowID,
		RoomID:       v.RoomID,
		PDFURL:       v.PDFURL,
		Variant:      v.Variant,
		AreaCount:    v.AreaCount,
		ProblemCount: v.ProblemCount,
		FileCount:    v.FileCount,
		SubmittedAt:  v.SubmittedAt,
		Files:        files,
	}
}

// handleReceipts lists recent receipts, or every receipt of one flow when
// flowId is given.
func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if flowID := r.URL.Query().Get("flowId"); flowID != "" {
		views, err := s.submissions.ReceiptsForFlow(r.Context(), flowID)
		s.writeReceipts(w, r, views, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, r, badRequest("limit must be a positive integer"), nil)
			return
		}
		limit = n
	}

	views, err := s.submissions.ListReceipts(r.Context(), limit)
	s.writeReceipts(w, r, views, err)
}

func (s *Server) writeReceipts(w http.ResponseWriter, r *http.Request, views []service.ReceiptView, err error) {
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	out := make([]receiptJSON, 0, len(views))
	for _, v := range views {
		out = append(out, toReceiptJSON(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": out}, s.logger)
}

func (s *Server) handleArchivedFile(w http.ResponseWriter, r *http.Request) {
	receiptID, err := strconv.ParseInt(r.PathValue("receiptId"), 10, 64)
	if err != nil {
		s.writeError(w, r, badRequest("invalid receipt id"), nil)
		return
	}
	fileID, err := strconv.ParseInt(r.PathValue("fileId"), 10, 64)
	if err != nil {
		s.writeError(w, r, badRequest("invalid file id"), nil)
		return
	}

	f, rc, err := s.submissions.OpenArchivedFile(r.Context(), receiptID, fileID)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	defer closeWithLog(rc, "archived file", s)

	w.Header().Set("Content-Type", f.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", f.Name))
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("archived file download interrupted", "receipt_id", receiptID, "file_id", fileID, "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}, s.logger)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.Len()}, s.logger)
}
