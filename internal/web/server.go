package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"

	"github.com/vbonduro/roomcheck/internal/attachment"
	"github.com/vbonduro/roomcheck/internal/backend"
	"github.com/vbonduro/roomcheck/internal/domain"
	"github.com/vbonduro/roomcheck/internal/metrics"
	"github.com/vbonduro/roomcheck/internal/service"
	"github.com/vbonduro/roomcheck/internal/session"
	"github.com/vbonduro/roomcheck/internal/vision"
)

const sessionCookie = "roomcheck_session"

// submissionService is the subset of service.SubmissionService the server
// requires.
type submissionService interface {
	ListReceipts(ctx context.Context, limit int) ([]service.ReceiptView, error)
	ReceiptsForFlow(ctx context.Context, flowID string) ([]service.ReceiptView, error)
	OpenArchivedFile(ctx context.Context, receiptID, fileID int64) (*domain.ArchivedFile, io.ReadCloser, error)
	SuggestNote(ctx context.Context, att domain.Attachment, areaLabel string) (*vision.Suggestion, error)
}

type Deps struct {
	Sessions    *session.Manager
	Inbox       backend.TaskInbox
	Submissions submissionService
	Metrics     *metrics.Metrics
	// Health reports whether dependencies such as the database are usable.
	Health func(ctx context.Context) error
	// MaxUploadBytes caps one multipart upload request.
	MaxUploadBytes int64
	CORSOrigins    []string
	SecureCookies  bool
	Logger         *slog.Logger
	Now            func() time.Time
}

type Server struct {
	sessions      *session.Manager
	inbox         backend.TaskInbox
	submissions   submissionService
	metrics       *metrics.Metrics
	health        func(ctx context.Context) error
	maxUpload     int64
	secureCookies bool
	mux           *http.ServeMux
	handler       http.Handler
	logger        *slog.Logger
	now           func() time.Time
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = attachment.DefaultMaxBytes + 1<<20
	}
	s := &Server{
		sessions:      d.Sessions,
		inbox:         d.Inbox,
		submissions:   d.Submissions,
		metrics:       d.Metrics,
		health:        d.Health,
		maxUpload:     d.MaxUploadBytes,
		secureCookies: d.SecureCookies,
		mux:           http.NewServeMux(),
		logger:        d.Logger,
		now:           d.Now,
	}
	s.registerRoutes()

	var h http.Handler = securityHeaders(s.mux)
	if len(d.CORSOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(d.CORSOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
			handlers.AllowCredentials(),
		)(h)
	}
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.logger}))(h)
	s.handler = requestLogger(s.logger, s.metrics, h)
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /start", s.withSession(s.handleStart))
	s.mux.HandleFunc("GET /session", s.handleGetSession)
	s.mux.HandleFunc("POST /session/resolve", s.withSession(s.handleResolve))
	s.mux.HandleFunc("POST /session/reset", s.withSession(s.handleReset))
	s.mux.HandleFunc("POST /session/start", s.withSession(s.handleStartInspection))
	s.mux.HandleFunc("POST /session/tasks/{taskId}/open", s.withSession(s.handleOpenTask))
	s.mux.HandleFunc("PUT /session/areas/{areaId}/status", s.withSession(s.handleSetStatus))
	s.mux.HandleFunc("PUT /session/areas/{areaId}/note", s.withSession(s.handleSetNote))
	s.mux.HandleFunc("POST /session/areas/{areaId}/attachments", s.withSession(s.handleUploadAttachments))
	s.mux.HandleFunc("DELETE /session/areas/{areaId}/attachments/{name}", s.withSession(s.handleRemoveAttachment))
	s.mux.HandleFunc("POST /session/areas/{areaId}/attachments/{name}/suggest", s.withSession(s.handleSuggestNote))
	s.mux.HandleFunc("PUT /session/inspector", s.withSession(s.handleSetInspector))
	s.mux.HandleFunc("PUT /session/note", s.withSession(s.handleSetGlobalNote))
	s.mux.HandleFunc("PUT /session/signature", s.withSession(s.handleSetSignature))
	s.mux.HandleFunc("POST /session/confirm", s.withSession(s.handleConfirm))
	s.mux.HandleFunc("POST /session/submit", s.withSession(s.handleSubmit))
	s.mux.HandleFunc("GET /inbox", s.handleInbox)
	s.mux.HandleFunc("GET /receipts", s.handleReceipts)
	s.mux.HandleFunc("GET /receipts/{receiptId}/files/{fileId}", s.handleArchivedFile)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
}

// securityHeaders sets browser hardening headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger logs and counts every request. Metrics are labelled by route
// pattern rather than raw path to keep cardinality bounded.
func requestLogger(logger *slog.Logger, m *metrics.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(route, rec.status, elapsed)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

// recoveryLogger adapts slog to the gorilla recovery handler.
type recoveryLogger struct{ logger *slog.Logger }

func (l recoveryLogger) Println(v ...any) {
	l.logger.Error("panic recovered", "detail", fmt.Sprint(v...))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// controller returns the caller's session controller, creating one and
// setting the cookie when the request carries none or an expired one.
func (s *Server) existingController(r *http.Request) (*session.Controller, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, false
	}
	return s.sessions.Get(c.Value)
}

// withSession hands h the controller bound to the browser's session cookie,
// creating a session and setting the cookie when there is none.
func (s *Server) withSession(h func(http.ResponseWriter, *http.Request, *session.Controller)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ctrl, ok := s.existingController(r); ok {
			h(w, r, ctrl)
			return
		}
		id, ctrl, err := s.sessions.Create()
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
		h(w, r, ctrl)
	}
}
