// Package session drives one inspection from flow resolution to submission.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/roomcheck/internal/attachment"
	"github.com/vbonduro/roomcheck/internal/backend"
	"github.com/vbonduro/roomcheck/internal/checklist"
	"github.com/vbonduro/roomcheck/internal/domain"
	"github.com/vbonduro/roomcheck/internal/flow"
	"github.com/vbonduro/roomcheck/internal/inspection"
	"github.com/vbonduro/roomcheck/internal/metrics"
)

// Submission describes an inspection the backend accepted.
type Submission struct {
	Session     domain.Session
	Variant     string
	Payload     inspection.Payload
	Result      domain.SubmitResult
	SubmittedAt time.Time
}

// Recorder is notified after every accepted submission. It runs after the
// session has moved to StateSubmitted and cannot fail the submission.
type Recorder interface {
	Submitted(ctx context.Context, sub Submission)
}

type Deps struct {
	Backend   backend.Backend
	Variant   inspection.Variant
	Checklist *checklist.Checklist
	Pipeline  *attachment.Pipeline
	Recorder  Recorder
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// Controller holds the state of one browser session. All methods are safe for
// concurrent use; the form is replaced wholesale under mu and never mutated.
type Controller struct {
	backend   backend.Backend
	variant   inspection.Variant
	checklist *checklist.Checklist
	pipeline  *attachment.Pipeline
	recorder  Recorder
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	state      State
	view       View
	flowID     string
	session    *domain.Session
	summary    *domain.FlowSummary
	form       *inspection.Form
	err        error
	result     *domain.SubmitResult
	pendingTag string
	// generation changes whenever the session is reset or re-resolved, so
	// work started against an older session can detect it.
	generation   int
	version      int
	confirmToken string
	confirmFor   int
	// submitting is set while an accepted confirmation is on the wire; the
	// form is frozen until the backend answers.
	submitting bool
	lastSeen   time.Time
}

func New(d Deps) *Controller {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Checklist == nil {
		d.Checklist = checklist.Default()
	}
	if d.Pipeline == nil {
		d.Pipeline = attachment.New(attachment.Options{})
	}
	return &Controller{
		backend:   d.Backend,
		variant:   d.Variant,
		checklist: d.Checklist,
		pipeline:  d.Pipeline,
		recorder:  d.Recorder,
		metrics:   d.Metrics,
		logger:    d.Logger,
		now:       d.Now,
		state:     StateManualEntry,
		lastSeen:  d.Now(),
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		State:   c.state,
		Variant: c.variant.Name,
		FlowID:  c.flowID,
		Error:   ErrorViewOf(c.err),
		Result:  c.result,

		Submitting: c.submitting,
	}
	if c.state == StateResolved {
		s.View = c.view
	}
	if c.session != nil {
		sess := *c.session
		s.Session = &sess
	}
	if c.summary != nil {
		v := flow.NewView(*c.summary, c.now())
		s.Flow = &v
	}
	if c.form != nil && c.state == StateResolved {
		s.Form = newFormView(c.form, c.version)
	}
	return s
}

func (c *Controller) touch() { c.lastSeen = c.now() }

// LastSeen is when the controller was last used.
func (c *Controller) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

func (c *Controller) clearLocked() {
	c.generation++
	c.pendingTag = ""
	c.session = nil
	c.summary = nil
	c.form = nil
	c.err = nil
	c.result = nil
	c.view = ""
	c.version = 0
	c.confirmToken = ""
}

// Reset discards everything and returns to manual entry. A resolution still
// in flight is ignored when it completes. A submission in flight cannot be
// abandoned.
func (c *Controller) Reset() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if c.submitting {
		return c.snapshotLocked(), ErrSubmissionInFlight
	}
	c.clearLocked()
	c.flowID = ""
	c.state = StateManualEntry
	return c.snapshotLocked(), nil
}

// Resolve looks up flowID and, when the backend reports an open session,
// prepares a fresh form. Only the most recent call may change state; an
// earlier call that finishes later returns ErrSuperseded.
func (c *Controller) Resolve(ctx context.Context, flowID string) (Snapshot, error) {
	flowID = strings.TrimSpace(flowID)
	if flowID == "" {
		return c.Snapshot(), ErrEmptyFlowID
	}

	tag := uuid.NewString()
	c.mu.Lock()
	if c.submitting {
		defer c.mu.Unlock()
		return c.snapshotLocked(), ErrSubmissionInFlight
	}
	c.clearLocked()
	c.pendingTag = tag
	c.flowID = flowID
	c.state = StateLoading
	c.touch()
	c.mu.Unlock()

	log := c.logger.With("flow_id", flowID, "request", tag)
	log.Info("resolving flow")

	sess, lookupErr := c.backend.Resolve(ctx, flowID)
	resolution := inspection.ResolutionNotFound
	if lookupErr == nil {
		resolution = c.variant.Classify(sess)
	}

	var summary *domain.FlowSummary
	if resolution == inspection.ResolutionContinue && c.variant.FlowTasks {
		summary = c.loadSummary(ctx, log, flowID, sess)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingTag != tag {
		log.Debug("discarding stale resolution")
		return c.snapshotLocked(), ErrSuperseded
	}
	c.pendingTag = ""

	if lookupErr != nil {
		log.Warn("flow lookup failed", "error", lookupErr)
		c.metrics.Resolution(string(ResolutionNetwork))
		return c.failLocked(&ResolutionError{Kind: ResolutionNetwork, FlowID: flowID, Err: lookupErr})
	}

	switch resolution {
	case inspection.ResolutionAlreadyCompleted:
		c.metrics.Resolution(string(ResolutionAlreadyCompleted))
		return c.failLocked(&ResolutionError{Kind: ResolutionAlreadyCompleted, FlowID: flowID})
	case inspection.ResolutionNotFound:
		c.metrics.Resolution(string(ResolutionNotFound))
		return c.failLocked(&ResolutionError{Kind: ResolutionNotFound, FlowID: flowID})
	}

	if sess.FlowID == "" {
		sess.FlowID = flowID
	}
	c.session = &sess
	c.summary = summary
	c.form = inspection.NewForm(c.checklist)
	c.state = StateResolved
	c.view = ViewIntro
	if summary != nil {
		c.view = ViewFlow
	}
	c.metrics.Resolution("continue")
	log.Info("flow resolved", "room_id", sess.RoomID, "status", sess.Status)
	return c.snapshotLocked(), nil
}

func (c *Controller) failLocked(err error) (Snapshot, error) {
	c.state = StateError
	c.err = err
	return c.snapshotLocked(), err
}

// loadSummary fetches the task bundle. Failures only degrade the flow view to
// placeholders.
func (c *Controller) loadSummary(ctx context.Context, log *slog.Logger, flowID string, sess domain.Session) *domain.FlowSummary {
	summary := domain.FlowSummary{FlowID: flowID, RoomID: sess.RoomID}
	detail, err := c.backend.FlowDetail(ctx, flowID)
	if err != nil {
		log.Warn("flow detail unavailable", "error", err)
		return &summary
	}
	if !detail.OK {
		log.Warn("flow detail reported not ok")
		return &summary
	}
	summary = flow.FromDetail(flowID, detail)
	if summary.RoomID == "" {
		summary.RoomID = sess.RoomID
	}
	return &summary
}

// Start leaves the intro or flow summary and opens the inspection form.
func (c *Controller) Start() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if c.state != StateResolved || c.form == nil {
		return c.snapshotLocked(), ErrNoForm
	}
	c.view = ViewForm
	return c.snapshotLocked(), nil
}

// OpenTask selects a task of the flow bundle. The inspection task opens the
// form; other task types return their NotImplemented action unchanged.
func (c *Controller) OpenTask(taskID string) (flow.Action, Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if c.state != StateResolved || c.summary == nil {
		return nil, c.snapshotLocked(), ErrNoFlow
	}

	for _, t := range c.summary.Tasks {
		if t.TaskID != taskID {
			continue
		}
		action := flow.ActionFor(t)
		if _, ok := action.(flow.OpenInspection); ok {
			c.view = ViewForm
		}
		return action, c.snapshotLocked(), nil
	}
	return nil, c.snapshotLocked(), ErrTaskNotFound
}

// update applies fn to the current form and installs the result. Any change
// invalidates a pending confirmation.
func (c *Controller) update(fn func(*inspection.Form) (*inspection.Form, error)) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateLocked(fn)
}

func (c *Controller) updateLocked(fn func(*inspection.Form) (*inspection.Form, error)) (Snapshot, error) {
	c.touch()
	if c.submitting {
		return c.snapshotLocked(), ErrSubmissionInFlight
	}
	if c.state != StateResolved || c.form == nil {
		return c.snapshotLocked(), ErrNoForm
	}
	next, err := fn(c.form)
	if err != nil {
		return c.snapshotLocked(), err
	}
	c.form = next
	c.version++
	c.confirmToken = ""
	return c.snapshotLocked(), nil
}

func (c *Controller) SetStatus(areaID string, status domain.AreaStatus) (Snapshot, error) {
	return c.update(func(f *inspection.Form) (*inspection.Form, error) {
		return f.SetStatus(areaID, status)
	})
}

func (c *Controller) SetNote(areaID, note string) (Snapshot, error) {
	return c.update(func(f *inspection.Form) (*inspection.Form, error) {
		return f.SetNote(areaID, note)
	})
}

func (c *Controller) SetInspector(name string) (Snapshot, error) {
	return c.update(func(f *inspection.Form) (*inspection.Form, error) {
		return f.WithInspector(name), nil
	})
}

func (c *Controller) SetGlobalNote(note string) (Snapshot, error) {
	return c.update(func(f *inspection.Form) (*inspection.Form, error) {
		return f.WithGlobalNote(note), nil
	})
}

// SetSignature stores the signature image as a data URI or bare base64. An
// empty value clears it.
func (c *Controller) SetSignature(sig string) (Snapshot, error) {
	return c.update(func(f *inspection.Form) (*inspection.Form, error) {
		return f.WithSignature(sig), nil
	})
}

func (c *Controller) RemoveAttachment(areaID, name string) (Snapshot, error) {
	return c.update(func(f *inspection.Form) (*inspection.Form, error) {
		return f.RemoveAttachment(areaID, name)
	})
}

// AddAttachment compresses the image outside the lock, then appends it to the
// area under the lock. A repeated file name is made unique. If the session was
// reset or re-resolved meanwhile the attachment is dropped with ErrSuperseded.
func (c *Controller) AddAttachment(ctx context.Context, areaID, name string, r io.Reader) (Snapshot, error) {
	c.mu.Lock()
	c.touch()
	if c.submitting {
		defer c.mu.Unlock()
		return c.snapshotLocked(), ErrSubmissionInFlight
	}
	if c.state != StateResolved || c.form == nil {
		defer c.mu.Unlock()
		return c.snapshotLocked(), ErrNoForm
	}
	if _, ok := c.form.Record(areaID); !ok {
		defer c.mu.Unlock()
		return c.snapshotLocked(), fmt.Errorf("%w: %q", inspection.ErrUnknownArea, areaID)
	}
	gen := c.generation
	c.mu.Unlock()

	att, err := c.pipeline.Ingest(ctx, areaID, name, r)
	if err != nil {
		c.metrics.Attachment("error")
		c.logger.Warn("attachment rejected", "area_id", areaID, "name", name, "error", err)
		return c.Snapshot(), err
	}

	c.mu.Lock()
	if c.generation != gen {
		defer c.mu.Unlock()
		return c.snapshotLocked(), ErrSuperseded
	}
	snap, err := c.updateLocked(func(f *inspection.Form) (*inspection.Form, error) {
		att.Name = f.UniqueName(areaID, att.Name)
		return f.AddAttachment(areaID, att)
	})
	c.mu.Unlock()
	if err == nil {
		c.metrics.Attachment("ok")
		c.logger.Debug("attachment added", "area_id", areaID, "name", att.Name, "bytes", len(att.EncodedData))
	}
	return snap, err
}

// Attachment returns a stored attachment, used for note suggestions.
func (c *Controller) Attachment(areaID, name string) (domain.Attachment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.form == nil {
		return domain.Attachment{}, ErrNoForm
	}
	a, ok := c.form.Attachment(areaID, name)
	if !ok {
		return domain.Attachment{}, inspection.ErrAttachmentNotFound
	}
	return a, nil
}

// Confirm runs the submission gates and returns a one-shot token bound to the
// current form version.
func (c *Controller) Confirm() (string, Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if c.submitting {
		return "", c.snapshotLocked(), ErrSubmissionInFlight
	}
	if c.state != StateResolved || c.form == nil {
		return "", c.snapshotLocked(), ErrNoForm
	}
	if err := c.variant.Validate(c.form); err != nil {
		return "", c.snapshotLocked(), err
	}
	c.confirmToken = uuid.NewString()
	c.confirmFor = c.version
	c.err = nil
	return c.confirmToken, c.snapshotLocked(), nil
}

// Submit sends the confirmed form. The token is consumed whatever the outcome;
// on failure the form is kept and a new confirmation is needed to retry. While
// the backend call runs the session rejects edits, confirmations, resets and
// further submissions with ErrSubmissionInFlight.
func (c *Controller) Submit(ctx context.Context, token string) (Snapshot, error) {
	c.mu.Lock()
	c.touch()
	if c.submitting {
		defer c.mu.Unlock()
		return c.snapshotLocked(), ErrSubmissionInFlight
	}
	if c.state != StateResolved || c.form == nil || c.session == nil {
		defer c.mu.Unlock()
		return c.snapshotLocked(), ErrNoForm
	}
	if token == "" || token != c.confirmToken || c.confirmFor != c.version {
		defer c.mu.Unlock()
		return c.snapshotLocked(), ErrInvalidToken
	}
	c.confirmToken = ""
	payload, err := c.variant.Assemble(*c.session, c.form)
	if err != nil {
		defer c.mu.Unlock()
		return c.snapshotLocked(), err
	}
	sess := *c.session
	c.err = nil
	c.submitting = true
	c.mu.Unlock()

	log := c.logger.With("flow_id", sess.FlowID, "room_id", sess.RoomID)
	log.Info("submitting inspection", "files", len(payload.Files), "problems", payload.ProblemCount())

	res, err := c.backend.Submit(ctx, payload)
	var subErr *SubmissionError
	switch {
	case err != nil:
		subErr = &SubmissionError{Kind: SubmissionNetwork, Err: err}
	case !res.OK:
		subErr = &SubmissionError{Kind: SubmissionRejected, Err: errors.New("backend returned ok=false")}
	}

	c.mu.Lock()
	c.submitting = false
	if subErr != nil {
		c.err = subErr
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.metrics.Submission(c.variant.Name, string(subErr.Kind))
		log.Error("submission failed", "kind", subErr.Kind, "error", subErr.Err)
		return snap, subErr
	}
	if res.RoomID == "" {
		res.RoomID = sess.RoomID
	}
	c.state = StateSubmitted
	c.result = &res
	c.form = nil
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.metrics.Submission(c.variant.Name, "ok")
	log.Info("inspection submitted", "pdf_url", res.PDFURL)

	if c.recorder != nil {
		// The submission already happened; bookkeeping must not be cut short
		// by the caller going away.
		c.recorder.Submitted(context.WithoutCancel(ctx), Submission{
			Session:     sess,
			Variant:     c.variant.Name,
			Payload:     payload,
			Result:      res,
			SubmittedAt: c.now(),
		})
	}
	return snap, nil
}
