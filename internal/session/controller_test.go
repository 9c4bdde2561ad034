package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/roomcheck/internal/backend"
	"github.com/vbonduro/roomcheck/internal/domain"
	"github.com/vbonduro/roomcheck/internal/flow"
	"github.com/vbonduro/roomcheck/internal/inspection"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type recorderFunc func(ctx context.Context, sub Submission)

func (f recorderFunc) Submitted(ctx context.Context, sub Submission) { f(ctx, sub) }

func newController(t *testing.T, b backend.Backend, v inspection.Variant) *Controller {
	t.Helper()
	return New(Deps{Backend: b, Variant: v, Logger: testLogger()})
}

func markAll(t *testing.T, c *Controller, status domain.AreaStatus) {
	t.Helper()
	for _, a := range c.Snapshot().Form.Areas {
		_, err := c.SetStatus(a.ID, status)
		require.NoError(t, err)
	}
}

func TestCheckInEndToEnd(t *testing.T) {
	mock := backend.NewMockBackend("waiting_form")
	var recorded []Submission
	c := New(Deps{
		Backend:  mock,
		Variant:  inspection.CheckIn(),
		Logger:   testLogger(),
		Recorder: recorderFunc(func(_ context.Context, sub Submission) { recorded = append(recorded, sub) }),
	})

	snap, err := c.Resolve(context.Background(), "B503")
	require.NoError(t, err)
	assert.Equal(t, StateResolved, snap.State)
	assert.Equal(t, ViewIntro, snap.View)
	require.NotNil(t, snap.Form)
	require.Len(t, snap.Form.Areas, 9)
	for _, a := range snap.Form.Areas {
		assert.Equal(t, domain.StatusPending, a.Status)
	}
	assert.Equal(t, 0, snap.Form.Completed)

	snap, err = c.Start()
	require.NoError(t, err)
	assert.Equal(t, ViewForm, snap.View)

	markAll(t, c, domain.StatusOK)
	_, err = c.SetSignature("data:image/png;base64,AAAA")
	require.NoError(t, err)

	token, snap, err := c.Confirm()
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, 100, snap.Form.ProgressPercent)

	snap, err = c.Submit(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, StateSubmitted, snap.State)
	require.NotNil(t, snap.Result)
	assert.True(t, snap.Result.OK)
	assert.Equal(t, "B503", snap.Result.RoomID)
	assert.NotEmpty(t, snap.Result.PDFURL)

	subs := mock.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "Tenant", subs[0].Fields.Inspector)
	require.Len(t, recorded, 1)
	assert.Equal(t, "checkin", recorded[0].Variant)
}

func TestCompletedFlowIsTerminal(t *testing.T) {
	for _, tc := range []struct {
		variant inspection.Variant
		status  string
	}{
		{inspection.CheckIn(), "completed"},
		{inspection.CheckOut(), "COMPLETED"},
		{inspection.CheckOut(), "INSPECTION_DONE"},
	} {
		mock := backend.NewMockBackend("unused")
		mock.SetSession(domain.Session{OK: true, FlowID: "F", Status: tc.status, RoomID: "B503"})
		c := newController(t, mock, tc.variant)

		snap, err := c.Resolve(context.Background(), "F")

		var resErr *ResolutionError
		require.ErrorAs(t, err, &resErr, tc.status)
		assert.Equal(t, ResolutionAlreadyCompleted, resErr.Kind)
		assert.Equal(t, StateError, snap.State)
		assert.Nil(t, snap.Form)
		require.NotNil(t, snap.Error)
		assert.Equal(t, "already_completed", snap.Error.Kind)
	}
}

func TestUnknownStatusIsNotFound(t *testing.T) {
	mock := backend.NewMockBackend("expired")
	c := newController(t, mock, inspection.CheckIn())

	_, err := c.Resolve(context.Background(), "F")

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, ResolutionNotFound, resErr.Kind)
}

type failingBackend struct {
	*backend.MockBackend
	resolveErr  error
	detailErr   error
	submitErr   error
	submitNotOK bool
}

func (f *failingBackend) Resolve(ctx context.Context, id string) (domain.Session, error) {
	if f.resolveErr != nil {
		return domain.Session{}, f.resolveErr
	}
	return f.MockBackend.Resolve(ctx, id)
}

func (f *failingBackend) FlowDetail(ctx context.Context, id string) (domain.FlowDetail, error) {
	if f.detailErr != nil {
		return domain.FlowDetail{}, f.detailErr
	}
	return f.MockBackend.FlowDetail(ctx, id)
}

func (f *failingBackend) Submit(ctx context.Context, p inspection.Payload) (domain.SubmitResult, error) {
	if f.submitErr != nil {
		return domain.SubmitResult{}, f.submitErr
	}
	if f.submitNotOK {
		return domain.SubmitResult{OK: false}, nil
	}
	return f.MockBackend.Submit(ctx, p)
}

func TestNetworkFailureThenResetReturnsToManualEntry(t *testing.T) {
	fb := &failingBackend{MockBackend: backend.NewMockBackend("waiting_form"), resolveErr: errors.New("dial tcp: refused")}
	c := newController(t, fb, inspection.CheckIn())

	snap, err := c.Resolve(context.Background(), "F")
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, ResolutionNetwork, resErr.Kind)
	assert.Equal(t, StateError, snap.State)

	snap, err = c.Reset()
	require.NoError(t, err)
	assert.Equal(t, StateManualEntry, snap.State)
	assert.Nil(t, snap.Error)
	assert.Empty(t, snap.FlowID)
}

func TestEmptyFlowID(t *testing.T) {
	c := newController(t, backend.NewMockBackend("waiting_form"), inspection.CheckIn())
	snap, err := c.Resolve(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyFlowID)
	assert.Equal(t, StateManualEntry, snap.State)
}

// blockingBackend holds Resolve calls for chosen flows until released.
type blockingBackend struct {
	*backend.MockBackend
	mu      sync.Mutex
	gates   map[string]chan struct{}
	started chan string
}

func (b *blockingBackend) Resolve(ctx context.Context, id string) (domain.Session, error) {
	b.mu.Lock()
	gate := b.gates[id]
	b.mu.Unlock()
	if gate != nil {
		b.started <- id
		<-gate
	}
	return b.MockBackend.Resolve(ctx, id)
}

func TestStaleResolutionIsDiscarded(t *testing.T) {
	bb := &blockingBackend{
		MockBackend: backend.NewMockBackend("waiting_form"),
		gates:       map[string]chan struct{}{"X-A101": make(chan struct{})},
		started:     make(chan string, 1),
	}
	c := newController(t, bb, inspection.CheckIn())

	type result struct {
		snap Snapshot
		err  error
	}
	first := make(chan result, 1)
	go func() {
		s, err := c.Resolve(context.Background(), "X-A101")
		first <- result{s, err}
	}()
	require.Equal(t, "X-A101", <-bb.started)

	snap, err := c.Resolve(context.Background(), "X-B503")
	require.NoError(t, err)
	assert.Equal(t, "B503", snap.Session.RoomID)

	close(bb.gates["X-A101"])
	r := <-first
	assert.ErrorIs(t, r.err, ErrSuperseded)

	snap = c.Snapshot()
	assert.Equal(t, StateResolved, snap.State)
	assert.Equal(t, "X-B503", snap.FlowID)
	assert.Equal(t, "B503", snap.Session.RoomID)
}

func TestResetDiscardsInFlightResolution(t *testing.T) {
	bb := &blockingBackend{
		MockBackend: backend.NewMockBackend("waiting_form"),
		gates:       map[string]chan struct{}{"F": make(chan struct{})},
		started:     make(chan string, 1),
	}
	c := newController(t, bb, inspection.CheckIn())

	done := make(chan error, 1)
	go func() {
		_, err := c.Resolve(context.Background(), "F")
		done <- err
	}()
	<-bb.started
	assert.Equal(t, StateLoading, c.Snapshot().State)

	c.Reset()
	close(bb.gates["F"])

	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Equal(t, StateManualEntry, c.Snapshot().State)
}

func TestSubmitRequiresValidation(t *testing.T) {
	c := newController(t, backend.NewMockBackend("waiting_form"), inspection.CheckIn())
	_, err := c.Resolve(context.Background(), "B503")
	require.NoError(t, err)

	_, err = c.SetStatus("DOOR", domain.StatusOK)
	require.NoError(t, err)

	_, _, err = c.Confirm()
	var valErr *inspection.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, inspection.ValidationIncomplete, valErr.Kind)
	assert.Len(t, valErr.Areas, 8)
	assert.NotContains(t, valErr.Labels(), "Door")

	markAll(t, c, domain.StatusOK)
	_, _, err = c.Confirm()
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, inspection.ValidationMissingSignature, valErr.Kind)
}

func TestSubmitTokenIsOneShotAndVersionBound(t *testing.T) {
	fb := &failingBackend{MockBackend: backend.NewMockBackend("waiting_form"), submitErr: errors.New("timeout")}
	c := newController(t, fb, inspection.CheckIn())
	_, err := c.Resolve(context.Background(), "B503")
	require.NoError(t, err)
	markAll(t, c, domain.StatusOK)
	_, err = c.SetSignature("sig")
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	token, _, err := c.Confirm()
	require.NoError(t, err)
	_, err = c.SetNote("DOOR", "scratch")
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken, "edits invalidate confirmation")

	token, _, err = c.Confirm()
	require.NoError(t, err)
	snap, err := c.Submit(context.Background(), token)
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, SubmissionNetwork, subErr.Kind)
	assert.Equal(t, StateResolved, snap.State)
	require.NotNil(t, snap.Form)
	assert.Equal(t, "scratch", snap.Form.Areas[0].Note, "form survives a failed submission")

	_, err = c.Submit(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken, "token is consumed")

	fb.submitErr = nil
	token, _, err = c.Confirm()
	require.NoError(t, err)
	snap, err = c.Submit(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, StateSubmitted, snap.State)
}

func TestSubmitRejected(t *testing.T) {
	fb := &failingBackend{MockBackend: backend.NewMockBackend("waiting_form"), submitNotOK: true}
	c := newController(t, fb, inspection.CheckIn())
	_, err := c.Resolve(context.Background(), "B503")
	require.NoError(t, err)
	markAll(t, c, domain.StatusOK)
	_, err = c.SetSignature("sig")
	require.NoError(t, err)

	token, _, err := c.Confirm()
	require.NoError(t, err)
	snap, err := c.Submit(context.Background(), token)

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, SubmissionRejected, subErr.Kind)
	require.NotNil(t, snap.Error)
	assert.Equal(t, "submission_rejected", snap.Error.Kind)
}

func TestCheckOutFlowAndEvidence(t *testing.T) {
	mock := backend.NewMockBackend("START")
	c := newController(t, mock, inspection.CheckOut())

	snap, err := c.Resolve(context.Background(), "U1-B503")
	require.NoError(t, err)
	assert.Equal(t, ViewFlow, snap.View)
	require.NotNil(t, snap.Flow)
	require.Len(t, snap.Flow.Tasks, 3)

	action, _, err := c.OpenTask("U1-B503-fridge")
	require.NoError(t, err)
	ni, ok := action.(flow.NotImplemented)
	require.True(t, ok)
	assert.NotEmpty(t, ni.Message)
	assert.Equal(t, ViewFlow, c.Snapshot().View)

	_, _, err = c.OpenTask("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	action, snap, err = c.OpenTask("U1-B503-room")
	require.NoError(t, err)
	assert.IsType(t, flow.OpenInspection{}, action)
	assert.Equal(t, ViewForm, snap.View)

	markAll(t, c, domain.StatusOK)
	_, err = c.SetStatus("BED", domain.StatusProblem)
	require.NoError(t, err)
	_, err = c.SetSignature("sig")
	require.NoError(t, err)

	_, _, err = c.Confirm()
	var valErr *inspection.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, inspection.ValidationMissingEvidence, valErr.Kind)
	assert.Equal(t, []string{"Bed and mattress"}, valErr.Labels())

	_, err = c.SetNote("BED", "stain on mattress")
	require.NoError(t, err)
	_, err = c.AddAttachment(context.Background(), "BED", "bed.png", bytes.NewReader(pngBytes(t, 40, 20)))
	require.NoError(t, err)

	token, _, err := c.Confirm()
	require.NoError(t, err)
	snap, err = c.Submit(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "B503", snap.Result.RoomID)

	subs := mock.Submissions()
	require.Len(t, subs, 1)
	require.Len(t, subs[0].Files, 1)
	assert.Equal(t, "BED", subs[0].Files[0].Area)
	assert.Equal(t, "image/jpeg", subs[0].Files[0].Mime)
}

func TestFlowDetailFailureDegrades(t *testing.T) {
	fb := &failingBackend{MockBackend: backend.NewMockBackend("START"), detailErr: errors.New("down")}
	c := newController(t, fb, inspection.CheckOut())

	snap, err := c.Resolve(context.Background(), "U1-B503")
	require.NoError(t, err)
	require.NotNil(t, snap.Flow)
	assert.Empty(t, snap.Flow.Tasks)
	assert.Equal(t, flow.NoDueLabel, snap.Flow.DueLabel)
	assert.Equal(t, 0, snap.Flow.ProgressPercent)

	snap, err = c.Start()
	require.NoError(t, err)
	assert.Equal(t, ViewForm, snap.View)
}

func TestAttachments(t *testing.T) {
	c := newController(t, backend.NewMockBackend("waiting_form"), inspection.CheckIn())
	_, err := c.Resolve(context.Background(), "B503")
	require.NoError(t, err)

	img := pngBytes(t, 30, 30)
	_, err = c.AddAttachment(context.Background(), "DOOR", "photo.png", bytes.NewReader(img))
	require.NoError(t, err)
	snap, err := c.AddAttachment(context.Background(), "DOOR", "photo.png", bytes.NewReader(img))
	require.NoError(t, err)
	_, err = c.AddAttachment(context.Background(), "BED", "photo.png", bytes.NewReader(img))
	require.NoError(t, err)

	door := snap.Form.Areas[0]
	require.Len(t, door.Attachments, 2)
	assert.Equal(t, "photo.png", door.Attachments[0].Name)
	assert.Equal(t, "photo (2).png", door.Attachments[1].Name)
	assert.Contains(t, door.Attachments[0].Preview, "data:image/png;base64,")

	snap, err = c.RemoveAttachment("DOOR", "photo.png")
	require.NoError(t, err)
	require.Len(t, snap.Form.Areas[0].Attachments, 1)
	assert.Equal(t, "photo (2).png", snap.Form.Areas[0].Attachments[0].Name)
	assert.Len(t, snap.Form.Areas[2].Attachments, 1, "same name in another area is untouched")

	before := c.Snapshot().Form
	_, err = c.AddAttachment(context.Background(), "DOOR", "bad.jpg", bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
	assert.Equal(t, before, c.Snapshot().Form, "failed ingestion leaves the form unchanged")

	_, err = c.AddAttachment(context.Background(), "NOPE", "a.png", bytes.NewReader(img))
	assert.ErrorIs(t, err, inspection.ErrUnknownArea)
}

func TestConcurrentAttachmentsAcrossAreas(t *testing.T) {
	c := newController(t, backend.NewMockBackend("waiting_form"), inspection.CheckIn())
	_, err := c.Resolve(context.Background(), "B503")
	require.NoError(t, err)

	img := pngBytes(t, 64, 64)
	areas := c.Snapshot().Form.Areas
	var wg sync.WaitGroup
	for _, a := range areas {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := c.AddAttachment(context.Background(), id, "p.png", bytes.NewReader(img))
			assert.NoError(t, err)
		}(a.ID)
	}
	wg.Wait()

	for _, a := range c.Snapshot().Form.Areas {
		assert.Len(t, a.Attachments, 1, a.ID)
	}
}

func TestMutationsWithoutFormFail(t *testing.T) {
	c := newController(t, backend.NewMockBackend("waiting_form"), inspection.CheckIn())
	_, err := c.SetStatus("DOOR", domain.StatusOK)
	assert.ErrorIs(t, err, ErrNoForm)
	_, _, err = c.Confirm()
	assert.ErrorIs(t, err, ErrNoForm)
	_, err = c.Start()
	assert.ErrorIs(t, err, ErrNoForm)
	_, _, err = c.OpenTask("x")
	assert.ErrorIs(t, err, ErrNoFlow)
}

func TestLastSeenAdvances(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(Deps{Backend: backend.NewMockBackend("waiting_form"), Variant: inspection.CheckIn(), Logger: testLogger(), Now: func() time.Time { return now }})
	assert.Equal(t, now, c.LastSeen())

	now = now.Add(time.Minute)
	c.Reset()
	assert.Equal(t, now, c.LastSeen())
}

// heldSubmitBackend parks Submit until release is closed.
type heldSubmitBackend struct {
	*backend.MockBackend
	started chan struct{}
	release chan struct{}
}

func newHeldSubmitBackend() *heldSubmitBackend {
	return &heldSubmitBackend{
		MockBackend: backend.NewMockBackend("waiting_form"),
		started:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
}

func (b *heldSubmitBackend) Submit(ctx context.Context, p inspection.Payload) (domain.SubmitResult, error) {
	b.started <- struct{}{}
	<-b.release
	return b.MockBackend.Submit(ctx, p)
}

func confirmedController(t *testing.T, b backend.Backend, rec Recorder) (*Controller, string) {
	t.Helper()
	c := New(Deps{Backend: b, Variant: inspection.CheckIn(), Logger: testLogger(), Recorder: rec})
	_, err := c.Resolve(context.Background(), "B503")
	require.NoError(t, err)
	markAll(t, c, domain.StatusOK)
	_, err = c.SetSignature("sig")
	require.NoError(t, err)
	token, _, err := c.Confirm()
	require.NoError(t, err)
	return c, token
}

type submitOutcome struct {
	snap Snapshot
	err  error
}

func TestSubmissionInFlightFreezesSession(t *testing.T) {
	hb := newHeldSubmitBackend()
	var mu sync.Mutex
	recorded := 0
	c, token := confirmedController(t, hb, recorderFunc(func(context.Context, Submission) {
		mu.Lock()
		recorded++
		mu.Unlock()
	}))

	done := make(chan submitOutcome, 1)
	go func() {
		s, err := c.Submit(context.Background(), token)
		done <- submitOutcome{s, err}
	}()
	<-hb.started

	assert.True(t, c.Snapshot().Submitting)

	_, _, err := c.Confirm()
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	_, err = c.Submit(context.Background(), token)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	_, err = c.SetNote("DOOR", "late edit")
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	_, err = c.SetStatus("DOOR", domain.StatusProblem)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	_, err = c.AddAttachment(context.Background(), "DOOR", "p.png", bytes.NewReader(pngBytes(t, 8, 8)))
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	_, err = c.Resolve(context.Background(), "X-A101")
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	close(hb.release)
	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, StateSubmitted, out.snap.State)
	assert.False(t, out.snap.Submitting)

	subs := hb.Submissions()
	require.Len(t, subs, 1, "only one payload reaches the backend")
	assert.Empty(t, subs[0].MetaByArea["DOOR"].Note)
	mu.Lock()
	assert.Equal(t, 1, recorded)
	mu.Unlock()
}

func TestResetDuringSubmissionKeepsAcceptedResult(t *testing.T) {
	hb := newHeldSubmitBackend()
	var recorded []Submission
	c, token := confirmedController(t, hb, recorderFunc(func(_ context.Context, sub Submission) {
		recorded = append(recorded, sub)
	}))

	done := make(chan submitOutcome, 1)
	go func() {
		s, err := c.Submit(context.Background(), token)
		done <- submitOutcome{s, err}
	}()
	<-hb.started

	snap, err := c.Reset()
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.Equal(t, StateResolved, snap.State)

	close(hb.release)
	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, StateSubmitted, out.snap.State)
	require.NotNil(t, out.snap.Result)
	assert.NotEmpty(t, out.snap.Result.PDFURL)
	require.Len(t, recorded, 1)
	assert.Equal(t, out.snap.Result.PDFURL, recorded[0].Result.PDFURL)

	snap, err = c.Reset()
	require.NoError(t, err)
	assert.Equal(t, StateManualEntry, snap.State)
}

// signalReader closes started on its first Read.
type signalReader struct {
	r       io.Reader
	once    sync.Once
	started chan struct{}
}

func (s *signalReader) Read(p []byte) (int, error) {
	s.once.Do(func() { close(s.started) })
	return s.r.Read(p)
}

func TestAttachmentFromPreviousSessionIsDropped(t *testing.T) {
	c := newController(t, backend.NewMockBackend("waiting_form"), inspection.CheckIn())
	_, err := c.Resolve(context.Background(), "B503")
	require.NoError(t, err)

	pr, pw := io.Pipe()
	sr := &signalReader{r: pr, started: make(chan struct{})}
	done := make(chan error, 1)
	go func() {
		_, err := c.AddAttachment(context.Background(), "DOOR", "p.png", sr)
		done <- err
	}()
	<-sr.started

	_, err = c.Reset()
	require.NoError(t, err)
	_, err = c.Resolve(context.Background(), "X-A101")
	require.NoError(t, err)

	img := pngBytes(t, 16, 16)
	go func() {
		_, _ = pw.Write(img)
		_ = pw.Close()
	}()

	assert.ErrorIs(t, <-done, ErrSuperseded)
	for _, a := range c.Snapshot().Form.Areas {
		assert.Empty(t, a.Attachments, a.ID)
	}
}
