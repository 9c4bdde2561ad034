package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/vbonduro/roomcheck/internal/domain"
	"github.com/vbonduro/roomcheck/internal/events"
	"github.com/vbonduro/roomcheck/internal/metrics"
	"github.com/vbonduro/roomcheck/internal/photostore"
	"github.com/vbonduro/roomcheck/internal/session"
	"github.com/vbonduro/roomcheck/internal/vision"
)

var (
	// ErrVisionDisabled is returned by SuggestNote when no describer is configured.
	ErrVisionDisabled = errors.New("note suggestions are not enabled")
	ErrDescribeFailed = errors.New("note suggestion failed")
	ErrFileNotFound   = errors.New("archived file not found")
)

// signatureArea is the area id under which the tenant signature is archived.
const signatureArea = "signature"

// receiptRepository is the subset of store.ReceiptStore that SubmissionService requires.
type receiptRepository interface {
	Create(ctx context.Context, r domain.Receipt) (*domain.Receipt, error)
	List(ctx context.Context, limit int) ([]*domain.Receipt, error)
	ListByFlow(ctx context.Context, flowID string) ([]*domain.Receipt, error)
}

// archiveRepository is the subset of store.ArchiveStore that SubmissionService requires.
type archiveRepository interface {
	Create(ctx context.Context, receiptID int64, areaID, name, storageKey, mimeType string) (*domain.ArchivedFile, error)
	ListByReceipt(ctx context.Context, receiptID int64) ([]*domain.ArchivedFile, error)
	Get(ctx context.Context, id int64) (*domain.ArchivedFile, error)
}

// SubmissionService runs the bookkeeping that follows an accepted
// inspection: receipt, evidence archive and event. None of it can fail the
// submission, so errors are logged and counted only.
type SubmissionService struct {
	receipts  receiptRepository
	archive   archiveRepository
	photoStg  photostore.PhotoStore
	publisher events.Publisher
	describer vision.Describer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewSubmissionService(
	receipts receiptRepository,
	archive archiveRepository,
	photoStg photostore.PhotoStore,
	publisher events.Publisher,
	describer vision.Describer,
	m *metrics.Metrics,
	logger *slog.Logger,
) *SubmissionService {
	if photoStg == nil {
		photoStg = photostore.Noop{}
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionService{
		receipts:  receipts,
		archive:   archive,
		photoStg:  photoStg,
		publisher: publisher,
		describer: describer,
		metrics:   m,
		logger:    logger,
	}
}

var _ session.Recorder = (*SubmissionService)(nil)

// Submitted implements session.Recorder.
func (s *SubmissionService) Submitted(ctx context.Context, sub session.Submission) {
	logger := s.logger.With("flow_id", sub.Payload.FlowID, "room_id", sub.Result.RoomID)

	roomID := sub.Result.RoomID
	if roomID == "" {
		roomID = sub.Payload.Fields.RoomID
	}
	submittedAt := sub.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}

	receipt, err := s.receipts.Create(ctx, domain.Receipt{
		FlowID:       sub.Payload.FlowID,
		RoomID:       roomID,
		PDFURL:       sub.Result.PDFURL,
		Variant:      sub.Variant,
		AreaCount:    len(sub.Payload.MetaByArea),
		ProblemCount: sub.Payload.ProblemCount(),
		FileCount:    len(sub.Payload.Files),
		SubmittedAt:  submittedAt.UTC(),
	})
	if err != nil {
		logger.Error("failed to record receipt", "error", err)
	} else {
		s.archiveEvidence(ctx, logger, receipt.ID, sub)
	}

	ev := events.Submitted{
		Type:         events.TypeSubmitted,
		FlowID:       sub.Payload.FlowID,
		RoomID:       roomID,
		Variant:      sub.Variant,
		PDFURL:       sub.Result.PDFURL,
		AreaCount:    len(sub.Payload.MetaByArea),
		ProblemCount: sub.Payload.ProblemCount(),
		FileCount:    len(sub.Payload.Files),
		SubmittedAt:  submittedAt.UTC(),
	}
	if err := s.publisher.PublishSubmitted(ctx, ev); err != nil {
		logger.Error("failed to publish submission event", "error", err)
	}
}

// archiveEvidence copies every attachment and the signature to the photo
// store and indexes them against the receipt.
func (s *SubmissionService) archiveEvidence(ctx context.Context, logger *slog.Logger, receiptID int64, sub session.Submission) {
	prefix := sub.Payload.FlowID
	for _, f := range sub.Payload.Files {
		data, err := base64.StdEncoding.DecodeString(f.Base64)
		if err != nil {
			s.metrics.Archived("error")
			logger.Warn("skipping undecodable attachment", "area_id", f.Area, "name", f.Name, "error", err)
			continue
		}
		s.archiveOne(ctx, logger, receiptID, prefix, f.Area, f.Name, f.Mime, data)
	}

	sig := sub.Payload.Fields.TenantSignature
	if sig == "" {
		return
	}
	mimeType, data, err := decodeDataURI(sig)
	if err != nil {
		s.metrics.Archived("error")
		logger.Warn("skipping undecodable signature", "error", err)
		return
	}
	s.archiveOne(ctx, logger, receiptID, prefix, signatureArea, "signature"+photostore.MimeTypeToExt(mimeType), mimeType, data)
}

func (s *SubmissionService) archiveOne(ctx context.Context, logger *slog.Logger, receiptID int64, prefix, areaID, name, mimeType string, data []byte) {
	key, err := s.photoStg.Save(ctx, prefix+"/"+areaID, mimeType, bytes.NewReader(data))
	if err != nil {
		s.metrics.Archived("error")
		logger.Error("failed to archive file", "area_id", areaID, "name", name, "error", err)
		return
	}
	if _, err := s.archive.Create(ctx, receiptID, areaID, name, key, mimeType); err != nil {
		s.metrics.Archived("error")
		logger.Error("failed to index archived file", "area_id", areaID, "key", key, "error", err)
		// Don't leave an unindexed orphan behind.
		if delErr := s.photoStg.Delete(ctx, key); delErr != nil {
			logger.Error("failed to delete orphaned file", "key", key, "error", delErr)
		}
		return
	}
	s.metrics.Archived("ok")
}

// ReceiptView is a receipt with the files archived for it.
type ReceiptView struct {
	*domain.Receipt
	Files []FileView
}

// FileView is an archived file. PublicURL is set only when the photo store
// serves objects publicly.
type FileView struct {
	*domain.ArchivedFile
	PublicURL string
}

func (s *SubmissionService) ListReceipts(ctx context.Context, limit int) ([]ReceiptView, error) {
	receipts, err := s.receipts.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	return s.withFiles(ctx, receipts)
}

// ReceiptsForFlow returns every receipt recorded for flowID, newest first.
func (s *SubmissionService) ReceiptsForFlow(ctx context.Context, flowID string) ([]ReceiptView, error) {
	receipts, err := s.receipts.ListByFlow(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts for flow %s: %w", flowID, err)
	}
	return s.withFiles(ctx, receipts)
}

func (s *SubmissionService) withFiles(ctx context.Context, receipts []*domain.Receipt) ([]ReceiptView, error) {
	linker, _ := s.photoStg.(photostore.Linker)
	out := make([]ReceiptView, 0, len(receipts))
	for _, r := range receipts {
		files, err := s.archive.ListByReceipt(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list archived files for receipt %d: %w", r.ID, err)
		}
		views := make([]FileView, 0, len(files))
		for _, f := range files {
			v := FileView{ArchivedFile: f}
			if linker != nil {
				v.PublicURL = linker.PublicURL(f.StorageKey)
			}
			views = append(views, v)
		}
		out = append(out, ReceiptView{Receipt: r, Files: views})
	}
	return out, nil
}

// OpenArchivedFile streams an archived file of a receipt. The caller closes
// the reader.
func (s *SubmissionService) OpenArchivedFile(ctx context.Context, receiptID, fileID int64) (*domain.ArchivedFile, io.ReadCloser, error) {
	f, err := s.archive.Get(ctx, fileID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up archived file: %w", err)
	}
	if f == nil || f.ReceiptID != receiptID {
		return nil, nil, ErrFileNotFound
	}
	rc, _, err := s.photoStg.Get(ctx, f.StorageKey)
	if errors.Is(err, photostore.ErrNotFound) {
		return nil, nil, ErrFileNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archived file: %w", err)
	}
	return f, rc, nil
}

// SuggestNote asks the vision backend for a defect note for one attachment.
func (s *SubmissionService) SuggestNote(ctx context.Context, att domain.Attachment, areaLabel string) (*vision.Suggestion, error) {
	if s.describer == nil {
		return nil, ErrVisionDisabled
	}
	data, err := base64.StdEncoding.DecodeString(att.EncodedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment: %w", err)
	}
	sug, err := s.describer.Describe(ctx, bytes.NewReader(data), att.MimeType, areaLabel)
	if err != nil {
		s.logger.Warn("note suggestion failed", "area_id", att.AreaID, "name", att.Name, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrDescribeFailed, err)
	}
	return sug, nil
}

// decodeDataURI accepts "data:<mime>;base64,<data>" or bare base64, which is
// taken to be PNG.
func decodeDataURI(s string) (string, []byte, error) {
	mimeType := "image/png"
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found {
			return "", nil, errors.New("malformed data URI")
		}
		if !strings.HasSuffix(header, ";base64") {
			return "", nil, errors.New("data URI is not base64 encoded")
		}
		if m := strings.TrimSuffix(header, ";base64"); m != "" {
			mimeType = m
		}
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	return mimeType, data, nil
}
