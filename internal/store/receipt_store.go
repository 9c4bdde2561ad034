package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vbonduro/roomcheck/internal/domain"
)

const defaultListLimit = 100

type ReceiptStore struct {
	db *sql.DB
}

func NewReceiptStore(db *sql.DB) *ReceiptStore {
	return &ReceiptStore{db: db}
}

func (s *ReceiptStore) Create(ctx context.Context, r domain.Receipt) (*domain.Receipt, error) {
	if r.SubmittedAt.IsZero() {
		return nil, fmt.Errorf("receipt submission time is required")
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO receipts (flow_id, room_id, pdf_url, variant, area_count, problem_count, file_count, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.FlowID, r.RoomID, r.PDFURL, r.Variant, r.AreaCount, r.ProblemCount, r.FileCount, r.SubmittedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create receipt: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

const receiptColumns = `id, flow_id, room_id, pdf_url, variant, area_count, problem_count, file_count, submitted_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row scanner) (*domain.Receipt, error) {
	r := &domain.Receipt{}
	err := row.Scan(&r.ID, &r.FlowID, &r.RoomID, &r.PDFURL, &r.Variant, &r.AreaCount, &r.ProblemCount, &r.FileCount, &r.SubmittedAt)
	return r, err
}

// GetByID returns nil without error when the receipt does not exist.
func (s *ReceiptStore) GetByID(ctx context.Context, id int64) (*domain.Receipt, error) {
	r, err := scanReceipt(s.db.QueryRowContext(ctx, `
		SELECT `+receiptColumns+` FROM receipts WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return r, nil
}

// List returns the most recent receipts first. A non-positive limit uses the
// default of 100.
func (s *ReceiptStore) List(ctx context.Context, limit int) ([]*domain.Receipt, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.query(ctx, `
		SELECT `+receiptColumns+` FROM receipts ORDER BY submitted_at DESC, id DESC LIMIT ?
	`, limit)
}

func (s *ReceiptStore) ListByFlow(ctx context.Context, flowID string) ([]*domain.Receipt, error) {
	return s.query(ctx, `
		SELECT `+receiptColumns+` FROM receipts WHERE flow_id = ? ORDER BY submitted_at DESC, id DESC
	`, flowID)
}

func (s *ReceiptStore) query(ctx context.Context, q string, args ...any) ([]*domain.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]*domain.Receipt, 0)
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating receipts: %w", err)
	}

	return receipts, nil
}
