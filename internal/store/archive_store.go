package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vbonduro/roomcheck/internal/domain"
)

// ArchiveStore indexes evidence files copied to the photo store.
type ArchiveStore struct {
	db *sql.DB
}

func NewArchiveStore(db *sql.DB) *ArchiveStore {
	return &ArchiveStore{db: db}
}

func (s *ArchiveStore) Create(ctx context.Context, receiptID int64, areaID, name, storageKey, mimeType string) (*domain.ArchivedFile, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO archived_files (receipt_id, area_id, name, storage_key, mime_type) VALUES (?, ?, ?, ?, ?)
	`, receiptID, areaID, name, storageKey, mimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to create archived file: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	f := &domain.ArchivedFile{}
	err = s.db.QueryRowContext(ctx, `
		SELECT id, receipt_id, area_id, name, storage_key, mime_type, archived_at FROM archived_files WHERE id = ?
	`, id).Scan(&f.ID, &f.ReceiptID, &f.AreaID, &f.Name, &f.StorageKey, &f.MimeType, &f.ArchivedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get archived file: %w", err)
	}
	return f, nil
}

func (s *ArchiveStore) ListByReceipt(ctx context.Context, receiptID int64) ([]*domain.ArchivedFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, receipt_id, area_id, name, storage_key, mime_type, archived_at FROM archived_files
		WHERE receipt_id = ? ORDER BY id ASC
	`, receiptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived files: %w", err)
	}
	defer rows.Close()

	files := make([]*domain.ArchivedFile, 0)
	for rows.Next() {
		f := &domain.ArchivedFile{}
		if err := rows.Scan(&f.ID, &f.ReceiptID, &f.AreaID, &f.Name, &f.StorageKey, &f.MimeType, &f.ArchivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archived file: %w", err)
		}
		files = append(files, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating archived files: %w", err)
	}

	return files, nil
}

// Get returns nil without error when the file does not exist.
func (s *ArchiveStore) Get(ctx context.Context, id int64) (*domain.ArchivedFile, error) {
	f := &domain.ArchivedFile{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, receipt_id, area_id, name, storage_key, mime_type, archived_at FROM archived_files WHERE id = ?
	`, id).Scan(&f.ID, &f.ReceiptID, &f.AreaID, &f.Name, &f.StorageKey, &f.MimeType, &f.ArchivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archived file: %w", err)
	}
	return f, nil
}
