// Package supabase archives evidence in a Supabase Storage bucket.
package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	storage "github.com/supabase-community/storage-go"

	"github.com/vbonduro/roomcheck/internal/photostore"
)

// objectClient is the subset of *storage.Client the store uses.
type objectClient interface {
	UploadFile(bucketID, relativePath string, data io.Reader, opts ...storage.FileOptions) (storage.FileUploadResponse, error)
	DownloadFile(bucketID, filePath string, urlOptions ...storage.UrlOptions) ([]byte, error)
	RemoveFile(bucketID string, paths []string) ([]storage.FileUploadResponse, error)
}

type Store struct {
	bucket  string
	baseURL string
	now     func() time.Time

	// The client keeps upload headers on a shared transport, so uploads
	// are serialized.
	mu     sync.Mutex
	client objectClient
}

var (
	_ photostore.PhotoStore = (*Store)(nil)
	_ photostore.Linker     = (*Store)(nil)
)

func New(supabaseURL, serviceKey, bucket string) (*Store, error) {
	if supabaseURL == "" || serviceKey == "" || bucket == "" {
		return nil, errors.New("supabase url, key and bucket are required")
	}
	baseURL := strings.TrimRight(supabaseURL, "/")
	return newStore(storage.NewClient(baseURL+"/storage/v1", serviceKey, nil), baseURL, bucket), nil
}

func newStore(client objectClient, baseURL, bucket string) *Store {
	return &Store{client: client, baseURL: baseURL, bucket: bucket, now: time.Now}
}

func (s *Store) Save(ctx context.Context, prefix, mimeType string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read photo: %w", err)
	}

	key := fmt.Sprintf("%s_%d%s", photostore.CleanPrefix(prefix), s.now().UnixNano(), photostore.MimeTypeToExt(mimeType))
	upsert := false

	s.mu.Lock()
	_, err = s.client.UploadFile(s.bucket, key, bytes.NewReader(data), storage.FileOptions{
		ContentType: &mimeType,
		Upsert:      &upsert,
	})
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return key, nil
}

func (s *Store) Get(ctx context.Context, storageKey string) (io.ReadCloser, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	data, err := s.client.DownloadFile(s.bucket, storageKey)
	if err != nil {
		if isNotFound(err) {
			return nil, "", photostore.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to download file: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), photostore.ExtToMimeType(storageKey), nil
}

func (s *Store) Delete(ctx context.Context, storageKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.client.RemoveFile(s.bucket, []string{storageKey}); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// PublicURL is where the object is served from when the bucket is public.
func (s *Store) PublicURL(storageKey string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, storageKey)
}

func isNotFound(err error) bool {
	var se *storage.StorageError
	if errors.As(err, &se) {
		return strings.Contains(strings.ToLower(se.Message), "not found")
	}
	return false
}
