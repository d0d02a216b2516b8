package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"edmanweb/internal/models"
)

const blobColumns = "id, sha256, size_bytes, storage_backend, blob_key, filename, compression, created_at"

// CreateBlob inserts one blob metadata row. Missing ids are generated.
func (s *Store) CreateBlob(ctx context.Context, blob *models.Blob) error {
	if blob == nil {
		return fmt.Errorf("blob is required")
	}
	blob.SHA256 = strings.ToLower(strings.TrimSpace(blob.SHA256))
	blob.BlobKey = strings.TrimSpace(blob.BlobKey)
	if blob.SHA256 == "" {
		return fmt.Errorf("sha256 is required")
	}
	if blob.BlobKey == "" {
		return fmt.Errorf("blob_key is required")
	}
	if blob.SizeBytes < 0 {
		return fmt.Errorf("size_bytes must be >= 0")
	}
	if strings.TrimSpace(blob.ID) == "" {
		blob.ID = models.NewID()
	}
	if strings.TrimSpace(blob.StorageBackend) == "" {
		blob.StorageBackend = "local_cas"
	}
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (id, sha256, size_bytes, storage_backend, blob_key, filename, compression, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		blob.ID,
		blob.SHA256,
		blob.SizeBytes,
		blob.StorageBackend,
		blob.BlobKey,
		blob.Filename,
		nullIfEmpty(blob.Compression.Algorithm()),
		formatTime(blob.CreatedAt),
	)
	return err
}

// GetBlob returns one blob by id, or nil when it does not exist.
func (s *Store) GetBlob(ctx context.Context, id string) (*models.Blob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = ?`, id)
	return scanBlob(row)
}

// DeleteBlob deletes one blob row by id.
func (s *Store) DeleteBlob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM blobs WHERE id = ?", id)
	return err
}

// CountBlobsByKey reports how many blob rows still point at a content key.
func (s *Store) CountBlobsByKey(ctx context.Context, key string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM blobs WHERE blob_key = ?", key).Scan(&count)
	return count, err
}

// ListUnreferencedBlobs returns blobs that no document lists under its
// attachment field, oldest first.
func (s *Store) ListUnreferencedBlobs(ctx context.Context, limit int) ([]models.Blob, error) {
	query := `
		SELECT b.id, b.sha256, b.size_bytes, b.storage_backend, b.blob_key, b.filename, b.compression, b.created_at
		FROM blobs b
		WHERE NOT EXISTS (
			SELECT 1
			FROM documents d, json_each(d.body, '$.` + models.FieldAttachment + `') j
			WHERE j.value = b.id
		)
		ORDER BY b.created_at ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := []models.Blob{}
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		if blob != nil {
			blobs = append(blobs, *blob)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return blobs, nil
}

func scanBlob(scanner interface {
	Scan(dest ...any) error
}) (*models.Blob, error) {
	blob := models.Blob{}
	var compression sql.NullString
	var createdAt string

	err := scanner.Scan(&blob.ID, &blob.SHA256, &blob.SizeBytes, &blob.StorageBackend, &blob.BlobKey, &blob.Filename, &compression, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if compression.Valid && compression.String != "" {
		blob.Compression = models.Compressed(compression.String)
	}
	parsedCreated, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	blob.CreatedAt = parsedCreated

	return &blob, nil
}
