package store

import (
	"context"
)

// StoreInfo summarizes what the database currently holds.
type StoreInfo struct {
	SchemaVersion   int            `json:"schema_version"`
	DocumentCounts  map[string]int `json:"document_counts"`
	TotalDocuments  int            `json:"total_documents"`
	TotalBlobs      int            `json:"total_blobs"`
	TotalBlobBytes  int64          `json:"total_blob_bytes"`
	CompressedBlobs int            `json:"compressed_blobs"`
}

// StoreInfo returns the schema version plus document and blob totals.
func (s *Store) StoreInfo(ctx context.Context) (*StoreInfo, error) {
	version, err := currentVersion(s.db)
	if err != nil {
		return nil, err
	}

	info := &StoreInfo{
		SchemaVersion:  version,
		DocumentCounts: map[string]int{},
	}

	rows, err := s.db.QueryContext(ctx, "SELECT collection, COUNT(*) FROM documents GROUP BY collection")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var collection string
		var count int
		if err := rows.Scan(&collection, &count); err != nil {
			return nil, err
		}
		info.DocumentCounts[collection] = count
		info.TotalDocuments += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(size_bytes), 0), COUNT(compression)
		FROM blobs
	`).Scan(&info.TotalBlobs, &info.TotalBlobBytes, &info.CompressedBlobs)
	if err != nil {
		return nil, err
	}

	return info, nil
}
