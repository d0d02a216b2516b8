package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"edmanweb/internal/models"
)

const documentColumns = "collection, id, body, revision, created_at, updated_at"

// FindOne returns one document, or nil when it does not exist.
func (s *Store) FindOne(ctx context.Context, collection, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE collection = ? AND id = ?`, collection, id)
	return scanDocument(row)
}

// FindMany returns the documents addressed by refs that exist, keyed by ref.
func (s *Store) FindMany(ctx context.Context, refs []models.Ref) (map[models.Ref]*models.Document, error) {
	out := make(map[models.Ref]*models.Document, len(refs))
	byCollection := map[string][]any{}
	for _, ref := range refs {
		byCollection[ref.Collection] = append(byCollection[ref.Collection], ref.ID)
	}

	for collection, ids := range byCollection {
		args := append([]any{collection}, ids...)
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+documentColumns+` FROM documents WHERE collection = ? AND id IN (`+placeholders(len(ids))+`)`,
			args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			doc, err := scanDocument(rows)
			if err != nil {
				_ = rows.Close()
				return nil, err
			}
			if doc != nil {
				out[doc.Ref()] = doc
			}
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}
	return out, nil
}

// InsertDocument stores a new document. Missing ids are generated.
func (s *Store) InsertDocument(ctx context.Context, doc *models.Document) error {
	return s.InsertDocuments(ctx, []*models.Document{doc})
}

// InsertDocuments stores all docs in one transaction.
func (s *Store) InsertDocuments(ctx context.Context, docs []*models.Document) (err error) {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for _, doc := range docs {
		if doc == nil {
			return fmt.Errorf("document is required")
		}
		if strings.TrimSpace(doc.Collection) == "" {
			return fmt.Errorf("collection is required")
		}
		if strings.TrimSpace(doc.ID) == "" {
			doc.ID = models.NewID()
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		if doc.UpdatedAt.IsZero() {
			doc.UpdatedAt = doc.CreatedAt
		}
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode document %s: %w", doc.Ref(), err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, body, revision, created_at, updated_at)
			VALUES (?, ?, ?, 1, ?, ?)
		`, doc.Collection, doc.ID, string(body), formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt)); err != nil {
			return fmt.Errorf("insert document %s: %w", doc.Ref(), err)
		}
		doc.Revision = 1
	}

	return tx.Commit()
}

// ReplaceOne overwrites the body of doc when its revision still matches the
// stored one and reports how many documents were modified (0 or 1).
//
// A replacement with an identical body still counts as a modification.
func (s *Store) ReplaceOne(ctx context.Context, doc *models.Document) (int64, error) {
	if doc == nil {
		return 0, fmt.Errorf("document is required")
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("encode document %s: %w", doc.Ref(), err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET body = ?, revision = revision + 1, updated_at = ?
		WHERE collection = ? AND id = ? AND revision = ?
	`, string(body), formatTime(now), doc.Collection, doc.ID, doc.Revision)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 1 {
		doc.Revision++
		doc.UpdatedAt = now
	}
	return affected, nil
}

// DeleteDocument removes one document and reports how many rows went away.
func (s *Store) DeleteDocument(ctx context.Context, collection, id string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = ? AND id = ?", collection, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListCollections returns the distinct collection names, sorted.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT collection FROM documents ORDER BY collection ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func scanDocument(scanner interface {
	Scan(dest ...any) error
}) (*models.Document, error) {
	var collection, id, body, createdAt, updatedAt string
	var revision int64

	if err := scanner.Scan(&collection, &id, &body, &revision, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	doc := &models.Document{}
	if err := json.Unmarshal([]byte(body), doc); err != nil {
		return nil, fmt.Errorf("decode document %s/%s: %w", collection, id, err)
	}
	doc.Collection = collection
	doc.ID = id
	doc.Revision = revision

	parsedCreated, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	parsedUpdated, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	doc.CreatedAt = parsedCreated
	doc.UpdatedAt = parsedUpdated
	return doc, nil
}
