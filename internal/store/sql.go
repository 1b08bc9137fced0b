package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"docfeedback/internal/feedback"
)

// SQLStore serves respondents, documents and feedback records.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) GetRespondent(ctx context.Context, id int64) (feedback.Respondent, error) {
	var row respondentRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT id, display_name, email, url, created_at FROM respondents WHERE id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return feedback.Respondent{}, ErrNotFound
	}
	if err != nil {
		return feedback.Respondent{}, fmt.Errorf("get respondent: %w", err)
	}
	return row.toDomain(), nil
}

// CreateRespondent registers a respondent mirrored from the identity service.
func (s *SQLStore) CreateRespondent(ctx context.Context, r feedback.Respondent) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, s.db.Rebind(`
		INSERT INTO respondents (display_name, email, url, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`), r.DisplayName, r.Email, r.URL, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert respondent: %w", err)
	}
	return id, nil
}

func (s *SQLStore) GetDocument(ctx context.Context, id int64) (feedback.Document, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT id, kind, title, author_id, created_at FROM documents WHERE id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return feedback.Document{}, ErrNotFound
	}
	if err != nil {
		return feedback.Document{}, fmt.Errorf("get document: %w", err)
	}
	return row.toDomain(), nil
}

// CreateDocument registers a document mirrored from the content system.
// A zero AuthorID stores no author.
func (s *SQLStore) CreateDocument(ctx context.Context, doc feedback.Document) (int64, error) {
	author := sql.NullInt64{Int64: doc.AuthorID, Valid: doc.AuthorID != 0}
	var id int64
	err := s.db.GetContext(ctx, &id, s.db.Rebind(`
		INSERT INTO documents (kind, title, author_id, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`), doc.Kind, doc.Title, author, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

func (s *SQLStore) CreateRecord(ctx context.Context, rec feedback.Record) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, s.db.Rebind(`
		INSERT INTO feedback_records (document_id, respondent_id, phase, content, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`), rec.DocumentID, rec.RespondentID, string(rec.Phase), rec.Content, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert feedback record: %w", err)
	}
	return id, nil
}

func (s *SQLStore) GetRecord(ctx context.Context, id int64) (feedback.Record, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT id, document_id, respondent_id, phase, content, created_at, responded_at
		FROM feedback_records
		WHERE id=?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return feedback.Record{}, ErrNotFound
	}
	if err != nil {
		return feedback.Record{}, fmt.Errorf("get feedback record: %w", err)
	}
	return row.toDomain(), nil
}

// UpdateRecord stores the elaboration. It only applies to a record of the same
// respondent that has not been answered yet, and reports false otherwise.
func (s *SQLStore) UpdateRecord(ctx context.Context, rec feedback.Record) (bool, error) {
	respondedAt := s.now().UTC()
	if rec.RespondedAt != nil {
		respondedAt = rec.RespondedAt.UTC()
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE feedback_records
		SET content=?, responded_at=?
		WHERE id=? AND respondent_id=? AND responded_at IS NULL
	`), rec.Content, respondedAt, rec.ID, rec.RespondentID)
	if err != nil {
		return false, fmt.Errorf("update feedback record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update feedback record rows: %w", err)
	}
	return n == 1, nil
}

// ListRecords returns the records of a document, oldest first.
func (s *SQLStore) ListRecords(ctx context.Context, documentID int64) ([]feedback.Record, error) {
	var rows []recordRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, document_id, respondent_id, phase, content, created_at, responded_at
		FROM feedback_records
		WHERE document_id=?
		ORDER BY created_at, id
	`), documentID)
	if err != nil {
		return nil, fmt.Errorf("list feedback records: %w", err)
	}
	records := make([]feedback.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toDomain())
	}
	return records, nil
}
