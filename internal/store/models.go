package store

import (
	"database/sql"
	"time"

	"docfeedback/internal/feedback"
)

type respondentRow struct {
	ID          int64     `db:"id"`
	DisplayName string    `db:"display_name"`
	Email       string    `db:"email"`
	URL         string    `db:"url"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r respondentRow) toDomain() feedback.Respondent {
	return feedback.Respondent{
		ID:          r.ID,
		DisplayName: r.DisplayName,
		Email:       r.Email,
		URL:         r.URL,
	}
}

type documentRow struct {
	ID        int64         `db:"id"`
	Kind      string        `db:"kind"`
	Title     string        `db:"title"`
	AuthorID  sql.NullInt64 `db:"author_id"`
	CreatedAt time.Time     `db:"created_at"`
}

func (r documentRow) toDomain() feedback.Document {
	return feedback.Document{
		ID:       r.ID,
		Kind:     r.Kind,
		Title:    r.Title,
		AuthorID: r.AuthorID.Int64,
	}
}

type recordRow struct {
	ID           int64        `db:"id"`
	DocumentID   int64        `db:"document_id"`
	RespondentID int64        `db:"respondent_id"`
	Phase        string       `db:"phase"`
	Content      string       `db:"content"`
	CreatedAt    time.Time    `db:"created_at"`
	RespondedAt  sql.NullTime `db:"responded_at"`
}

func (r recordRow) toDomain() feedback.Record {
	rec := feedback.Record{
		ID:           r.ID,
		DocumentID:   r.DocumentID,
		RespondentID: r.RespondentID,
		Phase:        feedback.RecordPhase(r.Phase),
		Content:      r.Content,
		CreatedAt:    r.CreatedAt.UTC(),
	}
	if r.RespondedAt.Valid {
		t := r.RespondedAt.Time.UTC()
		rec.RespondedAt = &t
	}
	return rec
}
