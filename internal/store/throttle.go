package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"docfeedback/internal/throttle"
)

// SQLThrottle keeps throttle markers in the throttle_markers table. It is the
// fallback when no Redis is configured. Expired rows are ignored on read and
// removed by PurgeExpired.
type SQLThrottle struct {
	db     *sqlx.DB
	prefix string
	now    func() time.Time
}

func NewSQLThrottle(db *sqlx.DB, prefix string) *SQLThrottle {
	return &SQLThrottle{db: db, prefix: prefix, now: time.Now}
}

func (t *SQLThrottle) key(respondentID, documentID int64) string {
	return throttle.Key(t.prefix, respondentID, documentID)
}

func (t *SQLThrottle) IsThrottled(ctx context.Context, respondentID, documentID int64) (bool, error) {
	var count int
	err := t.db.GetContext(ctx, &count, t.db.Rebind(`
		SELECT COUNT(*) FROM throttle_markers WHERE marker_key=? AND expires_at > ?
	`), t.key(respondentID, documentID), t.now().Unix())
	if err != nil {
		return false, fmt.Errorf("check throttle marker: %w", err)
	}
	return count > 0, nil
}

func (t *SQLThrottle) SetThrottle(ctx context.Context, respondentID, documentID int64, ttl time.Duration) error {
	if ttl <= 0 {
		return throttle.ErrInvalidTTL
	}
	expiresAt := t.now().Add(ttl).Unix()
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO throttle_markers (marker_key, expires_at)
		VALUES (?, ?)
		ON CONFLICT (marker_key) DO UPDATE SET expires_at = excluded.expires_at
	`), t.key(respondentID, documentID), expiresAt)
	if err != nil {
		return fmt.Errorf("set throttle marker: %w", err)
	}
	return nil
}

// Remaining returns how long the marker stays alive, zero when there is none.
func (t *SQLThrottle) Remaining(ctx context.Context, respondentID, documentID int64) (time.Duration, error) {
	var expiresAt int64
	err := t.db.GetContext(ctx, &expiresAt, t.db.Rebind(`
		SELECT expires_at FROM throttle_markers WHERE marker_key=?
	`), t.key(respondentID, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read throttle marker: %w", err)
	}
	left := time.Unix(expiresAt, 0).Sub(t.now())
	if left < 0 {
		return 0, nil
	}
	return left, nil
}

// PurgeExpired deletes dead markers and returns how many were removed.
func (t *SQLThrottle) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := t.db.ExecContext(ctx, t.db.Rebind(`DELETE FROM throttle_markers WHERE expires_at <= ?`), t.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge throttle markers: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge throttle markers rows: %w", err)
	}
	return n, nil
}

func (t *SQLThrottle) Ping(ctx context.Context) error {
	return t.db.PingContext(ctx)
}
