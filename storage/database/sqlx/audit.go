package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/audit"
)

type auditRow struct {
	ID        int64     `db:"id"`
	UserID    string    `db:"user_id"`
	Action    string    `db:"action"`
	Details   []byte    `db:"details"`
	CreatedAt time.Time `db:"created_at"`
}

type auditRepository struct {
	repository
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(exec core.DBExecutor) *auditRepository {
	return &auditRepository{repository{exec: exec}}
}

func (repo auditRepository) CreateEntry(ctx context.Context, entry audit.Entry, exec ...core.DBExecutor) (audit.Entry, error) {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return audit.Entry{}, errors.Wrap(err, "encoding audit details")
	}
	q := `INSERT INTO audit_log (user_id, action, details, created_at) VALUES ($1, $2, $3, $4) RETURNING id`
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &entry.ID, q, entry.UserID, entry.Action, details, entry.CreatedAt.UTC()); err != nil {
		return audit.Entry{}, errors.Wrap(err, "inserting audit entry")
	}
	return entry, nil
}

func (repo auditRepository) QueryEntries(ctx context.Context, limit int, exec ...core.DBExecutor) ([]audit.Entry, error) {
	var rows []auditRow
	q := `SELECT id, user_id, action, details, created_at FROM audit_log ORDER BY created_at DESC, id DESC LIMIT $1`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, limit); err != nil {
		return nil, errors.Wrap(err, "querying audit log")
	}
	entries := make([]audit.Entry, 0, len(rows))
	for _, r := range rows {
		entry := audit.Entry{ID: r.ID, UserID: r.UserID, Action: r.Action, CreatedAt: r.CreatedAt}
		if err := json.Unmarshal(r.Details, &entry.Details); err != nil {
			return nil, errors.Wrapf(err, "decoding details of audit entry %d", r.ID)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
