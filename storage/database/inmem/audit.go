package inmemdb

import (
	"context"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/audit"
)

type auditRepository struct {
	db *auditTable
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *DB) *auditRepository {
	return &auditRepository{db: db.audit}
}

func (repo *auditRepository) CreateEntry(_ context.Context, entry audit.Entry, _ ...core.DBExecutor) (audit.Entry, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.lastID++
	entry.ID = repo.db.lastID
	repo.db.entries = append(repo.db.entries, entry)
	return entry, nil
}

// QueryEntries returns the latest entries first.
func (repo *auditRepository) QueryEntries(_ context.Context, limit int, _ ...core.DBExecutor) ([]audit.Entry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	n := len(repo.db.entries)
	if limit > n || limit <= 0 {
		limit = n
	}
	entries := make([]audit.Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		entries = append(entries, repo.db.entries[i])
	}
	return entries, nil
}
