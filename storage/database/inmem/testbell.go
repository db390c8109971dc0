package inmemdb

import (
	"context"

	"github.com/volatiletech/null/v8"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/testbell"
)

type testBellRepository struct {
	db *testBellTable
}

var _ testbell.Repository = (*testBellRepository)(nil) // interface compliance check

func NewTestBellRepository(db *DB) *testBellRepository {
	return &testBellRepository{db: db.testBell}
}

func (repo *testBellRepository) GetSignal(_ context.Context, _ ...core.DBExecutor) (testbell.Signal, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.db.signal, nil
}

func (repo *testBellRepository) SaveSignal(_ context.Context, sig testbell.Signal, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.signal = sig
	return nil
}

func (repo *testBellRepository) ResetSignal(_ context.Context, triggeredAt null.Time, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	cur := repo.db.signal.TriggeredAt
	if cur.Valid == triggeredAt.Valid && cur.Time.Equal(triggeredAt.Time) {
		repo.db.signal.IsActive = false
	}
	return nil
}
