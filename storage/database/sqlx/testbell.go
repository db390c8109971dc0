package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/testbell"
)

type signalRow struct {
	IsActive    bool      `db:"is_active"`
	TriggeredAt null.Time `db:"triggered_at"`
}

type testBellRepository struct {
	repository
}

var _ testbell.Repository = (*testBellRepository)(nil) // interface compliance check

func NewTestBellRepository(exec core.DBExecutor) *testBellRepository {
	return &testBellRepository{repository{exec: exec}}
}

func (repo testBellRepository) GetSignal(ctx context.Context, exec ...core.DBExecutor) (testbell.Signal, error) {
	var row signalRow
	err := sqlx.GetContext(ctx, repo.getExec(exec), &row, `SELECT is_active, triggered_at FROM global_test_signal WHERE id = 1`)
	if err != nil {
		// a missing row reads as an idle signal
		return testbell.Signal{}, trapNoRowsErr(err, nil, "reading test signal")
	}
	return testbell.Signal{IsActive: row.IsActive, TriggeredAt: row.TriggeredAt}, nil
}

func (repo testBellRepository) SaveSignal(ctx context.Context, sig testbell.Signal, exec ...core.DBExecutor) error {
	q := `INSERT INTO global_test_signal (id, is_active, triggered_at) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET is_active = EXCLUDED.is_active, triggered_at = EXCLUDED.triggered_at`
	_, err := repo.getExec(exec).ExecContext(ctx, q, sig.IsActive, sig.TriggeredAt)
	return errors.Wrap(err, "saving test signal")
}

func (repo testBellRepository) ResetSignal(ctx context.Context, triggeredAt null.Time, exec ...core.DBExecutor) error {
	q := `UPDATE global_test_signal SET is_active = FALSE WHERE id = 1 AND triggered_at IS NOT DISTINCT FROM $1`
	_, err := repo.getExec(exec).ExecContext(ctx, q, triggeredAt)
	return errors.Wrap(err, "resetting test signal")
}
