package sqlxrepos

import (
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/lop69/BELL-SYSTEM-V2/core"
)

// pq error codes
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type repository struct {
	exec core.DBExecutor
}

// getExec returns the executor handed down by a service (a transaction) or the repository's default one.
func (repo repository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps "no rows" to notFound and wraps anything else with msg.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func isPQError(err error, code string) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && string(pqErr.Code) == code
}
