package testbell

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/lop69/BELL-SYSTEM-V2/core"
)

// ErrUnauthenticated is returned when nobody is behind a trigger request.
var ErrUnauthenticated = errors.New("Unauthorized")

// Signal is the single, global test-bell flag.
type Signal struct {
	IsActive    bool      `json:"is_active"`
	TriggeredAt null.Time `json:"triggered_at"`
}

type Status struct {
	TestBellActive bool `json:"test_bell_active"`
}

type (
	Repository interface {
		GetSignal(ctx context.Context, exec ...core.DBExecutor) (Signal, error)
		SaveSignal(ctx context.Context, sig Signal, exec ...core.DBExecutor) error
		// ResetSignal lowers the signal only if it still carries triggeredAt,
		// so a trigger landing after the read is kept.
		ResetSignal(ctx context.Context, triggeredAt null.Time, exec ...core.DBExecutor) error
	}

	// Notifier pushes the test signal to devices as soon as it is raised.
	Notifier interface {
		NotifyTestBell(ctx context.Context, sig Signal) error
	}

	Service interface {
		Trigger(ctx context.Context, userID string) error
		Status(ctx context.Context) (Status, error)
	}

	service struct {
		repo     Repository
		notifier Notifier
		logger   core.Logger
		duration time.Duration
	}
)

var _ Service = (*service)(nil)

var nowFunc = time.Now // mockable

func NewService(conf *core.Config, repo Repository, notifier Notifier, logger core.Logger) Service {
	return &service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		duration: conf.Bell.TestSignalDuration,
	}
}

// Trigger raises the signal for every device.
func (svc *service) Trigger(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	sig := Signal{IsActive: true, TriggeredAt: null.TimeFrom(nowFunc().UTC())}
	if err := svc.repo.SaveSignal(ctx, sig); err != nil {
		return errors.Wrap(err, "saving test signal")
	}
	if err := svc.notifier.NotifyTestBell(ctx, sig); err != nil {
		svc.logger.Warn("notifying test bell", err)
	}
	return nil
}

// Status reports whether the signal is still within its window, lowering it once expired.
func (svc *service) Status(ctx context.Context) (Status, error) {
	sig, err := svc.repo.GetSignal(ctx)
	if err != nil {
		return Status{}, errors.Wrap(err, "reading test signal")
	}
	if !sig.IsActive {
		return Status{TestBellActive: false}, nil
	}

	if sig.TriggeredAt.Valid && nowFunc().Sub(sig.TriggeredAt.Time) < svc.duration {
		return Status{TestBellActive: true}, nil
	}

	if err = svc.repo.ResetSignal(ctx, sig.TriggeredAt); err != nil {
		return Status{}, errors.Wrap(err, "resetting test signal")
	}
	return Status{TestBellActive: false}, nil
}
