package testbell

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	logsvc "github.com/lop69/BELL-SYSTEM-V2/services/logger"
)

type repoMock struct {
	mu     sync.Mutex
	sig    Signal
	saves  int
	resets int
	// beforeReset runs between the status read and the reset.
	beforeReset func()
}

func (r *repoMock) GetSignal(context.Context, ...core.DBExecutor) (Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sig, nil
}

func (r *repoMock) SaveSignal(_ context.Context, sig Signal, _ ...core.DBExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sig = sig
	r.saves++
	return nil
}

func (r *repoMock) ResetSignal(_ context.Context, triggeredAt null.Time, _ ...core.DBExecutor) error {
	if r.beforeReset != nil {
		r.beforeReset()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	if r.sig.TriggeredAt.Valid == triggeredAt.Valid && r.sig.TriggeredAt.Time.Equal(triggeredAt.Time) {
		r.sig.IsActive = false
	}
	return nil
}

type notifierMock struct {
	signals []Signal
}

func (n *notifierMock) NotifyTestBell(_ context.Context, sig Signal) error {
	n.signals = append(n.signals, sig)
	return nil
}

func TestService(t *testing.T) {
	conf := core.NewTestConfig()
	repo := new(repoMock)
	notifier := new(notifierMock)
	svc := NewService(conf, repo, notifier, logsvc.NewNopLogger())
	ctx := context.Background()

	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	clock := start
	nowFunc = func() time.Time { return clock }
	defer func() { nowFunc = time.Now }()

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.TestBellActive, "idle by default")

	assert.Equal(t, ErrUnauthenticated, svc.Trigger(ctx, ""))
	assert.Empty(t, notifier.signals)

	require.NoError(t, svc.Trigger(ctx, "u1"))
	require.Len(t, notifier.signals, 1)
	assert.True(t, notifier.signals[0].IsActive)
	assert.Equal(t, start, repo.sig.TriggeredAt.Time)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{name: "just raised", want: true},
		{name: "within the window", elapsed: conf.Bell.TestSignalDuration - time.Second, want: true},
		{name: "expired", elapsed: conf.Bell.TestSignalDuration},
		{name: "stays lowered", elapsed: 2 * conf.Bell.TestSignalDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock = start.Add(tt.elapsed)
			status, err := svc.Status(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, status.TestBellActive)
		})
	}
	assert.False(t, repo.sig.IsActive, "expired signal is lowered")
	assert.Equal(t, 1, repo.saves)
	assert.Equal(t, 1, repo.resets, "a lowered signal is not reset again")
}

func TestService_Status_triggerDuringReset(t *testing.T) {
	conf := core.NewTestConfig()
	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	repo := &repoMock{sig: Signal{IsActive: true, TriggeredAt: null.TimeFrom(start)}}
	svc := NewService(conf, repo, new(notifierMock), logsvc.NewNopLogger())
	ctx := context.Background()

	clock := start.Add(conf.Bell.TestSignalDuration)
	nowFunc = func() time.Time { return clock }
	defer func() { nowFunc = time.Now }()

	repo.beforeReset = func() {
		repo.beforeReset = nil
		require.NoError(t, svc.Trigger(ctx, "u2"))
	}
	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.TestBellActive, "the expired signal read by this call")

	assert.True(t, repo.sig.IsActive, "the newer trigger survives the reset")
	assert.Equal(t, clock, repo.sig.TriggeredAt.Time)

	status, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.TestBellActive)
}
