package device

import (
	"context"
	"fmt"
	"time"

	"github.com/lop69/BELL-SYSTEM-V2/core"
)

// Monitor periodically flags silent devices as disconnected.
type Monitor struct {
	svc      Service
	logger   core.Logger
	interval time.Duration
}

func NewMonitor(conf *core.Config, svc Service, logger core.Logger) *Monitor {
	return &Monitor{svc: svc, logger: logger, interval: conf.Bell.MonitorInterval}
}

// Run blocks until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.tick(ctx, now)
		}
	}
}

func (m *Monitor) tick(ctx context.Context, now time.Time) {
	devices, err := m.svc.MarkStale(ctx, now)
	if err != nil {
		m.logger.Error(fmt.Sprintf("device monitor: %v", err), err)
		return
	}
	for _, dev := range devices {
		m.logger.Info("device went offline", map[string]interface{}{"device_id": dev.ID, "device_name": dev.DeviceName})
	}
}
