package device

import (
	"context"
	"time"
)

func (m *Monitor) Tick(ctx context.Context, now time.Time) { m.tick(ctx, now) }
