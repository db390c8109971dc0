package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTime(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "8:05", want: "08:05:00"},
		{in: "08:05", want: "08:05:00"},
		{in: " 23:59:59 ", want: "23:59:59"},
		{in: "0:0", want: "00:00:00"},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12:00:60", wantErr: true},
		{in: "12", wantErr: true},
		{in: "1:2:3:4", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeTime(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWeekdays(t *testing.T) {
	days := Weekdays{5, 1, 3, 1, 5}
	assert.Equal(t, Weekdays{1, 3, 5}, days.Normalize())
	assert.True(t, days.Contains(3))
	assert.False(t, days.Contains(0))
	assert.Equal(t, Weekdays{}, Weekdays(nil).Normalize())
}

func TestNextBell(t *testing.T) {
	now := time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)
	bells := []DashboardBell{
		{BellID: "late", BellTime: "15:00:00"},
		{BellID: "broken", BellTime: "lol"},
		{BellID: "early", BellTime: "08:00:00"},
		{BellID: "now", BellTime: "09:30:00"},
		{BellID: "soon", BellTime: "10:15:00"},
	}

	tests := []struct {
		name   string
		bells  []DashboardBell
		now    time.Time
		wantID string
		wantAt time.Time
	}{
		{name: "no bells", now: now},
		{name: "next is strictly after now", bells: bells, now: now, wantID: "soon", wantAt: time.Date(2026, time.March, 2, 10, 15, 0, 0, time.UTC)},
		{name: "first of the day", bells: bells, now: now.Add(-9 * time.Hour), wantID: "early", wantAt: time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)},
		{name: "all rung", bells: bells, now: now.Add(6 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextBell(tt.bells, tt.now)
			if tt.wantID == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.BellID)
			assert.True(t, tt.wantAt.Equal(got.At), "At = %v, want %v", got.At, tt.wantAt)
		})
	}
}

func TestNextBell_keepsLocation(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2026, time.March, 2, 7, 0, 0, 0, loc)

	got := NextBell([]DashboardBell{{BellID: "first", BellTime: "08:00:00"}}, now)
	require.NotNil(t, got)
	assert.Equal(t, loc, got.At.Location())
	assert.Equal(t, time.Hour, got.At.Sub(now))
}

func TestFormatCountdown(t *testing.T) {
	now := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *UpcomingBell { return &UpcomingBell{At: now.Add(d)} }

	tests := []struct {
		name string
		next *UpcomingBell
		want string
	}{
		{name: "no bell", want: "00:00:00"},
		{name: "past", next: at(-time.Minute), want: "00:00:00"},
		{name: "seconds", next: at(42 * time.Second), want: "00:00:42"},
		{name: "hours", next: at(2*time.Hour + 3*time.Minute + 4*time.Second), want: "02:03:04"},
		{name: "sub second is truncated", next: at(1500 * time.Millisecond), want: "00:00:01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCountdown(tt.next, now))
		})
	}
}

func TestBuildDashboard(t *testing.T) {
	now := time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC) // Wednesday

	dash := BuildDashboard(nil, now)
	assert.Equal(t, []DashboardBell{}, dash.Bells)
	assert.Nil(t, dash.NextBell)
	assert.Equal(t, "00:00:00", dash.Countdown)
	assert.Equal(t, 3, dash.Day)

	dash = BuildDashboard([]DashboardBell{{BellID: "b", BellTime: "09:10:00"}}, now)
	require.NotNil(t, dash.NextBell)
	assert.Equal(t, "b", dash.NextBell.BellID)
	assert.Equal(t, "00:10:00", dash.Countdown)
}
