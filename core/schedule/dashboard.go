package schedule

import (
	"fmt"
	"sort"
	"time"
)

// UpcomingBell is a bell placed on a concrete instant.
type UpcomingBell struct {
	DashboardBell
	At time.Time `json:"at"`
}

type Dashboard struct {
	Now       time.Time       `json:"now"`
	Day       int             `json:"day_of_week"`
	Bells     []DashboardBell `json:"bells"`
	NextBell  *UpcomingBell   `json:"next_bell"`
	Countdown string          `json:"countdown"`
}

// BellAt places a HH:MM[:SS] bell time on the date of ref, in ref's location.
func BellAt(bellTime string, ref time.Time) (time.Time, error) {
	norm, err := NormalizeTime(bellTime)
	if err != nil {
		return time.Time{}, err
	}
	clock, err := time.Parse("15:04:05", norm)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := ref.Date()
	return time.Date(y, mo, d, clock.Hour(), clock.Minute(), clock.Second(), 0, ref.Location()), nil
}

// NextBell returns the first of today's bells ringing strictly after now, or nil.
// Bells with an unparsable time are skipped.
func NextBell(bells []DashboardBell, now time.Time) *UpcomingBell {
	upcoming := make([]UpcomingBell, 0, len(bells))
	for _, b := range bells {
		at, err := BellAt(b.BellTime, now)
		if err != nil {
			continue
		}
		upcoming = append(upcoming, UpcomingBell{DashboardBell: b, At: at})
	}
	sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].At.Before(upcoming[j].At) })
	for i := range upcoming {
		if upcoming[i].At.After(now) {
			return &upcoming[i]
		}
	}
	return nil
}

// FormatCountdown renders the time left until next as HH:MM:SS; 00:00:00 when nothing is left.
func FormatCountdown(next *UpcomingBell, now time.Time) string {
	if next == nil {
		return "00:00:00"
	}
	diff := next.At.Sub(now)
	if diff <= 0 {
		return "00:00:00"
	}
	secs := int64(diff / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// BuildDashboard assembles the dashboard view of bells at now.
func BuildDashboard(bells []DashboardBell, now time.Time) Dashboard {
	if bells == nil {
		bells = []DashboardBell{}
	}
	next := NextBell(bells, now)
	return Dashboard{
		Now:       now,
		Day:       int(now.Weekday()),
		Bells:     bells,
		NextBell:  next,
		Countdown: FormatCountdown(next, now),
	}
}
