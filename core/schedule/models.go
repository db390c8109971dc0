package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lop69/BELL-SYSTEM-V2/core"
)

// Weekdays holds day indexes, 0 being Sunday (time.Weekday order).
type Weekdays []int

func (w Weekdays) Contains(day int) bool {
	for _, d := range w {
		if d == day {
			return true
		}
	}
	return false
}

// Normalize returns the sorted set of days.
func (w Weekdays) Normalize() Weekdays {
	seen := make(map[int]bool, len(w))
	days := make(Weekdays, 0, len(w))
	for _, d := range w {
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Ints(days)
	return days
}

type Group struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	Schedules []Schedule `json:"schedules"`
}

type Schedule struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	ScheduleGroupID string    `json:"schedule_group_id"`
	UserID          string    `json:"user_id"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

type Bell struct {
	ID         string    `json:"id"`
	ScheduleID string    `json:"schedule_id"`
	UserID     string    `json:"user_id"`
	Time       string    `json:"time"` // HH:MM:SS
	Label      string    `json:"label"`
	DaysOfWeek Weekdays  `json:"days_of_week"`
	CreatedAt  time.Time `json:"created_at"`
}

// DashboardBell is a bell of an active schedule, flattened with its schedule's name.
type DashboardBell struct {
	ScheduleName   string   `json:"schedule_name"`
	BellID         string   `json:"bell_id"`
	BellTime       string   `json:"bell_time"`
	BellLabel      string   `json:"bell_label"`
	BellDaysOfWeek Weekdays `json:"bell_days_of_week"`
}

// NormalizeTime turns H:MM, HH:MM or HH:MM:SS into zero padded HH:MM:SS.
func NormalizeTime(s string) (string, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return "", fmt.Errorf("invalid time %q", s)
	}
	limits := []int{23, 59, 59}
	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > limits[i] {
			return "", fmt.Errorf("invalid time %q", s)
		}
		vals[i] = v
	}
	return fmt.Sprintf("%02d:%02d:%02d", vals[0], vals[1], vals[2]), nil
}

type NewGroup struct {
	Name string `json:"name" validate:"required,notblank,min=2,max=50"`
}

func (ng *NewGroup) Validate(validate *validator.Validate) error {
	ng.Name = core.CleanString(ng.Name)
	return validate.Struct(ng)
}

type NewSchedule struct {
	Name string `json:"name" validate:"required,notblank,min=2,max=50"`
}

func (ns *NewSchedule) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	return validate.Struct(ns)
}

// BellForm is used both to create and to edit a bell.
type BellForm struct {
	ScheduleID string `json:"schedule_id" validate:"required,notblank"`
	Time       string `json:"time" validate:"required,hhmm"`
	Label      string `json:"label" validate:"required,min=2,max=50"`
	DaysOfWeek []int  `json:"days_of_week" validate:"required,min=1,dive,weekday"`
}

func (bf *BellForm) Validate(validate *validator.Validate) error {
	bf.ScheduleID = core.CleanString(bf.ScheduleID)
	bf.Time = core.CleanString(bf.Time)
	bf.Label = core.CleanString(bf.Label)
	return validate.Struct(bf)
}
