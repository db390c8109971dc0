package device

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/lop69/BELL-SYSTEM-V2/core"
)

const (
	NoScheduleName      = "No Schedule Assigned"
	MissingScheduleName = "Assigned schedule not found"
)

// GroupSchedule is the summary of a schedule shown next to a device.
type GroupSchedule struct {
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

type DeviceGroup struct {
	Name      string          `json:"name"`
	Schedules []GroupSchedule `json:"schedules"`
}

type Device struct {
	ID              string       `json:"id"`
	DeviceName      string       `json:"device_name"`
	ScheduleGroupID null.String  `json:"schedule_group_id"`
	ScheduleID      null.String  `json:"schedule_id"`
	IsConnected     bool         `json:"is_connected"`
	LastSeen        null.Time    `json:"last_seen"`
	CreatedAt       time.Time    `json:"created_at"`
	ScheduleGroups  *DeviceGroup `json:"schedule_groups"`
}

// SyncBell is the compact bell representation polled by devices.
type SyncBell struct {
	Time       string `json:"time"`
	Label      string `json:"label"`
	DaysOfWeek []int  `json:"days_of_week"`
}

// SyncResponse is what a device receives on bell-sync.
type SyncResponse struct {
	ScheduleName string     `json:"schedule_name"`
	Bells        []SyncBell `json:"bells"`
}

// NewDevice registers a device. An empty ID lets the server generate one.
type NewDevice struct {
	ID              string `json:"id" validate:"omitempty,max=64"`
	DeviceName      string `json:"device_name" validate:"required,notblank,min=2,max=50"`
	ScheduleGroupID string `json:"schedule_group_id"`
}

func (nd *NewDevice) Validate(validate *validator.Validate) error {
	nd.ID = core.CleanString(nd.ID)
	nd.DeviceName = core.CleanString(nd.DeviceName)
	nd.ScheduleGroupID = core.CleanString(nd.ScheduleGroupID)
	return validate.Struct(nd)
}

// Assignment points a device at a group and optionally pins one of its schedules.
// Empty values clear the assignment.
type Assignment struct {
	DeviceName      *string `json:"device_name" validate:"omitempty,min=2,max=50"`
	ScheduleGroupID *string `json:"schedule_group_id"`
	ScheduleID      *string `json:"schedule_id"`
}

func (a *Assignment) Validate(validate *validator.Validate) error {
	for _, s := range []*string{a.DeviceName, a.ScheduleGroupID, a.ScheduleID} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	return validate.Struct(a)
}
