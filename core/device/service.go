package device

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/schedule"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("device")
	ErrDeviceExists    = errors.New("a device with this ID already exists")
	ErrInvalidDeviceID = errors.New("A valid 'device_id' is required in the request body.")
)

type (
	Repository interface {
		QueryDevices(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Device, error)
		GetDevice(ctx context.Context, id string, exec ...core.DBExecutor) (Device, error)
		CreateDevice(ctx context.Context, dev Device, exec ...core.DBExecutor) (Device, error)
		UpdateDevice(ctx context.Context, dev Device, exec ...core.DBExecutor) (Device, error)
		DeleteDevice(ctx context.Context, id string, exec ...core.DBExecutor) error
		// MarkSeen flags the device connected and stamps last_seen.
		MarkSeen(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) (Device, error)
		// MarkStale disconnects connected devices not seen since before and returns them.
		MarkStale(ctx context.Context, before time.Time, exec ...core.DBExecutor) ([]Device, error)
	}

	// ScheduleFinder is the part of the schedule service devices depend on.
	ScheduleFinder interface {
		GetGroup(ctx context.Context, id string) (schedule.Group, error)
		GetSchedule(ctx context.Context, id string) (schedule.Schedule, error)
		GetActiveSchedule(ctx context.Context, groupID string) (schedule.Schedule, error)
		ListBells(ctx context.Context, scheduleID string) ([]schedule.Bell, error)
	}

	// Notifier pushes assignment changes to the hardware.
	Notifier interface {
		NotifyAssignment(ctx context.Context, dev Device) error
	}

	Service interface {
		List(ctx context.Context, ordering []core.DBOrdering) ([]Device, error)
		Get(ctx context.Context, id string) (Device, error)
		Register(ctx context.Context, nd NewDevice) (Device, error)
		Assign(ctx context.Context, id string, a Assignment) (Device, error)
		Delete(ctx context.Context, id string) error
		Sync(ctx context.Context, deviceID string) (SyncResponse, error)
		MarkStale(ctx context.Context, now time.Time) ([]Device, error)
	}

	service struct {
		repo         Repository
		schedules    ScheduleFinder
		events       core.EventPublisher
		notifier     Notifier
		logger       core.Logger
		offlineAfter time.Duration
	}
)

var _ Service = (*service)(nil)

var nowFunc = time.Now // mockable

func NewService(
	conf *core.Config,
	repo Repository,
	schedules ScheduleFinder,
	events core.EventPublisher,
	notifier Notifier,
	logger core.Logger,
) Service {
	return &service{
		repo:         repo,
		schedules:    schedules,
		events:       events,
		notifier:     notifier,
		logger:       logger,
		offlineAfter: conf.Bell.DeviceOfflineAfter,
	}
}

func (svc *service) List(ctx context.Context, ordering []core.DBOrdering) ([]Device, error) {
	devices, err := svc.repo.QueryDevices(ctx, core.FilterOrderings(ordering, "device_name", "created_at", "last_seen", "is_connected"))
	return devices, errors.Wrap(err, "querying devices")
}

func (svc *service) Get(ctx context.Context, id string) (Device, error) {
	return svc.repo.GetDevice(ctx, id)
}

func (svc *service) checkGroup(ctx context.Context, groupID string) error {
	if groupID == "" {
		return nil
	}
	if _, err := svc.schedules.GetGroup(ctx, groupID); err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(err, core.FieldError{Field: "schedule_group_id", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) Register(ctx context.Context, nd NewDevice) (Device, error) {
	if err := svc.checkGroup(ctx, nd.ScheduleGroupID); err != nil {
		return Device{}, err
	}
	if nd.ID == "" {
		nd.ID = uuid.New().String()
	} else if _, err := svc.repo.GetDevice(ctx, nd.ID); err == nil {
		return Device{}, core.NewValidationError(ErrDeviceExists, core.FieldError{Field: "id", Error: ErrDeviceExists.Error()})
	} else if !core.IsNotFound(err) {
		return Device{}, errors.Wrap(err, "checking device uniqueness")
	}

	dev, err := svc.repo.CreateDevice(ctx, Device{
		ID:              nd.ID,
		DeviceName:      nd.DeviceName,
		ScheduleGroupID: null.NewString(nd.ScheduleGroupID, nd.ScheduleGroupID != ""),
		CreatedAt:       nowFunc().UTC(),
	})
	if err != nil {
		return Device{}, errors.Wrap(err, "creating device")
	}
	svc.events.Publish(ctx, core.NewChangeEvent(core.TableDevices, core.ChangeInsert, dev.ID, dev))
	return dev, nil
}

// Assign updates the name, group and pinned schedule of a device.
// A pinned schedule must belong to the device's group.
func (svc *service) Assign(ctx context.Context, id string, a Assignment) (Device, error) {
	dev, err := svc.repo.GetDevice(ctx, id)
	if err != nil {
		return Device{}, err
	}

	if a.DeviceName != nil && *a.DeviceName != "" {
		dev.DeviceName = *a.DeviceName
	}
	if a.ScheduleGroupID != nil {
		if err = svc.checkGroup(ctx, *a.ScheduleGroupID); err != nil {
			return Device{}, err
		}
		if *a.ScheduleGroupID != dev.ScheduleGroupID.String {
			// a pinned schedule never outlives a group change
			dev.ScheduleID = null.String{}
		}
		dev.ScheduleGroupID = null.NewString(*a.ScheduleGroupID, *a.ScheduleGroupID != "")
	}
	if a.ScheduleID != nil {
		if *a.ScheduleID == "" {
			dev.ScheduleID = null.String{}
		} else {
			sched, err := svc.schedules.GetSchedule(ctx, *a.ScheduleID)
			if err != nil {
				if core.IsNotFound(err) {
					return Device{}, core.NewValidationError(err, core.FieldError{Field: "schedule_id", Error: err.Error()})
				}
				return Device{}, err
			}
			if !dev.ScheduleGroupID.Valid {
				dev.ScheduleGroupID = null.StringFrom(sched.ScheduleGroupID)
			} else if sched.ScheduleGroupID != dev.ScheduleGroupID.String {
				msg := "schedule does not belong to the device's group"
				return Device{}, core.NewValidationError(errors.New(msg), core.FieldError{Field: "schedule_id", Error: msg})
			}
			dev.ScheduleID = null.StringFrom(sched.ID)
		}
	}

	if dev, err = svc.repo.UpdateDevice(ctx, dev); err != nil {
		return Device{}, errors.Wrap(err, "updating device")
	}
	svc.events.Publish(ctx, core.NewChangeEvent(core.TableDevices, core.ChangeUpdate, dev.ID, dev))
	if err := svc.notifier.NotifyAssignment(ctx, dev); err != nil {
		svc.logger.Warn("notifying device assignment", err, map[string]interface{}{"device_id": dev.ID})
	}
	return dev, nil
}

func (svc *service) Delete(ctx context.Context, id string) error {
	dev, err := svc.repo.GetDevice(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteDevice(ctx, id); err != nil {
		return errors.Wrap(err, "deleting device")
	}
	svc.events.Publish(ctx, core.NewChangeEvent(core.TableDevices, core.ChangeDelete, dev.ID, dev))
	return nil
}

// Sync records a device heartbeat and returns the bells it must ring.
func (svc *service) Sync(ctx context.Context, deviceID string) (SyncResponse, error) {
	deviceID = core.CleanString(deviceID)
	if deviceID == "" {
		return SyncResponse{}, ErrInvalidDeviceID
	}

	dev, err := svc.repo.MarkSeen(ctx, deviceID, nowFunc().UTC())
	if err != nil {
		if core.IsNotFound(err) {
			return SyncResponse{}, &core.NotFoundError{
				Resource: "device",
				Message:  fmt.Sprintf("Device with ID '%s' not found.", deviceID),
			}
		}
		return SyncResponse{}, errors.Wrap(err, "marking device seen")
	}
	svc.events.Publish(ctx, core.NewChangeEvent(core.TableDevices, core.ChangeUpdate, dev.ID, dev))

	scheduleID, err := svc.resolveSchedule(ctx, dev)
	if err != nil {
		return SyncResponse{}, err
	}
	if scheduleID == "" {
		return SyncResponse{ScheduleName: NoScheduleName, Bells: []SyncBell{}}, nil
	}

	sched, err := svc.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		if core.IsNotFound(err) {
			return SyncResponse{ScheduleName: MissingScheduleName, Bells: []SyncBell{}}, nil
		}
		return SyncResponse{}, errors.Wrap(err, "finding schedule")
	}

	bells, err := svc.schedules.ListBells(ctx, sched.ID)
	if err != nil {
		return SyncResponse{}, errors.Wrap(err, "listing bells")
	}
	resp := SyncResponse{ScheduleName: sched.Name, Bells: make([]SyncBell, 0, len(bells))}
	for _, b := range bells {
		days := b.DaysOfWeek
		if days == nil {
			days = schedule.Weekdays{}
		}
		resp.Bells = append(resp.Bells, SyncBell{Time: b.Time, Label: b.Label, DaysOfWeek: days})
	}
	return resp, nil
}

// resolveSchedule picks the pinned schedule of dev, else the active schedule of its group.
func (svc *service) resolveSchedule(ctx context.Context, dev Device) (string, error) {
	if dev.ScheduleID.Valid && dev.ScheduleID.String != "" {
		return dev.ScheduleID.String, nil
	}
	if !dev.ScheduleGroupID.Valid || dev.ScheduleGroupID.String == "" {
		return "", nil
	}
	active, err := svc.schedules.GetActiveSchedule(ctx, dev.ScheduleGroupID.String)
	if err != nil {
		if core.IsNotFound(err) {
			return "", nil
		}
		return "", errors.Wrap(err, "finding active schedule")
	}
	return active.ID, nil
}

// MarkStale disconnects the devices whose last heartbeat is older than the offline threshold.
func (svc *service) MarkStale(ctx context.Context, now time.Time) ([]Device, error) {
	devices, err := svc.repo.MarkStale(ctx, now.Add(-svc.offlineAfter).UTC())
	if err != nil {
		return nil, errors.Wrap(err, "marking stale devices")
	}
	for _, dev := range devices {
		svc.events.Publish(ctx, core.NewChangeEvent(core.TableDevices, core.ChangeUpdate, dev.ID, dev))
	}
	return devices, nil
}
