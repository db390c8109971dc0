package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/device"
	"github.com/lop69/BELL-SYSTEM-V2/core/schedule"
)

type deviceRepository struct {
	db        *deviceTable
	schedules *scheduleTables
}

var _ device.Repository = (*deviceRepository)(nil) // interface compliance check

func NewDeviceRepository(db *DB) *deviceRepository {
	return &deviceRepository{db: db.device, schedules: db.schedule}
}

// resolve drops references to deleted groups and schedules and embeds the device's group.
func (repo *deviceRepository) resolve(dev device.Device) device.Device {
	repo.schedules.mutex.RLock()
	defer repo.schedules.mutex.RUnlock()

	dev.ScheduleGroups = nil
	if dev.ScheduleID.Valid {
		if _, ok := repo.schedules.schedules[dev.ScheduleID.String]; !ok {
			dev.ScheduleID = null.String{}
		}
	}
	if !dev.ScheduleGroupID.Valid {
		return dev
	}
	grp, ok := repo.schedules.group(dev.ScheduleGroupID.String)
	if !ok {
		dev.ScheduleGroupID = null.String{}
		return dev
	}
	dg := &device.DeviceGroup{Name: grp.Name, Schedules: make([]device.GroupSchedule, 0, len(grp.Schedules))}
	for _, s := range grp.Schedules {
		dg.Schedules = append(dg.Schedules, device.GroupSchedule{Name: s.Name, IsActive: s.IsActive})
	}
	dev.ScheduleGroups = dg
	return dev
}

func (repo *deviceRepository) QueryDevices(_ context.Context, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]device.Device, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	devices := make([]device.Device, 0, len(repo.db.table))
	for _, d := range repo.db.table {
		devices = append(devices, repo.resolve(*d))
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(devices, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareDevices(devices[i], devices[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return devices, nil
}

func compareDevices(a, b device.Device, field string) int {
	switch field {
	case "device_name":
		return compareStrings(a.DeviceName, b.DeviceName)
	case "last_seen":
		return compareTimes(a.LastSeen.Time, b.LastSeen.Time)
	case "is_connected":
		switch {
		case a.IsConnected == b.IsConnected:
			return 0
		case a.IsConnected:
			return 1
		}
		return -1
	default:
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func (repo *deviceRepository) GetDevice(_ context.Context, id string, _ ...core.DBExecutor) (device.Device, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if d, ok := repo.db.table[id]; ok {
		return repo.resolve(*d), nil
	}
	return device.Device{}, device.ErrNotFound
}

func (repo *deviceRepository) CreateDevice(_ context.Context, dev device.Device, _ ...core.DBExecutor) (device.Device, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[dev.ID]; ok {
		return device.Device{}, device.ErrDeviceExists
	}
	if dev.ScheduleGroupID.Valid && !repo.groupExists(dev.ScheduleGroupID.String) {
		return device.Device{}, schedule.ErrGroupNotFound
	}
	dev.ScheduleGroups = nil
	repo.db.table[dev.ID] = &dev
	return repo.resolve(dev), nil
}

func (repo *deviceRepository) groupExists(id string) bool {
	repo.schedules.mutex.RLock()
	defer repo.schedules.mutex.RUnlock()
	_, ok := repo.schedules.groups[id]
	return ok
}

func (repo *deviceRepository) UpdateDevice(_ context.Context, dev device.Device, _ ...core.DBExecutor) (device.Device, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[dev.ID]; !ok {
		return device.Device{}, device.ErrNotFound
	}
	if dev.ScheduleGroupID.Valid && !repo.groupExists(dev.ScheduleGroupID.String) {
		return device.Device{}, schedule.ErrGroupNotFound
	}
	dev.ScheduleGroups = nil
	repo.db.table[dev.ID] = &dev
	return repo.resolve(dev), nil
}

func (repo *deviceRepository) DeleteDevice(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return device.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}

func (repo *deviceRepository) MarkSeen(_ context.Context, id string, at time.Time, _ ...core.DBExecutor) (device.Device, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	d, ok := repo.db.table[id]
	if !ok {
		return device.Device{}, device.ErrNotFound
	}
	d.IsConnected = true
	d.LastSeen = null.TimeFrom(at.UTC())
	return repo.resolve(*d), nil
}

func (repo *deviceRepository) MarkStale(_ context.Context, before time.Time, _ ...core.DBExecutor) ([]device.Device, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stale := make([]device.Device, 0)
	for _, d := range repo.db.table {
		if d.IsConnected && (!d.LastSeen.Valid || d.LastSeen.Time.Before(before)) {
			d.IsConnected = false
			stale = append(stale, repo.resolve(*d))
		}
	}
	return stale, nil
}
