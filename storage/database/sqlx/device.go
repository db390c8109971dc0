package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/device"
	"github.com/lop69/BELL-SYSTEM-V2/core/schedule"
)

const deviceColumns = `id, device_name, schedule_group_id, schedule_id, is_connected, last_seen, created_at`

type (
	deviceRow struct {
		ID              string      `db:"id"`
		DeviceName      string      `db:"device_name"`
		ScheduleGroupID null.String `db:"schedule_group_id"`
		ScheduleID      null.String `db:"schedule_id"`
		IsConnected     bool        `db:"is_connected"`
		LastSeen        null.Time   `db:"last_seen"`
		CreatedAt       time.Time   `db:"created_at"`
		GroupName       null.String `db:"group_name"`
	}

	groupScheduleRow struct {
		ScheduleGroupID string `db:"schedule_group_id"`
		Name            string `db:"name"`
		IsActive        bool   `db:"is_active"`
	}
)

type deviceRepository struct {
	repository
}

var _ device.Repository = (*deviceRepository)(nil) // interface compliance check

func NewDeviceRepository(exec core.DBExecutor) *deviceRepository {
	return &deviceRepository{repository{exec: exec}}
}

func (repo deviceRepository) boil(dev device.Device) deviceRow {
	return deviceRow{
		ID:              dev.ID,
		DeviceName:      dev.DeviceName,
		ScheduleGroupID: dev.ScheduleGroupID,
		ScheduleID:      dev.ScheduleID,
		IsConnected:     dev.IsConnected,
		LastSeen:        dev.LastSeen,
		CreatedAt:       dev.CreatedAt.UTC(),
	}
}

func (repo deviceRepository) unboil(row deviceRow) device.Device {
	dev := device.Device{
		ID:              row.ID,
		DeviceName:      row.DeviceName,
		ScheduleGroupID: row.ScheduleGroupID,
		ScheduleID:      row.ScheduleID,
		IsConnected:     row.IsConnected,
		LastSeen:        row.LastSeen,
		CreatedAt:       row.CreatedAt,
	}
	if row.GroupName.Valid {
		dev.ScheduleGroups = &device.DeviceGroup{Name: row.GroupName.String, Schedules: []device.GroupSchedule{}}
	}
	return dev
}

// withGroups unboils rows and embeds the schedules of their groups.
func (repo deviceRepository) withGroups(ctx context.Context, exe core.DBExecutor, rows []deviceRow) ([]device.Device, error) {
	devices := make([]device.Device, 0, len(rows))
	var groupIDs []string
	for _, r := range rows {
		if r.GroupName.Valid {
			groupIDs = append(groupIDs, r.ScheduleGroupID.String)
		}
		devices = append(devices, repo.unboil(r))
	}
	if len(groupIDs) == 0 {
		return devices, nil
	}

	var scheds []groupScheduleRow
	q := `SELECT schedule_group_id, name, is_active FROM schedules
		WHERE schedule_group_id = ANY($1::uuid[]) ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, exe, &scheds, q, pq.Array(groupIDs)); err != nil {
		return nil, errors.Wrap(err, "querying device schedules")
	}
	byGroup := make(map[string][]device.GroupSchedule)
	for _, s := range scheds {
		byGroup[s.ScheduleGroupID] = append(byGroup[s.ScheduleGroupID], device.GroupSchedule{Name: s.Name, IsActive: s.IsActive})
	}
	for i := range devices {
		if devices[i].ScheduleGroups != nil {
			if gs, ok := byGroup[devices[i].ScheduleGroupID.String]; ok {
				devices[i].ScheduleGroups.Schedules = gs
			}
		}
	}
	return devices, nil
}

func (repo deviceRepository) selectDevices(where string) string {
	q := `SELECT d.id, d.device_name, d.schedule_group_id, d.schedule_id, d.is_connected, d.last_seen, d.created_at,
			g.name AS group_name
		FROM devices d
		LEFT JOIN schedule_groups g ON g.id = d.schedule_group_id`
	if where != "" {
		q += ` WHERE ` + where
	}
	return q
}

func (repo deviceRepository) QueryDevices(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]device.Device, error) {
	orderBy := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		orderBy = append(orderBy, "d."+ord.String())
	}
	if len(orderBy) == 0 {
		orderBy = append(orderBy, "d.created_at DESC")
	}
	q := repo.selectDevices("") + ` ORDER BY ` + strings.Join(orderBy, ", ")

	exe := repo.getExec(exec)
	var rows []deviceRow
	if err := sqlx.SelectContext(ctx, exe, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying devices")
	}
	return repo.withGroups(ctx, exe, rows)
}

func (repo deviceRepository) GetDevice(ctx context.Context, id string, exec ...core.DBExecutor) (device.Device, error) {
	exe := repo.getExec(exec)
	var row deviceRow
	if err := sqlx.GetContext(ctx, exe, &row, repo.selectDevices("d.id = $1"), id); err != nil {
		return device.Device{}, trapNoRowsErr(err, device.ErrNotFound, "finding device")
	}
	devices, err := repo.withGroups(ctx, exe, []deviceRow{row})
	if err != nil {
		return device.Device{}, err
	}
	return devices[0], nil
}

func (repo deviceRepository) CreateDevice(ctx context.Context, dev device.Device, exec ...core.DBExecutor) (device.Device, error) {
	q := `INSERT INTO devices (` + deviceColumns + `)
		VALUES (:id, :device_name, :schedule_group_id, :schedule_id, :is_connected, :last_seen, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, repo.boil(dev)); err != nil {
		switch {
		case isPQError(err, uniqueViolation):
			return device.Device{}, device.ErrDeviceExists
		case isPQError(err, foreignKeyViolation):
			return device.Device{}, schedule.ErrGroupNotFound
		}
		return device.Device{}, errors.Wrap(err, "inserting device")
	}
	return dev, nil
}

func (repo deviceRepository) UpdateDevice(ctx context.Context, dev device.Device, exec ...core.DBExecutor) (device.Device, error) {
	q := `UPDATE devices SET device_name = :device_name, schedule_group_id = :schedule_group_id,
		schedule_id = :schedule_id, is_connected = :is_connected, last_seen = :last_seen
		WHERE id = :id`
	exe := repo.getExec(exec)
	res, err := sqlx.NamedExecContext(ctx, exe, q, repo.boil(dev))
	if err != nil {
		if isPQError(err, foreignKeyViolation) {
			return device.Device{}, schedule.ErrGroupNotFound
		}
		return device.Device{}, errors.Wrap(err, "updating device")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return device.Device{}, device.ErrNotFound
	}
	// refresh the embedded group
	return repo.GetDevice(ctx, dev.ID, exe)
}

func (repo deviceRepository) DeleteDevice(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting device")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return device.ErrNotFound
	}
	return nil
}

func (repo deviceRepository) MarkSeen(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) (device.Device, error) {
	var row deviceRow
	q := `UPDATE devices SET is_connected = TRUE, last_seen = $2 WHERE id = $1 RETURNING ` + deviceColumns
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id, at.UTC()); err != nil {
		return device.Device{}, trapNoRowsErr(err, device.ErrNotFound, "marking device seen")
	}
	return repo.unboil(row), nil
}

func (repo deviceRepository) MarkStale(ctx context.Context, before time.Time, exec ...core.DBExecutor) ([]device.Device, error) {
	var rows []deviceRow
	q := `UPDATE devices SET is_connected = FALSE
		WHERE is_connected AND (last_seen IS NULL OR last_seen < $1)
		RETURNING ` + deviceColumns
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, before.UTC()); err != nil {
		return nil, errors.Wrap(err, "marking stale devices")
	}
	devices := make([]device.Device, 0, len(rows))
	for _, r := range rows {
		devices = append(devices, repo.unboil(r))
	}
	return devices, nil
}
