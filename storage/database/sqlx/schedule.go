package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/schedule"
)

const (
	groupColumns    = `id, name, user_id, created_at`
	scheduleColumns = `id, name, schedule_group_id, user_id, is_active, created_at`
	bellColumns     = `id, schedule_id, user_id, to_char(time, 'HH24:MI:SS') AS time, label, days_of_week, created_at`
)

type (
	groupRow struct {
		ID        string      `db:"id"`
		Name      string      `db:"name"`
		UserID    null.String `db:"user_id"`
		CreatedAt time.Time   `db:"created_at"`
	}

	scheduleRow struct {
		ID              string      `db:"id"`
		Name            string      `db:"name"`
		ScheduleGroupID string      `db:"schedule_group_id"`
		UserID          null.String `db:"user_id"`
		IsActive        bool        `db:"is_active"`
		CreatedAt       time.Time   `db:"created_at"`
	}

	bellRow struct {
		ID         string        `db:"id"`
		ScheduleID string        `db:"schedule_id"`
		UserID     null.String   `db:"user_id"`
		Time       string        `db:"time"`
		Label      string        `db:"label"`
		DaysOfWeek pq.Int64Array `db:"days_of_week"`
		CreatedAt  time.Time     `db:"created_at"`
	}

	dayBellRow struct {
		ScheduleName   string        `db:"schedule_name"`
		BellID         string        `db:"bell_id"`
		BellTime       string        `db:"bell_time"`
		BellLabel      string        `db:"bell_label"`
		BellDaysOfWeek pq.Int64Array `db:"bell_days_of_week"`
	}
)

func toWeekdays(arr pq.Int64Array) schedule.Weekdays {
	days := make(schedule.Weekdays, 0, len(arr))
	for _, d := range arr {
		days = append(days, int(d))
	}
	return days
}

func fromWeekdays(days schedule.Weekdays) pq.Int64Array {
	arr := make(pq.Int64Array, 0, len(days))
	for _, d := range days {
		arr = append(arr, int64(d))
	}
	return arr
}

func nullID(id string) null.String {
	return null.NewString(id, id != "")
}

type scheduleRepository struct {
	repository
}

var _ schedule.Repository = (*scheduleRepository)(nil) // interface compliance check

func NewScheduleRepository(exec core.DBExecutor) *scheduleRepository {
	return &scheduleRepository{repository{exec: exec}}
}

func (repo scheduleRepository) unboilGroup(row groupRow) schedule.Group {
	return schedule.Group{
		ID:        row.ID,
		Name:      row.Name,
		UserID:    row.UserID.String,
		CreatedAt: row.CreatedAt,
		Schedules: []schedule.Schedule{},
	}
}

func (repo scheduleRepository) boilSchedule(sched schedule.Schedule) scheduleRow {
	return scheduleRow{
		ID:              sched.ID,
		Name:            sched.Name,
		ScheduleGroupID: sched.ScheduleGroupID,
		UserID:          nullID(sched.UserID),
		IsActive:        sched.IsActive,
		CreatedAt:       sched.CreatedAt.UTC(),
	}
}

func (repo scheduleRepository) unboilSchedule(row scheduleRow) schedule.Schedule {
	return schedule.Schedule{
		ID:              row.ID,
		Name:            row.Name,
		ScheduleGroupID: row.ScheduleGroupID,
		UserID:          row.UserID.String,
		IsActive:        row.IsActive,
		CreatedAt:       row.CreatedAt,
	}
}

func (repo scheduleRepository) boilBell(bell schedule.Bell) bellRow {
	return bellRow{
		ID:         bell.ID,
		ScheduleID: bell.ScheduleID,
		UserID:     nullID(bell.UserID),
		Time:       bell.Time,
		Label:      bell.Label,
		DaysOfWeek: fromWeekdays(bell.DaysOfWeek),
		CreatedAt:  bell.CreatedAt.UTC(),
	}
}

func (repo scheduleRepository) unboilBell(row bellRow) schedule.Bell {
	return schedule.Bell{
		ID:         row.ID,
		ScheduleID: row.ScheduleID,
		UserID:     row.UserID.String,
		Time:       row.Time,
		Label:      row.Label,
		DaysOfWeek: toWeekdays(row.DaysOfWeek),
		CreatedAt:  row.CreatedAt,
	}
}

func (repo scheduleRepository) querySchedules(ctx context.Context, exe core.DBExecutor, groupIDs []string) (map[string][]schedule.Schedule, error) {
	var rows []scheduleRow
	q := `SELECT ` + scheduleColumns + ` FROM schedules WHERE schedule_group_id = ANY($1::uuid[]) ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, exe, &rows, q, pq.Array(groupIDs)); err != nil {
		return nil, errors.Wrap(err, "querying schedules")
	}
	byGroup := make(map[string][]schedule.Schedule, len(groupIDs))
	for _, r := range rows {
		byGroup[r.ScheduleGroupID] = append(byGroup[r.ScheduleGroupID], repo.unboilSchedule(r))
	}
	return byGroup, nil
}

func (repo scheduleRepository) QueryGroups(ctx context.Context, exec ...core.DBExecutor) ([]schedule.Group, error) {
	exe := repo.getExec(exec)
	var rows []groupRow
	if err := sqlx.SelectContext(ctx, exe, &rows, `SELECT `+groupColumns+` FROM schedule_groups ORDER BY created_at`); err != nil {
		return nil, errors.Wrap(err, "querying schedule groups")
	}
	if len(rows) == 0 {
		return []schedule.Group{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	byGroup, err := repo.querySchedules(ctx, exe, ids)
	if err != nil {
		return nil, err
	}

	groups := make([]schedule.Group, 0, len(rows))
	for _, r := range rows {
		grp := repo.unboilGroup(r)
		if scheds, ok := byGroup[grp.ID]; ok {
			grp.Schedules = scheds
		}
		groups = append(groups, grp)
	}
	return groups, nil
}

func (repo scheduleRepository) GetGroup(ctx context.Context, id string, exec ...core.DBExecutor) (schedule.Group, error) {
	if _, err := uuid.Parse(id); err != nil {
		return schedule.Group{}, schedule.ErrGroupNotFound
	}
	exe := repo.getExec(exec)
	var row groupRow
	if err := sqlx.GetContext(ctx, exe, &row, `SELECT `+groupColumns+` FROM schedule_groups WHERE id = $1`, id); err != nil {
		return schedule.Group{}, trapNoRowsErr(err, schedule.ErrGroupNotFound, "finding schedule group")
	}
	byGroup, err := repo.querySchedules(ctx, exe, []string{id})
	if err != nil {
		return schedule.Group{}, err
	}
	grp := repo.unboilGroup(row)
	if scheds, ok := byGroup[id]; ok {
		grp.Schedules = scheds
	}
	return grp, nil
}

func (repo scheduleRepository) CreateGroup(ctx context.Context, grp schedule.Group, exec ...core.DBExecutor) (schedule.Group, error) {
	grp.ID = uuid.New().String()
	q := `INSERT INTO schedule_groups (` + groupColumns + `) VALUES (:id, :name, :user_id, :created_at)`
	row := groupRow{ID: grp.ID, Name: grp.Name, UserID: nullID(grp.UserID), CreatedAt: grp.CreatedAt.UTC()}
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		return schedule.Group{}, errors.Wrap(err, "inserting schedule group")
	}
	if grp.Schedules == nil {
		grp.Schedules = []schedule.Schedule{}
	}
	return grp, nil
}

func (repo scheduleRepository) DeleteGroup(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM schedule_groups WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting schedule group")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return schedule.ErrGroupNotFound
	}
	return nil
}

func (repo scheduleRepository) CreateSchedule(ctx context.Context, sched schedule.Schedule, exec ...core.DBExecutor) (schedule.Schedule, error) {
	sched.ID = uuid.New().String()
	q := `INSERT INTO schedules (` + scheduleColumns + `)
		VALUES (:id, :name, :schedule_group_id, :user_id, :is_active, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, repo.boilSchedule(sched)); err != nil {
		if isPQError(err, foreignKeyViolation) {
			return schedule.Schedule{}, schedule.ErrGroupNotFound
		}
		return schedule.Schedule{}, errors.Wrap(err, "inserting schedule")
	}
	return sched, nil
}

func (repo scheduleRepository) GetSchedule(ctx context.Context, id string, exec ...core.DBExecutor) (schedule.Schedule, error) {
	if _, err := uuid.Parse(id); err != nil {
		return schedule.Schedule{}, schedule.ErrScheduleNotFound
	}
	var row scheduleRow
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id); err != nil {
		return schedule.Schedule{}, trapNoRowsErr(err, schedule.ErrScheduleNotFound, "finding schedule")
	}
	return repo.unboilSchedule(row), nil
}

func (repo scheduleRepository) GetActiveSchedule(ctx context.Context, groupID string, exec ...core.DBExecutor) (schedule.Schedule, error) {
	if _, err := uuid.Parse(groupID); err != nil {
		return schedule.Schedule{}, schedule.ErrScheduleNotFound
	}
	var row scheduleRow
	q := `SELECT ` + scheduleColumns + ` FROM schedules WHERE schedule_group_id = $1 AND is_active LIMIT 1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, groupID); err != nil {
		return schedule.Schedule{}, trapNoRowsErr(err, schedule.ErrScheduleNotFound, "finding active schedule")
	}
	return repo.unboilSchedule(row), nil
}

// SetActiveSchedule deactivates the group's schedules before activating the chosen one,
// otherwise the one-active-per-group index would reject the swap.
func (repo scheduleRepository) SetActiveSchedule(ctx context.Context, scheduleID, groupID string, exec ...core.DBExecutor) ([]schedule.Schedule, error) {
	exe := repo.getExec(exec)
	if _, err := exe.ExecContext(ctx,
		`UPDATE schedules SET is_active = FALSE WHERE schedule_group_id = $1 AND is_active AND id <> $2`,
		groupID, scheduleID,
	); err != nil {
		return nil, errors.Wrap(err, "deactivating schedules")
	}
	res, err := exe.ExecContext(ctx,
		`UPDATE schedules SET is_active = TRUE WHERE id = $1 AND schedule_group_id = $2`,
		scheduleID, groupID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "activating schedule")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, schedule.ErrScheduleNotFound
	}

	byGroup, err := repo.querySchedules(ctx, exe, []string{groupID})
	if err != nil {
		return nil, err
	}
	return byGroup[groupID], nil
}

func (repo scheduleRepository) QueryBells(ctx context.Context, scheduleID string, exec ...core.DBExecutor) ([]schedule.Bell, error) {
	var rows []bellRow
	q := `SELECT ` + bellColumns + ` FROM bells WHERE schedule_id = $1 ORDER BY bells.time`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, scheduleID); err != nil {
		return nil, errors.Wrap(err, "querying bells")
	}
	bells := make([]schedule.Bell, 0, len(rows))
	for _, r := range rows {
		bells = append(bells, repo.unboilBell(r))
	}
	return bells, nil
}

func (repo scheduleRepository) GetBell(ctx context.Context, id string, exec ...core.DBExecutor) (schedule.Bell, error) {
	if _, err := uuid.Parse(id); err != nil {
		return schedule.Bell{}, schedule.ErrBellNotFound
	}
	var row bellRow
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, `SELECT `+bellColumns+` FROM bells WHERE id = $1`, id); err != nil {
		return schedule.Bell{}, trapNoRowsErr(err, schedule.ErrBellNotFound, "finding bell")
	}
	return repo.unboilBell(row), nil
}

func (repo scheduleRepository) CreateBell(ctx context.Context, bell schedule.Bell, exec ...core.DBExecutor) (schedule.Bell, error) {
	bell.ID = uuid.New().String()
	q := `INSERT INTO bells (id, schedule_id, user_id, time, label, days_of_week, created_at)
		VALUES (:id, :schedule_id, :user_id, :time, :label, :days_of_week, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, repo.boilBell(bell)); err != nil {
		if isPQError(err, foreignKeyViolation) {
			return schedule.Bell{}, schedule.ErrScheduleNotFound
		}
		return schedule.Bell{}, errors.Wrap(err, "inserting bell")
	}
	return bell, nil
}

func (repo scheduleRepository) UpdateBell(ctx context.Context, bell schedule.Bell, exec ...core.DBExecutor) (schedule.Bell, error) {
	q := `UPDATE bells SET schedule_id = :schedule_id, time = :time, label = :label, days_of_week = :days_of_week
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, repo.boilBell(bell))
	if err != nil {
		if isPQError(err, foreignKeyViolation) {
			return schedule.Bell{}, schedule.ErrScheduleNotFound
		}
		return schedule.Bell{}, errors.Wrap(err, "updating bell")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return schedule.Bell{}, schedule.ErrBellNotFound
	}
	return bell, nil
}

func (repo scheduleRepository) DeleteBell(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM bells WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting bell")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return schedule.ErrBellNotFound
	}
	return nil
}

func (repo scheduleRepository) QueryDayBells(ctx context.Context, day int, exec ...core.DBExecutor) ([]schedule.DashboardBell, error) {
	q := `SELECT s.name AS schedule_name, b.id AS bell_id, to_char(b.time, 'HH24:MI:SS') AS bell_time,
			b.label AS bell_label, b.days_of_week AS bell_days_of_week
		FROM bells b
		JOIN schedules s ON s.id = b.schedule_id
		WHERE s.is_active AND $1 = ANY(b.days_of_week)
		ORDER BY b.time, s.name`
	var rows []dayBellRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, day); err != nil {
		return nil, errors.Wrap(err, "querying day bells")
	}
	bells := make([]schedule.DashboardBell, 0, len(rows))
	for _, r := range rows {
		bells = append(bells, schedule.DashboardBell{
			ScheduleName:   r.ScheduleName,
			BellID:         r.BellID,
			BellTime:       r.BellTime,
			BellLabel:      r.BellLabel,
			BellDaysOfWeek: toWeekdays(r.BellDaysOfWeek),
		})
	}
	return bells, nil
}
