package schedule

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/lop69/BELL-SYSTEM-V2/core"
)

var (
	// errors
	ErrGroupNotFound    = core.NewNotFoundError("schedule group")
	ErrScheduleNotFound = core.NewNotFoundError("schedule")
	ErrBellNotFound     = core.NewNotFoundError("bell")
)

type (
	Repository interface {
		QueryGroups(ctx context.Context, exec ...core.DBExecutor) ([]Group, error)
		GetGroup(ctx context.Context, id string, exec ...core.DBExecutor) (Group, error)
		CreateGroup(ctx context.Context, grp Group, exec ...core.DBExecutor) (Group, error)
		DeleteGroup(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateSchedule(ctx context.Context, sched Schedule, exec ...core.DBExecutor) (Schedule, error)
		GetSchedule(ctx context.Context, id string, exec ...core.DBExecutor) (Schedule, error)
		GetActiveSchedule(ctx context.Context, groupID string, exec ...core.DBExecutor) (Schedule, error)
		// SetActiveSchedule flags scheduleID as the only active schedule of groupID and returns the group's schedules.
		SetActiveSchedule(ctx context.Context, scheduleID, groupID string, exec ...core.DBExecutor) ([]Schedule, error)

		QueryBells(ctx context.Context, scheduleID string, exec ...core.DBExecutor) ([]Bell, error)
		GetBell(ctx context.Context, id string, exec ...core.DBExecutor) (Bell, error)
		CreateBell(ctx context.Context, bell Bell, exec ...core.DBExecutor) (Bell, error)
		UpdateBell(ctx context.Context, bell Bell, exec ...core.DBExecutor) (Bell, error)
		DeleteBell(ctx context.Context, id string, exec ...core.DBExecutor) error

		// QueryDayBells lists the bells of every active schedule ringing on day, ordered by time.
		QueryDayBells(ctx context.Context, day int, exec ...core.DBExecutor) ([]DashboardBell, error)
	}

	Service interface {
		ListGroups(ctx context.Context) ([]Group, error)
		AddGroup(ctx context.Context, ng NewGroup, userID string) (Group, error)
		GetGroup(ctx context.Context, id string) (Group, error)
		DeleteGroup(ctx context.Context, id string) error
		AddSchedule(ctx context.Context, groupID string, ns NewSchedule, userID string) (Schedule, error)
		GetSchedule(ctx context.Context, id string) (Schedule, error)
		GetActiveSchedule(ctx context.Context, groupID string) (Schedule, error)
		SetActiveSchedule(ctx context.Context, scheduleID, groupID string) (Schedule, error)
		ListBells(ctx context.Context, scheduleID string) ([]Bell, error)
		ManageBell(ctx context.Context, form BellForm, userID string, bellID ...string) (Bell, bool, error)
		DeleteBell(ctx context.Context, id string) error
		TodaysBells(ctx context.Context, day int) ([]DashboardBell, error)
		Dashboard(ctx context.Context, now time.Time) (Dashboard, error)
	}

	service struct {
		db     core.DB
		repo   Repository
		events core.EventPublisher
		loc    *time.Location
	}
)

var _ Service = (*service)(nil)

func NewService(conf *core.Config, db core.DB, repo Repository, events core.EventPublisher) Service {
	return &service{
		db:     db,
		repo:   repo,
		events: events,
		loc:    conf.Location(),
	}
}

func (svc *service) publish(ctx context.Context, evts ...core.ChangeEvent) {
	for _, evt := range evts {
		svc.events.Publish(ctx, evt)
	}
}

func (svc *service) ListGroups(ctx context.Context) ([]Group, error) {
	groups, err := svc.repo.QueryGroups(ctx)
	return groups, errors.Wrap(err, "querying schedule groups")
}

func (svc *service) AddGroup(ctx context.Context, ng NewGroup, userID string) (Group, error) {
	grp, err := svc.repo.CreateGroup(ctx, Group{
		Name:      ng.Name,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return Group{}, errors.Wrap(err, "creating schedule group")
	}
	svc.publish(ctx, core.NewChangeEvent(core.TableScheduleGroups, core.ChangeInsert, grp.ID, grp))
	return grp, nil
}

func (svc *service) GetGroup(ctx context.Context, id string) (Group, error) {
	return svc.repo.GetGroup(ctx, id)
}

func (svc *service) DeleteGroup(ctx context.Context, id string) error {
	var grp Group
	err := core.InTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		if grp, err = svc.repo.GetGroup(ctx, id, exec); err != nil {
			return err
		}
		return svc.repo.DeleteGroup(ctx, id, exec)
	})
	if err != nil {
		return err
	}

	evts := make([]core.ChangeEvent, 0, len(grp.Schedules)+1)
	for _, sched := range grp.Schedules {
		evts = append(evts, core.NewChangeEvent(core.TableSchedules, core.ChangeDelete, sched.ID, sched))
	}
	evts = append(evts, core.NewChangeEvent(core.TableScheduleGroups, core.ChangeDelete, grp.ID, grp))
	svc.publish(ctx, evts...)
	return nil
}

func (svc *service) AddSchedule(ctx context.Context, groupID string, ns NewSchedule, userID string) (Schedule, error) {
	var sched Schedule
	err := core.InTx(ctx, svc.db, func(exec core.DBExecutor) error {
		if _, err := svc.repo.GetGroup(ctx, groupID, exec); err != nil {
			return err
		}
		var err error
		sched, err = svc.repo.CreateSchedule(ctx, Schedule{
			Name:            ns.Name,
			ScheduleGroupID: groupID,
			UserID:          userID,
			CreatedAt:       time.Now().UTC(),
		}, exec)
		return err
	})
	if err != nil {
		return Schedule{}, err
	}
	svc.publish(ctx, core.NewChangeEvent(core.TableSchedules, core.ChangeInsert, sched.ID, sched))
	return sched, nil
}

func (svc *service) GetSchedule(ctx context.Context, id string) (Schedule, error) {
	return svc.repo.GetSchedule(ctx, id)
}

func (svc *service) GetActiveSchedule(ctx context.Context, groupID string) (Schedule, error) {
	return svc.repo.GetActiveSchedule(ctx, groupID)
}

// SetActiveSchedule activates scheduleID and deactivates all of its siblings.
func (svc *service) SetActiveSchedule(ctx context.Context, scheduleID, groupID string) (Schedule, error) {
	var before, after []Schedule
	err := core.InTx(ctx, svc.db, func(exec core.DBExecutor) error {
		grp, err := svc.repo.GetGroup(ctx, groupID, exec)
		if err != nil {
			return err
		}
		sched, err := svc.repo.GetSchedule(ctx, scheduleID, exec)
		if err != nil {
			return err
		}
		if sched.ScheduleGroupID != grp.ID {
			return ErrScheduleNotFound
		}
		before = grp.Schedules
		after, err = svc.repo.SetActiveSchedule(ctx, scheduleID, groupID, exec)
		return err
	})
	if err != nil {
		return Schedule{}, err
	}

	wasActive := make(map[string]bool, len(before))
	for _, s := range before {
		wasActive[s.ID] = s.IsActive
	}
	var active Schedule
	for _, s := range after {
		if s.ID == scheduleID {
			active = s
		}
		if prev, ok := wasActive[s.ID]; !ok || prev != s.IsActive {
			svc.publish(ctx, core.NewChangeEvent(core.TableSchedules, core.ChangeUpdate, s.ID, s))
		}
	}
	return active, nil
}

func (svc *service) ListBells(ctx context.Context, scheduleID string) ([]Bell, error) {
	if _, err := svc.repo.GetSchedule(ctx, scheduleID); err != nil {
		return nil, err
	}
	return svc.repo.QueryBells(ctx, scheduleID)
}

// ManageBell creates a bell, or updates bellID when given. The returned bool is true on creation.
func (svc *service) ManageBell(ctx context.Context, form BellForm, userID string, bellID ...string) (Bell, bool, error) {
	bellTime, err := NormalizeTime(form.Time)
	if err != nil {
		return Bell{}, false, core.NewValidationError(err, core.FieldError{Field: "time", Error: err.Error()})
	}

	var bell Bell
	created := len(bellID) == 0 || bellID[0] == ""
	err = core.InTx(ctx, svc.db, func(exec core.DBExecutor) error {
		if _, err := svc.repo.GetSchedule(ctx, form.ScheduleID, exec); err != nil {
			if core.IsNotFound(err) {
				return core.NewValidationError(err, core.FieldError{Field: "schedule_id", Error: err.Error()})
			}
			return err
		}

		if created {
			bell, err = svc.repo.CreateBell(ctx, Bell{
				ScheduleID: form.ScheduleID,
				UserID:     userID,
				Time:       bellTime,
				Label:      form.Label,
				DaysOfWeek: Weekdays(form.DaysOfWeek).Normalize(),
				CreatedAt:  time.Now().UTC(),
			}, exec)
			return err
		}

		if bell, err = svc.repo.GetBell(ctx, bellID[0], exec); err != nil {
			return err
		}
		bell.ScheduleID = form.ScheduleID
		bell.Time = bellTime
		bell.Label = form.Label
		bell.DaysOfWeek = Weekdays(form.DaysOfWeek).Normalize()
		bell, err = svc.repo.UpdateBell(ctx, bell, exec)
		return err
	})
	if err != nil {
		return Bell{}, false, err
	}

	typ := core.ChangeUpdate
	if created {
		typ = core.ChangeInsert
	}
	svc.publish(ctx, core.NewChangeEvent(core.TableBells, typ, bell.ID, bell))
	return bell, created, nil
}

func (svc *service) DeleteBell(ctx context.Context, id string) error {
	var bell Bell
	err := core.InTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		if bell, err = svc.repo.GetBell(ctx, id, exec); err != nil {
			return err
		}
		return svc.repo.DeleteBell(ctx, id, exec)
	})
	if err != nil {
		return err
	}
	svc.publish(ctx, core.NewChangeEvent(core.TableBells, core.ChangeDelete, bell.ID, bell))
	return nil
}

func (svc *service) TodaysBells(ctx context.Context, day int) ([]DashboardBell, error) {
	if day < 0 || day > 6 {
		return nil, core.NewValidationError(errors.Errorf("invalid day of week %d", day))
	}
	bells, err := svc.repo.QueryDayBells(ctx, day)
	return bells, errors.Wrap(err, "querying day bells")
}

// Dashboard returns today's bells, the next one and the countdown to it, as seen in the configured time zone.
func (svc *service) Dashboard(ctx context.Context, now time.Time) (Dashboard, error) {
	now = now.In(svc.loc)
	bells, err := svc.TodaysBells(ctx, int(now.Weekday()))
	if err != nil {
		return Dashboard{}, err
	}
	return BuildDashboard(bells, now), nil
}
