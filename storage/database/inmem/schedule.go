package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/schedule"
)

type scheduleRepository struct {
	db *scheduleTables
}

var _ schedule.Repository = (*scheduleRepository)(nil) // interface compliance check

func NewScheduleRepository(db *DB) *scheduleRepository {
	return &scheduleRepository{db: db.schedule}
}

// groupSchedules lists the schedules of groupID, oldest first. Callers hold the lock.
func (tables *scheduleTables) groupSchedules(groupID string) []schedule.Schedule {
	scheds := make([]schedule.Schedule, 0)
	for _, s := range tables.schedules {
		if s.ScheduleGroupID == groupID {
			scheds = append(scheds, *s)
		}
	}
	sort.SliceStable(scheds, func(i, j int) bool { return scheds[i].CreatedAt.Before(scheds[j].CreatedAt) })
	return scheds
}

func (tables *scheduleTables) group(id string) (schedule.Group, bool) {
	grp, ok := tables.groups[id]
	if !ok {
		return schedule.Group{}, false
	}
	g := *grp
	g.Schedules = tables.groupSchedules(id)
	return g, true
}

func (repo *scheduleRepository) QueryGroups(_ context.Context, _ ...core.DBExecutor) ([]schedule.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	groups := make([]schedule.Group, 0, len(repo.db.groups))
	for id := range repo.db.groups {
		grp, _ := repo.db.group(id)
		groups = append(groups, grp)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].CreatedAt.Before(groups[j].CreatedAt) })
	return groups, nil
}

func (repo *scheduleRepository) GetGroup(_ context.Context, id string, _ ...core.DBExecutor) (schedule.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if grp, ok := repo.db.group(id); ok {
		return grp, nil
	}
	return schedule.Group{}, schedule.ErrGroupNotFound
}

func (repo *scheduleRepository) CreateGroup(_ context.Context, grp schedule.Group, _ ...core.DBExecutor) (schedule.Group, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	grp.ID = uuid.New().String()
	grp.Schedules = []schedule.Schedule{}
	repo.db.groups[grp.ID] = &grp
	return grp, nil
}

func (repo *scheduleRepository) DeleteGroup(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.groups[id]; !ok {
		return schedule.ErrGroupNotFound
	}
	delete(repo.db.groups, id)
	for sid, s := range repo.db.schedules {
		if s.ScheduleGroupID != id {
			continue
		}
		delete(repo.db.schedules, sid)
		for bid, b := range repo.db.bells {
			if b.ScheduleID == sid {
				delete(repo.db.bells, bid)
			}
		}
	}
	return nil
}

func (repo *scheduleRepository) CreateSchedule(_ context.Context, sched schedule.Schedule, _ ...core.DBExecutor) (schedule.Schedule, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.groups[sched.ScheduleGroupID]; !ok {
		return schedule.Schedule{}, schedule.ErrGroupNotFound
	}
	sched.ID = uuid.New().String()
	repo.db.schedules[sched.ID] = &sched
	return sched, nil
}

func (repo *scheduleRepository) GetSchedule(_ context.Context, id string, _ ...core.DBExecutor) (schedule.Schedule, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.schedules[id]; ok {
		return *s, nil
	}
	return schedule.Schedule{}, schedule.ErrScheduleNotFound
}

func (repo *scheduleRepository) GetActiveSchedule(_ context.Context, groupID string, _ ...core.DBExecutor) (schedule.Schedule, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, s := range repo.db.schedules {
		if s.ScheduleGroupID == groupID && s.IsActive {
			return *s, nil
		}
	}
	return schedule.Schedule{}, schedule.ErrScheduleNotFound
}

func (repo *scheduleRepository) SetActiveSchedule(_ context.Context, scheduleID, groupID string, _ ...core.DBExecutor) ([]schedule.Schedule, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	target, ok := repo.db.schedules[scheduleID]
	if !ok || target.ScheduleGroupID != groupID {
		return nil, schedule.ErrScheduleNotFound
	}
	for _, s := range repo.db.schedules {
		if s.ScheduleGroupID == groupID {
			s.IsActive = s.ID == scheduleID
		}
	}
	return repo.db.groupSchedules(groupID), nil
}

func (repo *scheduleRepository) QueryBells(_ context.Context, scheduleID string, _ ...core.DBExecutor) ([]schedule.Bell, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	bells := make([]schedule.Bell, 0)
	for _, b := range repo.db.bells {
		if b.ScheduleID == scheduleID {
			bells = append(bells, *b)
		}
	}
	// HH:MM:SS sorts lexically
	sort.SliceStable(bells, func(i, j int) bool { return bells[i].Time < bells[j].Time })
	return bells, nil
}

func (repo *scheduleRepository) GetBell(_ context.Context, id string, _ ...core.DBExecutor) (schedule.Bell, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if b, ok := repo.db.bells[id]; ok {
		return *b, nil
	}
	return schedule.Bell{}, schedule.ErrBellNotFound
}

func (repo *scheduleRepository) CreateBell(_ context.Context, bell schedule.Bell, _ ...core.DBExecutor) (schedule.Bell, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.schedules[bell.ScheduleID]; !ok {
		return schedule.Bell{}, schedule.ErrScheduleNotFound
	}
	bell.ID = uuid.New().String()
	repo.db.bells[bell.ID] = &bell
	return bell, nil
}

func (repo *scheduleRepository) UpdateBell(_ context.Context, bell schedule.Bell, _ ...core.DBExecutor) (schedule.Bell, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.bells[bell.ID]; !ok {
		return schedule.Bell{}, schedule.ErrBellNotFound
	}
	if _, ok := repo.db.schedules[bell.ScheduleID]; !ok {
		return schedule.Bell{}, schedule.ErrScheduleNotFound
	}
	repo.db.bells[bell.ID] = &bell
	return bell, nil
}

func (repo *scheduleRepository) DeleteBell(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.bells[id]; !ok {
		return schedule.ErrBellNotFound
	}
	delete(repo.db.bells, id)
	return nil
}

func (repo *scheduleRepository) QueryDayBells(_ context.Context, day int, _ ...core.DBExecutor) ([]schedule.DashboardBell, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	bells := make([]schedule.DashboardBell, 0)
	for _, b := range repo.db.bells {
		sched, ok := repo.db.schedules[b.ScheduleID]
		if !ok || !sched.IsActive || !b.DaysOfWeek.Contains(day) {
			continue
		}
		bells = append(bells, schedule.DashboardBell{
			ScheduleName:   sched.Name,
			BellID:         b.ID,
			BellTime:       b.Time,
			BellLabel:      b.Label,
			BellDaysOfWeek: b.DaysOfWeek,
		})
	}
	sort.SliceStable(bells, func(i, j int) bool {
		if bells[i].BellTime != bells[j].BellTime {
			return bells[i].BellTime < bells[j].BellTime
		}
		return bells[i].ScheduleName < bells[j].ScheduleName
	})
	return bells, nil
}
