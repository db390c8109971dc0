package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/schedule"
	inmemdb "github.com/lop69/BELL-SYSTEM-V2/storage/database/inmem"
	testutil "github.com/lop69/BELL-SYSTEM-V2/tests"
)

func newService(t *testing.T) (schedule.Service, schedule.Repository, *testutil.EventRecorder) {
	t.Helper()
	repo := inmemdb.NewScheduleRepository(inmemdb.Open())
	events := new(testutil.EventRecorder)
	conf := core.NewTestConfig()
	conf.TimeZone = "UTC"
	return schedule.NewService(conf, nil, repo, events), repo, events
}

func TestService_groupsAndSchedules(t *testing.T) {
	svc, _, events := newService(t)
	ctx := context.Background()

	grp, err := svc.AddGroup(ctx, schedule.NewGroup{Name: "Main building"}, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", grp.UserID)

	_, err = svc.AddSchedule(ctx, "ghost", schedule.NewSchedule{Name: "Regular"}, "u1")
	assert.True(t, core.IsNotFound(err))

	regular, err := svc.AddSchedule(ctx, grp.ID, schedule.NewSchedule{Name: "Regular"}, "u1")
	require.NoError(t, err)
	assert.False(t, regular.IsActive)
	_, err = svc.AddSchedule(ctx, grp.ID, schedule.NewSchedule{Name: "Exams"}, "u1")
	require.NoError(t, err)

	groups, err := svc.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Schedules, 2)

	assert.Equal(t, []string{
		"schedule_groups INSERT",
		"schedules INSERT",
		"schedules INSERT",
	}, events.Kinds())
}

func TestService_SetActiveSchedule(t *testing.T) {
	svc, repo, events := newService(t)
	ctx := context.Background()

	grp := testutil.CreateGroup(t, repo, "Main building", "u1")
	regular := testutil.CreateSchedule(t, repo, grp.ID, "Regular", "u1", true)
	exams := testutil.CreateSchedule(t, repo, grp.ID, "Exams", "u1", false)
	other := testutil.CreateGroup(t, repo, "Annex", "u1")
	foreign := testutil.CreateSchedule(t, repo, other.ID, "Annex regular", "u1", true)

	t.Run("schedule of another group", func(t *testing.T) {
		_, err := svc.SetActiveSchedule(ctx, foreign.ID, grp.ID)
		assert.Equal(t, schedule.ErrScheduleNotFound, err)
	})

	t.Run("unknown group", func(t *testing.T) {
		_, err := svc.SetActiveSchedule(ctx, regular.ID, "ghost")
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("switch", func(t *testing.T) {
		events.Reset()
		active, err := svc.SetActiveSchedule(ctx, exams.ID, grp.ID)
		require.NoError(t, err)
		assert.Equal(t, exams.ID, active.ID)
		assert.True(t, active.IsActive)

		got, err := svc.GetActiveSchedule(ctx, grp.ID)
		require.NoError(t, err)
		assert.Equal(t, exams.ID, got.ID)

		// the other group keeps its own active schedule
		got, err = svc.GetActiveSchedule(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, foreign.ID, got.ID)

		// only the two flipped schedules are announced
		assert.Equal(t, []string{"schedules UPDATE", "schedules UPDATE"}, events.Kinds())
	})

	t.Run("already active", func(t *testing.T) {
		events.Reset()
		_, err := svc.SetActiveSchedule(ctx, exams.ID, grp.ID)
		require.NoError(t, err)
		assert.Empty(t, events.Kinds())
	})
}

func TestService_ManageBell(t *testing.T) {
	svc, repo, events := newService(t)
	ctx := context.Background()

	grp := testutil.CreateGroup(t, repo, "Main building", "u1")
	sched := testutil.CreateSchedule(t, repo, grp.ID, "Regular", "u1", true)

	_, _, err := svc.ManageBell(ctx, schedule.BellForm{ScheduleID: "ghost", Time: "08:00", Label: "First", DaysOfWeek: []int{1}}, "u1")
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "schedule_id", verr.Fields[0].Field)

	_, _, err = svc.ManageBell(ctx, schedule.BellForm{ScheduleID: sched.ID, Time: "lol", Label: "First", DaysOfWeek: []int{1}}, "u1")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "time", verr.Fields[0].Field)

	bell, created, err := svc.ManageBell(ctx, schedule.BellForm{ScheduleID: sched.ID, Time: "8:00", Label: "First", DaysOfWeek: []int{5, 1, 1}}, "u1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "08:00:00", bell.Time)
	assert.Equal(t, schedule.Weekdays{1, 5}, bell.DaysOfWeek)
	assert.Equal(t, "u1", bell.UserID)

	updated, created, err := svc.ManageBell(ctx, schedule.BellForm{ScheduleID: sched.ID, Time: "08:15", Label: "First period", DaysOfWeek: []int{1}}, "u2", bell.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, bell.ID, updated.ID)
	assert.Equal(t, "08:15:00", updated.Time)
	assert.Equal(t, "First period", updated.Label)
	assert.Equal(t, "u1", updated.UserID, "the creator is kept")

	updated, _, err = svc.ManageBell(ctx, schedule.BellForm{ScheduleID: sched.ID, Time: "08:30:59", Label: "First period", DaysOfWeek: []int{1}}, "u2", bell.ID)
	require.NoError(t, err)
	assert.Equal(t, "08:30:59", updated.Time, "seconds are stored as sent")

	_, _, err = svc.ManageBell(ctx, schedule.BellForm{ScheduleID: sched.ID, Time: "08:15", Label: "x", DaysOfWeek: []int{1}}, "u1", "ghost")
	assert.Equal(t, schedule.ErrBellNotFound, err)

	bells, err := svc.ListBells(ctx, sched.ID)
	require.NoError(t, err)
	assert.Len(t, bells, 1)

	require.NoError(t, svc.DeleteBell(ctx, bell.ID))
	assert.Equal(t, schedule.ErrBellNotFound, svc.DeleteBell(ctx, bell.ID))

	_, err = svc.ListBells(ctx, "ghost")
	assert.True(t, core.IsNotFound(err))

	assert.Equal(t, []string{"bells INSERT", "bells UPDATE", "bells UPDATE", "bells DELETE"}, events.Kinds())
}

func TestService_DeleteGroup(t *testing.T) {
	svc, repo, events := newService(t)
	ctx := context.Background()

	grp := testutil.CreateGroup(t, repo, "Main building", "u1")
	sched := testutil.CreateSchedule(t, repo, grp.ID, "Regular", "u1", true)
	bell := testutil.CreateBell(t, repo, sched.ID, "08:00:00", "First", 1)

	assert.True(t, core.IsNotFound(svc.DeleteGroup(ctx, "ghost")))
	require.NoError(t, svc.DeleteGroup(ctx, grp.ID))

	_, err := svc.GetSchedule(ctx, sched.ID)
	assert.True(t, core.IsNotFound(err), "schedules go with their group")
	_, err = repo.GetBell(ctx, bell.ID)
	assert.True(t, core.IsNotFound(err), "bells go with their schedule")

	assert.Equal(t, []string{"schedules DELETE", "schedule_groups DELETE"}, events.Kinds())
}

func TestService_Dashboard(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	grp := testutil.CreateGroup(t, repo, "Main building", "u1")
	active := testutil.CreateSchedule(t, repo, grp.ID, "Regular", "u1", true)
	inactive := testutil.CreateSchedule(t, repo, grp.ID, "Exams", "u1", false)
	testutil.CreateBell(t, repo, active.ID, "08:00:00", "First", 1, 2)
	testutil.CreateBell(t, repo, active.ID, "12:30:00", "Lunch", 1)
	testutil.CreateBell(t, repo, active.ID, "09:00:00", "Tuesday only", 2)
	testutil.CreateBell(t, repo, inactive.ID, "10:00:00", "Exam", 1)

	_, err := svc.TodaysBells(ctx, 7)
	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)

	monday := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	dash, err := svc.Dashboard(ctx, monday)
	require.NoError(t, err)
	require.Len(t, dash.Bells, 2)
	assert.Equal(t, "First", dash.Bells[0].BellLabel)
	assert.Equal(t, "Regular", dash.Bells[0].ScheduleName)
	require.NotNil(t, dash.NextBell)
	assert.Equal(t, "Lunch", dash.NextBell.BellLabel)
	assert.Equal(t, "03:30:00", dash.Countdown)

	sunday := monday.AddDate(0, 0, -1)
	dash, err = svc.Dashboard(ctx, sunday)
	require.NoError(t, err)
	assert.Empty(t, dash.Bells)
	assert.Nil(t, dash.NextBell)
}
