package echoapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/audit"
	"github.com/lop69/BELL-SYSTEM-V2/core/schedule"
	"github.com/lop69/BELL-SYSTEM-V2/core/user"
	"github.com/lop69/BELL-SYSTEM-V2/tests"
)

func Test_scheduleApi_groups(t *testing.T) {
	ta := newTestApp(t)
	student := testutil.CreateUser(t, ta.usrRepo, "student@test.io", "", user.RoleStudent, true)
	hod := testutil.CreateUser(t, ta.usrRepo, "hod@test.io", "", user.RoleHOD, true)
	hodToken := ta.token(t, hod)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/schedule-groups", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Empty list", path: "/v1/schedule-groups", token: ta.token(t, student), wantData: marchallList(t)},
		{
			name: "Staff required", method: http.MethodPost, path: "/v1/schedule-groups", token: ta.token(t, student),
			body: marchallObj(t, schedule.NewGroup{Name: "Main building"}), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Name too short", method: http.MethodPost, path: "/v1/schedule-groups", token: hodToken,
			body: marchallObj(t, schedule.NewGroup{Name: " a "}), wantCode: http.StatusBadRequest,
		},
		{
			name: "Blank name", method: http.MethodPost, path: "/v1/schedule-groups", token: hodToken,
			body: marchallObj(t, schedule.NewGroup{Name: "   "}), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"name": "this field is required"}),
		},
		{
			name: "Created", method: http.MethodPost, path: "/v1/schedule-groups", token: hodToken,
			body: marchallObj(t, schedule.NewGroup{Name: " Main building "}), wantCode: http.StatusCreated,
		},
		{
			name: "Schedule of unknown group", method: http.MethodPost, path: "/v1/schedule-groups/nope/schedules", token: hodToken,
			body: marchallObj(t, schedule.NewSchedule{Name: "Regular"}), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "schedule group not found"}),
		},
		{name: "Delete unknown group", method: http.MethodDelete, path: "/v1/schedule-groups/nope", token: hodToken, wantCode: http.StatusNotFound},
	}
	ta.run(t, tests)

	groups, err := ta.schedRepo.QueryGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	grp := groups[0]
	assert.Equal(t, "Main building", grp.Name)
	assert.Equal(t, hod.ID, grp.UserID)

	createSchedule := func(name string) schedule.Schedule {
		req, rec := newAuthRequest(http.MethodPost, "/v1/schedule-groups/"+grp.ID+"/schedules", hodToken, marchallObj(t, schedule.NewSchedule{Name: name}))
		ta.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
		var sched schedule.Schedule
		unmarchall(t, rec.Body.Bytes(), &sched)
		assert.False(t, sched.IsActive)
		assert.Equal(t, grp.ID, sched.ScheduleGroupID)
		return sched
	}
	regular, exams := createSchedule("Regular"), createSchedule("Exams")

	activate := func(schedID string) *httpTest {
		return &httpTest{method: http.MethodPost, path: "/v1/schedule-groups/" + grp.ID + "/schedules/" + schedID + "/activate", token: hodToken}
	}
	for _, schedID := range []string{regular.ID, exams.ID} {
		tt := activate(schedID)
		req, rec := newAuthRequest(tt.method, tt.path, tt.token)
		ta.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var got schedule.Schedule
		unmarchall(t, rec.Body.Bytes(), &got)
		assert.Equal(t, schedID, got.ID)
		assert.True(t, got.IsActive)
	}

	got, err := ta.schedRepo.GetGroup(context.Background(), grp.ID)
	require.NoError(t, err)
	active := 0
	for _, s := range got.Schedules {
		if s.IsActive {
			active++
			assert.Equal(t, exams.ID, s.ID)
		}
	}
	assert.Equal(t, 1, active, "a single schedule is active per group")

	t.Run("Activate a schedule of another group", func(t *testing.T) {
		other := testutil.CreateGroup(t, ta.schedRepo, "Annex", hod.ID)
		foreign := testutil.CreateSchedule(t, ta.schedRepo, other.ID, "Annex regular", hod.ID, false)
		tt := activate(foreign.ID)
		req, rec := newAuthRequest(tt.method, tt.path, tt.token)
		ta.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Delete group", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/schedule-groups/"+grp.ID, hodToken)
		ta.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		_, err := ta.schedRepo.GetSchedule(context.Background(), regular.ID)
		assert.True(t, core.IsNotFound(err), "schedules are deleted with their group")
	})

	assert.Equal(t, []string{
		audit.ActionDeleteScheduleGroup,
		audit.ActionSetActiveSchedule,
		audit.ActionSetActiveSchedule,
		audit.ActionCreateSchedule,
		audit.ActionCreateSchedule,
		audit.ActionCreateScheduleGroup,
	}, ta.auditActions(t))
}

func Test_scheduleApi_bells(t *testing.T) {
	ta := newTestApp(t)
	student := testutil.CreateUser(t, ta.usrRepo, "student@test.io", "", user.RoleStudent, true)
	admin := testutil.CreateUser(t, ta.usrRepo, "admin@test.io", "", user.RoleAdmin, true)
	adminToken := ta.token(t, admin)

	grp := testutil.CreateGroup(t, ta.schedRepo, "Main", admin.ID)
	sched := testutil.CreateSchedule(t, ta.schedRepo, grp.ID, "Regular", admin.ID, true)

	form := func(schedID, tm, label string, days ...int) []byte {
		return marchallObj(t, schedule.BellForm{ScheduleID: schedID, Time: tm, Label: label, DaysOfWeek: days})
	}

	tests := []httpTest{
		{
			name: "Staff required", method: http.MethodPost, path: "/v1/bells", token: ta.token(t, student),
			body: form(sched.ID, "08:00", "Assembly", 1), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Bad time", method: http.MethodPost, path: "/v1/bells", token: adminToken,
			body: form(sched.ID, "25:00", "Assembly", 1), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"time": "time must be a valid time (HH:MM or HH:MM:SS)"}),
		},
		{
			name: "Bad day", method: http.MethodPost, path: "/v1/bells", token: adminToken,
			body: form(sched.ID, "08:00", "Assembly", 1, 7), wantCode: http.StatusBadRequest,
		},
		{
			name: "No day", method: http.MethodPost, path: "/v1/bells", token: adminToken,
			body: form(sched.ID, "08:00", "Assembly"), wantCode: http.StatusBadRequest,
		},
		{
			name: "Unknown schedule", method: http.MethodPost, path: "/v1/bells", token: adminToken,
			body: form("nope", "08:00", "Assembly", 1), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"schedule_id": "schedule not found"}),
		},
		{
			name: "Update unknown bell", method: http.MethodPut, path: "/v1/bells/nope", token: adminToken,
			body: form(sched.ID, "08:00", "Assembly", 1), wantCode: http.StatusNotFound,
		},
		{name: "Delete unknown bell", method: http.MethodDelete, path: "/v1/bells/nope", token: adminToken, wantCode: http.StatusNotFound},
		{name: "Bells of unknown schedule", path: "/v1/schedules/nope/bells", token: adminToken, wantCode: http.StatusNotFound},
	}
	ta.run(t, tests)

	// create
	req, rec := newAuthRequest(http.MethodPost, "/v1/bells", adminToken, form(sched.ID, "8:05", " Assembly ", 5, 1, 3, 1))
	ta.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	var bell schedule.Bell
	unmarchall(t, rec.Body.Bytes(), &bell)
	assert.Equal(t, "08:05:00", bell.Time)
	assert.Equal(t, "Assembly", bell.Label)
	assert.Equal(t, schedule.Weekdays{1, 3, 5}, bell.DaysOfWeek)
	assert.Equal(t, admin.ID, bell.UserID)

	// update, sending the time back the way GET returns it
	req, rec = newAuthRequest(http.MethodPut, "/v1/bells/"+bell.ID, adminToken, form(sched.ID, "09:30:00", "Break", 0, 6))
	ta.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated schedule.Bell
	unmarchall(t, rec.Body.Bytes(), &updated)
	assert.Equal(t, bell.ID, updated.ID)
	assert.Equal(t, "09:30:00", updated.Time)
	assert.Equal(t, schedule.Weekdays{0, 6}, updated.DaysOfWeek)

	// list
	early := testutil.CreateBell(t, ta.schedRepo, sched.ID, "07:45:00", "Gate opens", 1, 2, 3, 4, 5)
	ta.run(t, []httpTest{{name: "List", path: "/v1/schedules/" + sched.ID + "/bells", token: ta.token(t, student), wantData: marchallList(t, early, updated)}})

	// delete
	req, rec = newAuthRequest(http.MethodDelete, "/v1/bells/"+bell.ID, adminToken)
	ta.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, []string{audit.ActionDeleteBell, audit.ActionUpdateBell, audit.ActionCreateBell}, ta.auditActions(t))

	t.Run("Notifications", func(t *testing.T) {
		token := ta.token(t, student)
		var resp struct {
			Notifications []struct {
				Title string `json:"title"`
				Read  bool   `json:"read"`
			} `json:"notifications"`
			UnreadCount int `json:"unread_count"`
		}
		assert.Eventually(t, func() bool {
			req, rec := newAuthRequest(http.MethodGet, "/v1/notifications", token)
			ta.ServeHTTP(rec, req)
			unmarchall(t, rec.Body.Bytes(), &resp)
			return resp.UnreadCount == 3
		}, time.Second, 10*time.Millisecond)
		require.Len(t, resp.Notifications, 3)
		assert.Equal(t, "bell Deleted", resp.Notifications[0].Title)

		req, rec := newAuthRequest(http.MethodPost, "/v1/notifications/read", token)
		ta.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, "/v1/notifications", token)
		ta.ServeHTTP(rec, req)
		unmarchall(t, rec.Body.Bytes(), &resp)
		assert.Equal(t, 0, resp.UnreadCount)
		assert.True(t, resp.Notifications[0].Read)
	})
}

func Test_scheduleApi_dashboard(t *testing.T) {
	ta := newTestApp(t)
	student := testutil.CreateUser(t, ta.usrRepo, "student@test.io", "", user.RoleStudent, true)
	grp := testutil.CreateGroup(t, ta.schedRepo, "Main", student.ID)
	active := testutil.CreateSchedule(t, ta.schedRepo, grp.ID, "Regular", student.ID, true)
	idle := testutil.CreateSchedule(t, ta.schedRepo, grp.ID, "Exams", student.ID, false)

	everyDay := []int{0, 1, 2, 3, 4, 5, 6}
	first := testutil.CreateBell(t, ta.schedRepo, active.ID, "00:00:00", "Midnight", everyDay...)
	testutil.CreateBell(t, ta.schedRepo, idle.ID, "12:00:00", "Ignored", everyDay...)

	req, rec := newAuthRequest(http.MethodGet, "/v1/dashboard", ta.token(t, student))
	ta.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var dash schedule.Dashboard
	unmarchall(t, rec.Body.Bytes(), &dash)
	require.Len(t, dash.Bells, 1, "only bells of active schedules ring")
	assert.Equal(t, first.ID, dash.Bells[0].BellID)
	assert.Equal(t, "Regular", dash.Bells[0].ScheduleName)
	assert.Equal(t, int(dash.Now.Weekday()), dash.Day)
	// midnight is always behind us
	assert.Nil(t, dash.NextBell)
	assert.Equal(t, "00:00:00", dash.Countdown)
}

func Test_scheduleApi_revokedRole(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()
	demoted := testutil.CreateUser(t, ta.usrRepo, "demoted@test.io", "", user.RoleHOD, true)
	disabled := testutil.CreateUser(t, ta.usrRepo, "disabled@test.io", "", user.RoleAdmin, true)
	deleted := testutil.CreateUser(t, ta.usrRepo, "deleted@test.io", "", user.RoleAdmin, true)
	demotedToken, disabledToken, deletedToken := ta.token(t, demoted), ta.token(t, disabled), ta.token(t, deleted)

	demoted.Role = user.RoleStudent
	_, err := ta.usrRepo.UpdateUser(ctx, demoted)
	require.NoError(t, err)
	disabled.IsActive = false
	_, err = ta.usrRepo.UpdateUser(ctx, disabled)
	require.NoError(t, err)
	require.NoError(t, ta.usrRepo.DeleteUsersByID(ctx, []string{deleted.ID}))

	newGroup := marchallObj(t, schedule.NewGroup{Name: "Main building"})
	forbidden := marchallObj(t, errForbidden)
	tests := []httpTest{
		{
			name: "Demoted HOD", method: http.MethodPost, path: "/v1/schedule-groups", token: demotedToken,
			body: newGroup, wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "Deactivated Admin", method: http.MethodPost, path: "/v1/schedule-groups", token: disabledToken,
			body: newGroup, wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{name: "Deactivated Admin reads the audit log", path: "/v1/audit-log", token: disabledToken, wantCode: http.StatusForbidden, wantData: forbidden},
		{
			name: "Deleted Admin", method: http.MethodPost, path: "/v1/schedule-groups", token: deletedToken,
			body: newGroup, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "Unauthorized"}),
		},
	}
	ta.run(t, tests)

	groups, err := ta.schedRepo.QueryGroups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}
