package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lop69/BELL-SYSTEM-V2/core/audit"
	"github.com/lop69/BELL-SYSTEM-V2/core/schedule"
)

var nowFunc = time.Now // mockable

type scheduleApi struct {
	svc      schedule.Service
	audit    audit.Service
	validate *validator.Validate
}

func registerScheduleAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := scheduleApi{svc: deps.ScheduleSvc, audit: deps.AuditSvc, validate: deps.Validate}
	staff := staffMiddleware(deps.UserSvc)

	gg := g.Group("/schedule-groups", jwt)
	gg.GET("", api.listGroups)
	gg.POST("", api.createGroup, staff)
	gg.DELETE("/:id", api.deleteGroup, staff)
	gg.POST("/:id/schedules", api.createSchedule, staff)
	gg.POST("/:id/schedules/:scheduleID/activate", api.activateSchedule, staff)

	g.GET("/schedules/:id/bells", api.listBells, jwt)

	bg := g.Group("/bells", jwt, staff)
	bg.POST("", api.createBell)
	bg.PUT("/:id", api.updateBell)
	bg.DELETE("/:id", api.deleteBell)

	g.GET("/dashboard", api.dashboard, jwt)
}

func (api *scheduleApi) listGroups(ctx echo.Context) error {
	groups, err := api.svc.ListGroups(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing schedule groups")
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *scheduleApi) createGroup(ctx echo.Context) error {
	var data schedule.NewGroup
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	uid := contextUserID(ctx)
	grp, err := api.svc.AddGroup(ctx.Request().Context(), data, uid)
	if err != nil {
		return errors.Wrap(err, "adding schedule group")
	}
	api.audit.Log(uid, audit.ActionCreateScheduleGroup, map[string]interface{}{"group_id": grp.ID, "name": grp.Name})
	return ctx.JSON(http.StatusCreated, grp)
}

func (api *scheduleApi) deleteGroup(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := api.svc.DeleteGroup(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting schedule group")
	}
	api.audit.Log(contextUserID(ctx), audit.ActionDeleteScheduleGroup, map[string]interface{}{"group_id": id})
	return ctx.NoContent(http.StatusNoContent)
}

func (api *scheduleApi) createSchedule(ctx echo.Context) error {
	var data schedule.NewSchedule
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	uid := contextUserID(ctx)
	sched, err := api.svc.AddSchedule(ctx.Request().Context(), ctx.Param("id"), data, uid)
	if err != nil {
		return errors.Wrap(err, "adding schedule")
	}
	api.audit.Log(uid, audit.ActionCreateSchedule, map[string]interface{}{
		"schedule_id": sched.ID,
		"group_id":    sched.ScheduleGroupID,
		"name":        sched.Name,
	})
	return ctx.JSON(http.StatusCreated, sched)
}

func (api *scheduleApi) activateSchedule(ctx echo.Context) error {
	groupID, scheduleID := ctx.Param("id"), ctx.Param("scheduleID")
	sched, err := api.svc.SetActiveSchedule(ctx.Request().Context(), scheduleID, groupID)
	if err != nil {
		return errors.Wrap(err, "setting active schedule")
	}
	api.audit.Log(contextUserID(ctx), audit.ActionSetActiveSchedule, map[string]interface{}{
		"schedule_id": scheduleID,
		"group_id":    groupID,
	})
	return ctx.JSON(http.StatusOK, sched)
}

func (api *scheduleApi) listBells(ctx echo.Context) error {
	bells, err := api.svc.ListBells(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing bells")
	}
	return ctx.JSON(http.StatusOK, bells)
}

func (api *scheduleApi) createBell(ctx echo.Context) error {
	return api.manageBell(ctx, "")
}

func (api *scheduleApi) updateBell(ctx echo.Context) error {
	return api.manageBell(ctx, ctx.Param("id"))
}

func (api *scheduleApi) manageBell(ctx echo.Context, bellID string) error {
	var data schedule.BellForm
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	uid := contextUserID(ctx)
	bell, created, err := api.svc.ManageBell(ctx.Request().Context(), data, uid, bellID)
	if err != nil {
		return errors.Wrap(err, "managing bell")
	}

	action, code := audit.ActionUpdateBell, http.StatusOK
	if created {
		action, code = audit.ActionCreateBell, http.StatusCreated
	}
	api.audit.Log(uid, action, map[string]interface{}{
		"bell_id":     bell.ID,
		"schedule_id": bell.ScheduleID,
		"time":        bell.Time,
		"label":       bell.Label,
	})
	return ctx.JSON(code, bell)
}

func (api *scheduleApi) deleteBell(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := api.svc.DeleteBell(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting bell")
	}
	api.audit.Log(contextUserID(ctx), audit.ActionDeleteBell, map[string]interface{}{"bell_id": id})
	return ctx.NoContent(http.StatusNoContent)
}

func (api *scheduleApi) dashboard(ctx echo.Context) error {
	dash, err := api.svc.Dashboard(ctx.Request().Context(), nowFunc())
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}
