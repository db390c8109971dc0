package echoapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/audit"
	"github.com/lop69/BELL-SYSTEM-V2/core/device"
)

type deviceApi struct {
	svc      device.Service
	audit    audit.Service
	validate *validator.Validate
}

func registerDeviceAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := deviceApi{svc: deps.DeviceSvc, audit: deps.AuditSvc, validate: deps.Validate}

	dg := g.Group("/devices", jwt)
	dg.GET("", api.list, staffMiddleware(deps.UserSvc))
	dg.POST("", api.register, adminMiddleware(deps.UserSvc))
	dg.PUT("/:id", api.assign, staffMiddleware(deps.UserSvc))
	dg.DELETE("/:id", api.destroy, adminMiddleware(deps.UserSvc))

	// polled by the bell controllers
	g.POST("/bell-sync", api.sync)
}

func (api *deviceApi) list(ctx echo.Context) error {
	var ord Ordering
	ord.Bind(ctx)

	devices, err := api.svc.List(ctx.Request().Context(), ord.Orderings)
	if err != nil {
		return errors.Wrap(err, "listing devices")
	}
	return ctx.JSON(http.StatusOK, devices)
}

func (api *deviceApi) register(ctx echo.Context) error {
	var data device.NewDevice
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	dev, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering device")
	}
	api.audit.Log(contextUserID(ctx), audit.ActionRegisterDevice, map[string]interface{}{
		"device_id":   dev.ID,
		"device_name": dev.DeviceName,
	})
	return ctx.JSON(http.StatusCreated, dev)
}

func (api *deviceApi) assign(ctx echo.Context) error {
	var data device.Assignment
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	dev, err := api.svc.Assign(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "assigning device")
	}
	api.audit.Log(contextUserID(ctx), audit.ActionAssignDevice, map[string]interface{}{
		"device_id":         dev.ID,
		"schedule_group_id": dev.ScheduleGroupID.String,
		"schedule_id":       dev.ScheduleID.String,
	})
	return ctx.JSON(http.StatusOK, dev)
}

func (api *deviceApi) destroy(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting device")
	}
	api.audit.Log(contextUserID(ctx), audit.ActionDeleteDevice, map[string]interface{}{"device_id": id})
	return ctx.NoContent(http.StatusNoContent)
}

type syncRequest struct {
	DeviceID interface{} `json:"device_id"`
}

func (api *deviceApi) sync(ctx echo.Context) error {
	// devices don't always send a Content-Type, so the body is decoded as JSON regardless
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		return errInvalidBody
	}
	var data syncRequest
	if err := json.Unmarshal(body, &data); err != nil {
		return errInvalidBody
	}
	id, ok := data.DeviceID.(string)
	if !ok {
		return core.NewValidationError(device.ErrInvalidDeviceID)
	}

	resp, err := api.svc.Sync(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == device.ErrInvalidDeviceID {
			return core.NewValidationError(err)
		}
		return errors.Wrap(err, "syncing device")
	}
	return ctx.JSON(http.StatusOK, resp)
}
