package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lop69/BELL-SYSTEM-V2/core/audit"
	"github.com/lop69/BELL-SYSTEM-V2/core/testbell"
)

type testBellApi struct {
	svc   testbell.Service
	audit audit.Service
}

// registerTestBellAPI exposes the global test signal: devices poll it, users raise it.
func registerTestBellAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := testBellApi{svc: deps.TestBellSvc, audit: deps.AuditSvc}

	g.GET("/global-test-bell", api.status)
	g.POST("/global-test-bell", api.trigger, jwt)
	g.Match([]string{http.MethodPut, http.MethodPatch, http.MethodDelete}, "/global-test-bell", methodNotAllowed)
}

func (api *testBellApi) status(ctx echo.Context) error {
	status, err := api.svc.Status(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "reading test bell status")
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *testBellApi) trigger(ctx echo.Context) error {
	uid := contextUserID(ctx)
	if err := api.svc.Trigger(ctx.Request().Context(), uid); err != nil {
		if errors.Cause(err) == testbell.ErrUnauthenticated {
			return errUnauthorized
		}
		return errors.Wrap(err, "triggering test bell")
	}
	api.audit.Log(uid, audit.ActionTriggerTestBell, nil)
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Test signal activated"})
}

func methodNotAllowed(echo.Context) error {
	return errMethodNotAllowed
}
