package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lop69/BELL-SYSTEM-V2/core/audit"
)

const defaultAuditLimit = 50

type auditApi struct {
	svc audit.Service
}

func registerAuditAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := auditApi{svc: deps.AuditSvc}
	g.GET("/audit-log", api.list, jwt, adminMiddleware(deps.UserSvc))
}

func (api *auditApi) list(ctx echo.Context) error {
	entries, err := api.svc.Recent(ctx.Request().Context(), queryInt(ctx, "limit", defaultAuditLimit))
	if err != nil {
		return errors.Wrap(err, "listing audit log")
	}
	return ctx.JSON(http.StatusOK, entries)
}
