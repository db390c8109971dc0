package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lop69/BELL-SYSTEM-V2/core/notification"
)

type notificationApi struct {
	center *notification.Center
}

func registerNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := notificationApi{center: deps.Notifications}

	ng := g.Group("/notifications", jwt)
	ng.GET("", api.list)
	ng.POST("/read", api.markRead)
}

type notificationsResponse struct {
	Notifications []notification.UserNotification `json:"notifications"`
	UnreadCount   int                              `json:"unread_count"`
}

func (api *notificationApi) list(ctx echo.Context) error {
	uid := contextUserID(ctx)
	return ctx.JSON(http.StatusOK, notificationsResponse{
		Notifications: api.center.List(uid),
		UnreadCount:   api.center.UnreadCount(uid),
	})
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	api.center.MarkAllRead(contextUserID(ctx))
	return ctx.NoContent(http.StatusNoContent)
}
