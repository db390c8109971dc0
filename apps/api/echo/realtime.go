package echoapi

import (
	"io"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/net/websocket"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/services/realtime"
)

type realtimeApi struct {
	broker *realtime.Broker
	logger core.Logger
}

// registerRealtimeAPI streams change events over a websocket. Browsers cannot set headers on
// websocket upgrades, hence the token query param.
func registerRealtimeAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := realtimeApi{broker: deps.Broker, logger: deps.Logger}
	g.GET("/realtime", api.stream, jwt)
}

func (api *realtimeApi) stream(ctx echo.Context) error {
	var tables []string
	if param := ctx.QueryParam("tables"); param != "" {
		for _, t := range strings.Split(param, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tables = append(tables, t)
			}
		}
	}
	uid := contextUserID(ctx)

	// origins are already checked by the CORS middleware
	srv := websocket.Server{Handler: func(conn *websocket.Conn) {
		defer conn.Close()

		events, cancel := api.broker.Subscribe(tables...)
		defer cancel()

		// clients never talk back; a read returning means the peer is gone
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			_, _ = io.Copy(io.Discard, conn)
		}()

		for {
			select {
			case <-gone:
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				if err := websocket.JSON.Send(conn, evt); err != nil {
					api.logger.Info("realtime client dropped", map[string]interface{}{"user_id": uid, "reason": err.Error()})
					return
				}
			}
		}
	}}
	srv.ServeHTTP(ctx.Response(), ctx.Request())
	return nil
}
