package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/audit"
	"github.com/lop69/BELL-SYSTEM-V2/core/device"
	"github.com/lop69/BELL-SYSTEM-V2/core/notification"
	"github.com/lop69/BELL-SYSTEM-V2/core/schedule"
	"github.com/lop69/BELL-SYSTEM-V2/core/testbell"
	"github.com/lop69/BELL-SYSTEM-V2/core/user"
	"github.com/lop69/BELL-SYSTEM-V2/services/realtime"
)

// corsHeaders are the headers the mobile app and the firmware send.
var corsHeaders = []string{"authorization", "x-client-info", "apikey", "content-type"}

type (
	Deps struct {
		Logger        core.Logger
		Validate      *validator.Validate
		Translator    ut.Translator
		UserSvc       user.Service
		ScheduleSvc   schedule.Service
		DeviceSvc     device.Service
		TestBellSvc   testbell.Service
		AuditSvc      audit.Service
		Notifications *notification.Center
		Broker        *realtime.Broker
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
		Authenticator() *Authenticator
	}

	server struct {
		conf           *core.Config
		address        string
		signalShutdown func()
		deps           *Deps
		auth           *Authenticator
		app            *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(conf *core.Config, shutdown chan<- struct{}, deps *Deps) Server {
	s := &server{
		conf:    conf,
		address: conf.Server.Addr,
		signalShutdown: func() {
			if shutdown != nil {
				select {
				case shutdown <- struct{}{}:
				default:
				}
			}
		},
		deps: deps,
		auth: NewAuthenticator(conf),
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.conf.Server.AllowOrigins,
		AllowHeaders: corsHeaders,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = s.conf.Debug

	s.app.GET("/", s.home)
	s.app.GET("/healthz", healthz)

	v1 := s.app.Group("/v1")
	jwt := s.auth.Middleware()

	registerUserAPI(v1, jwt, s.auth, s.deps)
	registerScheduleAPI(v1, jwt, s.deps)
	registerDeviceAPI(v1, jwt, s.deps)
	registerTestBellAPI(v1, s.auth.StrictMiddleware(), s.deps)
	registerNotificationAPI(v1, jwt, s.deps)
	registerAuditAPI(v1, jwt, s.deps)
	registerRealtimeAPI(v1, s.auth.QueryMiddleware(), s.deps)
}

func (s *server) Start() error {
	return s.app.Start(s.address)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Authenticator() *Authenticator { return s.auth }

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.conf.AppName+" API!")
}

func healthz(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
