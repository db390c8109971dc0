package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/dig"

	dig_container "github.com/lop69/BELL-SYSTEM-V2/apps/api/di/dig"
	echoapi "github.com/lop69/BELL-SYSTEM-V2/apps/api/echo"
	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/device"
	"github.com/lop69/BELL-SYSTEM-V2/core/notification"
	"github.com/lop69/BELL-SYSTEM-V2/core/summary"
	"github.com/lop69/BELL-SYSTEM-V2/core/user"
	"github.com/lop69/BELL-SYSTEM-V2/services/realtime"
)

type app struct {
	dig.In

	Conf        *core.Config
	Logger      core.Logger
	DBCloser    func() error `name:"dbCloser"`
	BusCloser   func()       `name:"busCloser"`
	Relay       *realtime.RedisRelay
	Broker      *realtime.Broker
	Center      *notification.Center
	Monitor     *device.Monitor
	Mailer      *summary.Mailer
	Server      echoapi.Server
	ShutdownReq chan struct{}
}

func main() {
	c := dig_container.New()
	must(c.Invoke(run))
}

func run(a app) {
	// =========================================================================
	// Initialize App

	a.Logger.Info(fmt.Sprintf("Application initializing : version %q", a.Conf.Build))

	core.ParseEmailTemplates(a.Logger)
	user.LoadCommonPasswords(a.Logger)

	defer func() {
		if err := a.DBCloser(); err != nil {
			a.Logger.Error(fmt.Sprintf("closing database: %v", err), err)
		}
	}()
	defer a.BusCloser()
	defer a.Logger.Info("Application stopped")

	ctx, cancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	defer workers.Wait()
	defer cancel()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(a.Conf.Build)
	expvar.NewString("env").Set(a.Conf.Env)

	go func() {
		if err := http.ListenAndServe(a.Conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			a.Logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start background workers

	spawn := func(name string, fn func()) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			fn()
			a.Logger.Info(name + " stopped")
		}()
	}

	events, unsubscribe := a.Broker.Subscribe(notification.Tables...)
	defer unsubscribe()
	spawn("notification center", func() { a.Center.Run(ctx, events) })
	spawn("device monitor", func() { a.Monitor.Run(ctx) })
	spawn("daily summary", func() {
		if err := a.Mailer.Run(ctx); err != nil {
			a.Logger.Error(fmt.Sprintf("daily summary: %v", err), err)
		}
	})
	if a.Relay != nil {
		defer func() { _ = a.Relay.Close() }()
		spawn("redis relay", func() {
			if err := a.Relay.Run(ctx); err != nil {
				a.Logger.Error(fmt.Sprintf("redis relay: %v", err), err)
			}
		})
	}

	// =========================================================================
	// Start API Service

	serverErrors := make(chan error, 1)
	go func() {
		a.Logger.Info(fmt.Sprintf("API listening on %s", a.Conf.Server.Addr))
		serverErrors <- a.Server.Start()
	}()

	// =========================================================================
	// Shutdown

	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			a.Logger.Error(fmt.Sprintf("server error: %v", err), err)
		}
		return

	case sig := <-osSignals:
		a.Logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

	case <-a.ShutdownReq:
		a.Logger.Info("integrity issue: Start shutdown...")
	}

	// give outstanding requests a deadline for completion
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.Conf.Server.ShutdownTimeout)
	defer cancelShutdown()

	// asking listener to shut down and shed load
	if err := a.Server.Stop(shutdownCtx); err != nil {
		a.Logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
