package dig_container

import (
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/lop69/BELL-SYSTEM-V2/apps/api/echo"
	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/audit"
	"github.com/lop69/BELL-SYSTEM-V2/core/device"
	"github.com/lop69/BELL-SYSTEM-V2/core/notification"
	"github.com/lop69/BELL-SYSTEM-V2/core/schedule"
	"github.com/lop69/BELL-SYSTEM-V2/core/summary"
	"github.com/lop69/BELL-SYSTEM-V2/core/testbell"
	"github.com/lop69/BELL-SYSTEM-V2/core/user"
	"github.com/lop69/BELL-SYSTEM-V2/services/devicebus"
	emailsvc "github.com/lop69/BELL-SYSTEM-V2/services/email"
	logsvc "github.com/lop69/BELL-SYSTEM-V2/services/logger"
	"github.com/lop69/BELL-SYSTEM-V2/services/realtime"
	"github.com/lop69/BELL-SYSTEM-V2/storage/database"
	inmemdb "github.com/lop69/BELL-SYSTEM-V2/storage/database/inmem"
	sqlxrepos "github.com/lop69/BELL-SYSTEM-V2/storage/database/sqlx"
)

// MemoryEngine keeps everything in process; nothing survives a restart.
const MemoryEngine = "memory"

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Storage is the database handle and the repositories built on it.
	// DB is nil with the in-memory engine.
	Storage struct {
		dig.Out
		DB        core.DB
		Closer    func() error `name:"dbCloser"`
		Users     user.Repository
		Schedules schedule.Repository
		Devices   device.Repository
		TestBell  testbell.Repository
		Audit     audit.Repository
	}

	// Notifiers push to the bell hardware.
	Notifiers struct {
		dig.Out
		Devices  device.Notifier
		TestBell testbell.Notifier
		Closer   func() `name:"busCloser"`
	}

	// Events is what services publish changes to, and the optional cross-instance relay.
	Events struct {
		dig.Out
		Publisher core.EventPublisher
		Relay     *realtime.RedisRelay // nil without Redis
	}

	ServerParams struct {
		dig.In
		Conf          *core.Config
		Shutdown      chan struct{}
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
)

func newLogger(conf *core.Config) (core.Logger, error) {
	z, err := logsvc.NewZap(conf)
	if err != nil {
		return nil, errors.Wrap(err, "building zap logger")
	}
	logger := logsvc.NewRollbarLogger(logsvc.NewZapLogger(z.Named("api")), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger, nil
}

func newDBLogger(conf *core.Config) (core.Logger, error) {
	z, err := logsvc.NewZap(conf)
	if err != nil {
		return nil, errors.Wrap(err, "building zap logger")
	}
	logger := logsvc.NewRollbarLogger(logsvc.NewZapLogger(z.Named("db")), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger, nil
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) Storage {
	if conf.Database.Engine == MemoryEngine {
		loggerParam.Logger.Warn("using the in-memory database: data is lost on restart")
		mem := inmemdb.Open()
		return Storage{
			Closer:    func() error { return nil },
			Users:     inmemdb.NewUserRepository(mem),
			Schedules: inmemdb.NewScheduleRepository(mem),
			Devices:   inmemdb.NewDeviceRepository(mem),
			TestBell:  inmemdb.NewTestBellRepository(mem),
			Audit:     inmemdb.NewAuditRepository(mem),
		}
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return Storage{
		DB:        db,
		Closer:    db.Close,
		Users:     sqlxrepos.NewUserRepository(db),
		Schedules: sqlxrepos.NewScheduleRepository(db),
		Devices:   sqlxrepos.NewDeviceRepository(db),
		TestBell:  sqlxrepos.NewTestBellRepository(db),
		Audit:     sqlxrepos.NewAuditRepository(db),
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newNotifiers(conf *core.Config, logger core.Logger) Notifiers {
	if conf.MQTT.Broker == "" {
		return Notifiers{Devices: devicebus.Nop, TestBell: devicebus.Nop, Closer: func() {}}
	}
	bus, err := devicebus.Connect(conf, logger)
	if err != nil {
		// devices still poll bell-sync, push is a bonus
		logger.Error(fmt.Sprintf("connecting to MQTT broker: %v", err), err)
		return Notifiers{Devices: devicebus.Nop, TestBell: devicebus.Nop, Closer: func() {}}
	}
	return Notifiers{Devices: bus, TestBell: bus, Closer: bus.Close}
}

func newEvents(conf *core.Config, broker *realtime.Broker, logger core.Logger) Events {
	if conf.Redis.Addr == "" {
		return Events{Publisher: broker}
	}
	relay := realtime.NewRedisRelay(conf, realtime.NewRedisClient(conf), broker, logger)
	return Events{Publisher: relay, Relay: relay}
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func newShutdownChan() chan struct{} {
	return make(chan struct{}, 1)
}

func newScheduleFinder(svc schedule.Service) device.ScheduleFinder { return svc }

func newUserLister(svc user.Service) summary.UserLister { return svc }

func newBellLister(svc schedule.Service) summary.BellLister { return svc }

func newServer(p ServerParams) echoapi.Server {
	return echoapi.NewServer(p.Conf, p.Shutdown, &echoapi.Deps{
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		UserSvc:       p.UserSvc,
		ScheduleSvc:   p.ScheduleSvc,
		DeviceSvc:     p.DeviceSvc,
		TestBellSvc:   p.TestBellSvc,
		AuditSvc:      p.AuditSvc,
		Notifications: p.Notifications,
		Broker:        p.Broker,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newEmailService))
	must(c.Provide(newNotifiers))
	must(c.Provide(realtime.NewBroker))
	must(c.Provide(newEvents))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newShutdownChan))

	must(c.Provide(user.NewService))
	must(c.Provide(schedule.NewService))
	must(c.Provide(newScheduleFinder))
	must(c.Provide(device.NewService))
	must(c.Provide(device.NewMonitor))
	must(c.Provide(testbell.NewService))
	must(c.Provide(audit.NewService))
	must(c.Provide(notification.NewCenter))
	must(c.Provide(newUserLister))
	must(c.Provide(newBellLister))
	must(c.Provide(summary.NewMailer))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
