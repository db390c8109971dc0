package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/device"
	"github.com/lop69/BELL-SYSTEM-V2/core/schedule"
	"github.com/lop69/BELL-SYSTEM-V2/core/summary"
	"github.com/lop69/BELL-SYSTEM-V2/core/user"
	"github.com/lop69/BELL-SYSTEM-V2/services/devicebus"
	emailsvc "github.com/lop69/BELL-SYSTEM-V2/services/email"
	logsvc "github.com/lop69/BELL-SYSTEM-V2/services/logger"
	"github.com/lop69/BELL-SYSTEM-V2/storage/database"
	sqlxrepos "github.com/lop69/BELL-SYSTEM-V2/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	z, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatal(err)
	}
	logger := logsvc.NewZapLogger(z.Named("admin"))
	defer func() { _ = z.Sync() }()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(logger, err)
	defer db.Close()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	core.ParseEmailTemplates(logger)

	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	usrRepo := sqlxrepos.NewUserRepository(db)
	schedSvc := schedule.NewService(conf, db, sqlxrepos.NewScheduleRepository(db), core.NopPublisher)
	usrSvc := user.NewService(conf, db, usrRepo, mailSvc)

	// start CLI
	cli := commandLine{
		db:       db.DB,
		validate: validate,
		usrRepo:  usrRepo,
		devSvc:   device.NewService(conf, sqlxrepos.NewDeviceRepository(db), schedSvc, core.NopPublisher, devicebus.Nop, logger),
		mailer:   summary.NewMailer(conf, usrSvc, schedSvc, mailSvc, logger),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
