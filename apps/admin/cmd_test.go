package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/device"
	"github.com/lop69/BELL-SYSTEM-V2/core/schedule"
	"github.com/lop69/BELL-SYSTEM-V2/core/summary"
	"github.com/lop69/BELL-SYSTEM-V2/core/user"
	"github.com/lop69/BELL-SYSTEM-V2/services/devicebus"
	emailsvc "github.com/lop69/BELL-SYSTEM-V2/services/email"
	logsvc "github.com/lop69/BELL-SYSTEM-V2/services/logger"
	inmemdb "github.com/lop69/BELL-SYSTEM-V2/storage/database/inmem"
	testutil "github.com/lop69/BELL-SYSTEM-V2/tests"
)

var (
	usrRepo   user.Repository
	schedRepo schedule.Repository
	devRepo   device.Repository
	mailSvc   *emailsvc.ConsoleServiceMock
)

func setup(t *testing.T) *commandLine {
	conf := core.NewTestConfig()
	logger := logsvc.NewNopLogger()
	validate, _ := testutil.NewValidator()
	core.ParseEmailTemplates(logger)

	// set up DB & repos
	mem := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(mem)
	schedRepo = inmemdb.NewScheduleRepository(mem)
	devRepo = inmemdb.NewDeviceRepository(mem)
	mailSvc = emailsvc.NewConsoleServiceMock(conf, logger)

	schedSvc := schedule.NewService(conf, nil, schedRepo, core.NopPublisher)
	usrSvc := user.NewService(conf, nil, usrRepo, mailSvc)

	// start CLI
	return &commandLine{
		validate: validate,
		usrRepo:  usrRepo,
		devSvc:   device.NewService(conf, devRepo, schedSvc, core.NopPublisher, devicebus.Nop, logger),
		mailer:   summary.NewMailer(conf, usrSvc, schedSvc, mailSvc, logger),
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case err == nil:
		if tt.wantErr != nil || tt.wantErrStr != "" {
			t.Errorf("cli.run() error = nil, wantErr %v %s", tt.wantErr, tt.wantErrStr)
		}
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	default:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "holidays", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
}

type pwdExtra struct {
	pwd string
}

func mockPassword(extra interface{}) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		if extra, ok := extra.(pwdExtra); ok {
			return []byte(extra.pwd), nil
		}
		return nil, nil
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	existing := testutil.CreateUser(t, usrRepo, "hod@test.cd", "old-pwd", user.RoleHOD, false)

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"adduser", "-email", "new@test.cd"}, wantErr: errHelp},
		{name: "create", args: []string{"adduser", "-email", "New@Test.cd"}, extra: pwdExtra{pwd: "n3w-Pwd"}},
		{name: "create admin", args: []string{"adduser", "-email", "boss@test.cd", "-admin"}, extra: pwdExtra{pwd: "b0ss-Pwd"}},
		{name: "update existing", args: []string{"adduser", "-email", existing.Email}, extra: pwdExtra{pwd: "n3w-Pwd"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		mockPassword(tt.extra)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	wants := []struct {
		email, pwd, role string
	}{
		{email: "new@test.cd", pwd: "n3w-Pwd", role: user.DefaultRole},
		{email: "boss@test.cd", pwd: "b0ss-Pwd", role: user.RoleAdmin},
		{email: existing.Email, pwd: "n3w-Pwd", role: user.RoleHOD},
	}
	for _, want := range wants {
		usr, err := usrRepo.GetUser(ctx, user.GetFilter{Email: want.email})
		if err != nil {
			t.Fatalf("GetUser(%s) failed, %v", want.email, err)
		}
		if !usr.IsActive {
			t.Errorf("%s: user is not active", want.email)
		}
		if usr.Role != want.role {
			t.Errorf("%s: role = %s, want %s", want.email, usr.Role, want.role)
		}
		if err := usr.CheckPassword(want.pwd); err != nil {
			t.Errorf("%s: password not set", want.email)
		}
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "awe@test.cd", "mdr", user.RoleStudent, true)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol"}, extra: pwdExtra{pwd: "lol"}, wantErrStr: "user not found"},
		{name: "reset", args: []string{"resetpassword", "-email", usr.Email}, extra: pwdExtra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		mockPassword(tt.extra)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			tt.check(t, err)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				if err != nil {
					t.Fatalf("GetUser() failed, %v", err)
				}
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			}
		})
	}
}

func Test_commandLine_addDevice(t *testing.T) {
	cli := setup(t)

	admin := testutil.CreateUser(t, usrRepo, "admin@test.cd", "pwd", user.RoleAdmin, true)
	grp := testutil.CreateGroup(t, schedRepo, "Main building", admin.ID)
	testutil.CreateDevice(t, devRepo, "esp-taken", "Taken", "")

	tests := []cliTest{
		{name: "no args", args: []string{"adddevice"}, wantErr: errHelp},
		{name: "no name", args: []string{"adddevice", "-id", "esp-1"}, wantErr: errHelp},
		{name: "no id", args: []string{"adddevice", "-name", "Hall"}, wantErr: errHelp},
		{name: "duplicate id", args: []string{"adddevice", "-id", "esp-taken", "-name", "Hall"}, wantErrStr: device.ErrDeviceExists.Error()},
		{name: "unknown group", args: []string{"adddevice", "-id", "esp-2", "-name", "Hall", "-group", "lol"}, wantErrStr: "schedule group not found"},
		{name: "without group", args: []string{"adddevice", "-id", "esp-1", "-name", "Hall"}},
		{name: "with group", args: []string{"adddevice", "-id", "esp-3", "-name", "Lab", "-group", grp.ID}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	dev, err := devRepo.GetDevice(context.Background(), "esp-3")
	if err != nil {
		t.Fatalf("GetDevice() failed, %v", err)
	}
	if dev.DeviceName != "Lab" || dev.ScheduleGroupID.String != grp.ID {
		t.Errorf("GetDevice() = %+v, want Lab in group %s", dev, grp.ID)
	}
}

func Test_commandLine_sendSummary(t *testing.T) {
	cli := setup(t)

	nowFunc = func() time.Time { return time.Date(2026, time.March, 2, 6, 0, 0, 0, time.UTC) } // a Monday
	defer func() { nowFunc = time.Now }()

	if err := cli.run([]string{"admin", "sendsummary"}); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}
	if sent := mailSvc.Sent(); len(sent) != 0 {
		t.Errorf("sent %d messages, want none", len(sent))
	}

	ctx := context.Background()
	usr := testutil.CreateUser(t, usrRepo, "prof@test.cd", "pwd", user.RoleHOD, true)
	usr.EmailSummaryEnabled = null.BoolFrom(true)
	if _, err := usrRepo.UpdateUser(ctx, usr); err != nil {
		t.Fatalf("UpdateUser() failed, %v", err)
	}
	testutil.CreateUser(t, usrRepo, "quiet@test.cd", "pwd", user.RoleStudent, true)
	grp := testutil.CreateGroup(t, schedRepo, "Main building", usr.ID)
	sched := testutil.CreateSchedule(t, schedRepo, grp.ID, "Regular", usr.ID, true)
	testutil.CreateBell(t, schedRepo, sched.ID, "08:00:00", "First period", 1)

	if err := cli.run([]string{"admin", "sendsummary"}); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}
	sent := mailSvc.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	if got := sent[0].To[0].Address; got != usr.Email {
		t.Errorf("sent to %s, want %s", got, usr.Email)
	}
	if !sent[0].HasAttachments() {
		t.Error("summary without the bells csv")
	}
}
