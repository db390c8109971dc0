package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/lop69/BELL-SYSTEM-V2/core/device"
	"github.com/lop69/BELL-SYSTEM-V2/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	nowFunc          = time.Now          // mockable

	errHelp = errors.New("help provided")
)

type summarySender interface {
	SendDaily(ctx context.Context, now time.Time) (int, error)
}

type commandLine struct {
	db       *sql.DB
	validate *validator.Validate
	usrRepo  user.Repository
	devSvc   device.Service
	mailer   summarySender
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...) against the database")
	fmt.Println("  adduser -email EMAIL [-admin] - create or update an active user")
	fmt.Println("  resetpassword -email EMAIL - reset user's password")
	fmt.Println("  adddevice -id ID -name NAME [-group GROUP_ID] - register a bell controller")
	fmt.Println("  sendsummary - e-mail today's bells to the subscribed users now")
}

// promptPassword reads a password from the terminal; an empty one prints usage.
func promptPassword(fs *flag.FlagSet) (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Give the user the Admin role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	addDeviceCmd := flag.NewFlagSet("adddevice", flag.ContinueOnError)
	addDeviceID := addDeviceCmd.String("id", "", "The ID flashed on the controller.")
	addDeviceName := addDeviceCmd.String("name", "", "A human readable name.")
	addDeviceGroup := addDeviceCmd.String("group", "", "The schedule group the device follows.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserEmail, pwd, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "adddevice":
		if err := addDeviceCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addDeviceID == "" || *addDeviceName == "" {
			addDeviceCmd.Usage()
			return errHelp
		}
		return cli.addDevice(*addDeviceID, *addDeviceName, *addDeviceGroup)

	case "sendsummary":
		return cli.sendSummary()

	default:
		cli.printUsage()
		return errHelp
	}
}
