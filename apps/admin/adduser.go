package main

import (
	"context"
	"time"

	"github.com/lop69/BELL-SYSTEM-V2/core"
	"github.com/lop69/BELL-SYSTEM-V2/core/user"
)

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)
	now := time.Now().UTC()

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	created := false
	if err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		created = true
		usr = user.User{Email: email, CreatedAt: now}
	}
	if isAdmin {
		usr.Role = user.RoleAdmin
	}
	usr.ApplyDefaults()
	usr.IsActive = true
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	if created {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	}
	return err
}
