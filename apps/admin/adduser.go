package main

import (
	"context"
	"errors"
	"time"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, pwd string, isAdmin bool) error {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	name = core.CleanString(name)
	now := time.Now().UTC()

	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, uname)
	if errors.Is(err, user.ErrNotFound) {
		usr, err = cli.usrRepo.GetUserByUsernameOrEmail(ctx, email)
	}
	exists := err == nil
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		return err
	}
	if !exists {
		usr = user.User{Username: uname, Email: email, CreatedAt: now, IsActive: true}
	}
	if name != "" {
		usr.Name = name
	}
	if usr.Name == "" {
		usr.Name = uname
	}
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = now

	if !exists {
		usr, err = cli.usrRepo.CreateUser(ctx, usr)
		if err != nil {
			return err
		}
		cli.logger.Info().Str("username", usr.Username).Str("id", usr.ID).Msg("user created")
		return nil
	}
	active := true
	if _, err = cli.usrRepo.UpdateUser(ctx, usr, &active); err != nil {
		return err
	}
	cli.logger.Info().Str("username", usr.Username).Str("id", usr.ID).Msg("user updated")
	return nil
}
