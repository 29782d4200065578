package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	ucli "github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/trezcool/ripoti/core/user"
	"github.com/trezcool/ripoti/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	migrateFunc      = database.Migrate  // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sqlx.DB // nil with the inmem engine
	usrRepo user.Repository
	out     io.Writer
	logger  zerolog.Logger
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...]                          - run a goose migration command (up, down, status, ...)")
	_, _ = fmt.Fprintln(cli.out, "  adduser --username USERNAME --email EMAIL [--admin] - create or update a user")
	_, _ = fmt.Fprintln(cli.out, "  resetpassword --username USERNAME|EMAIL             - reset user's password")
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword() (string, error) {
	_, _ = fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) app() *ucli.Command {
	var (
		uname, email, name string
		isAdmin            bool
	)
	return &ucli.Command{
		Name:      "admin",
		Usage:     "Ripoti administration commands",
		Writer:    cli.out,
		ErrWriter: cli.out,
		Action: func(context.Context, *ucli.Command) error {
			cli.printUsage()
			return errHelp
		},
		Commands: []*ucli.Command{
			{
				Name:      "migrate",
				Usage:     "run a database migration command",
				UsageText: "admin migrate COMMAND [ARGS...]",
				Action: func(ctx context.Context, c *ucli.Command) error {
					if c.Args().Len() == 0 {
						_ = ucli.ShowSubcommandHelp(c)
						return errHelp
					}
					return cli.migrate(ctx, c.Args().Slice())
				},
			},
			{
				Name:  "adduser",
				Usage: "create a user, or update the user matching the username or email",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "username", Usage: "the user's username", Destination: &uname},
					&ucli.StringFlag{Name: "email", Usage: "the user's email", Destination: &email},
					&ucli.StringFlag{Name: "name", Usage: "the user's full name", Destination: &name},
					&ucli.BoolFlag{Name: "admin", Usage: "grant every role", Destination: &isAdmin},
				},
				Action: func(ctx context.Context, c *ucli.Command) error {
					if uname == "" || email == "" {
						_ = ucli.ShowSubcommandHelp(c)
						return errHelp
					}
					pwd, err := cli.promptPassword()
					if err != nil {
						return err
					}
					if pwd == "" {
						return errHelp
					}
					return cli.addUser(ctx, name, uname, email, pwd, isAdmin)
				},
			},
			{
				Name:  "resetpassword",
				Usage: "reset user's password",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "username", Usage: "the user's username or email. The password will be prompted next.", Destination: &uname},
				},
				Action: func(ctx context.Context, c *ucli.Command) error {
					if uname == "" {
						_ = ucli.ShowSubcommandHelp(c)
						return errHelp
					}
					pwd, err := cli.promptPassword()
					if err != nil {
						return err
					}
					if pwd == "" {
						return errHelp
					}
					return cli.resetPassword(ctx, uname, pwd)
				},
			},
		},
	}
}
