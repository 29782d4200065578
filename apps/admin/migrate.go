package main

import (
	"context"

	"github.com/pkg/errors"
)

var errNoMigrations = errors.New("migrations require the postgres database engine")

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	if cli.db == nil {
		return errNoMigrations
	}
	return migrateFunc(ctx, cli.db, args[0], args[1:]...)
}
