package main

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/storage/database"
	inmemdb "github.com/trezcool/ripoti/storage/database/inmem"
	"github.com/trezcool/ripoti/storage/database/sqlxrepos"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Str("app", "admin").Logger()
	conf := core.NewConfig()

	cli := commandLine{out: os.Stdout, logger: logger}
	if conf.Database.Engine == core.DBEngineInMem {
		db := inmemdb.Open()
		cli.usrRepo = inmemdb.NewUserRepository(db)
	} else {
		db, err := database.Open(conf)
		if err != nil {
			logger.Fatal().Err(err).Msg("opening database")
		}
		defer func() { _ = db.Close() }()
		cli.db = db
		cli.usrRepo = sqlxrepos.NewUserRepository(db)
	}

	if err := cli.app().Run(context.Background(), os.Args); err != nil {
		if !errors.Is(err, errHelp) {
			logger.Error().Err(err).Msg("command failed")
		}
		os.Exit(1)
	}
}
