package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof" // /debug/pprof
	"os"
	"os/signal"
	"syscall"

	echoapi "github.com/trezcool/ripoti/apps/api/echo"
	"github.com/trezcool/ripoti/assets"
	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/editor"
	"github.com/trezcool/ripoti/core/report"
	"github.com/trezcool/ripoti/core/user"
	aisvc "github.com/trezcool/ripoti/services/ai"
	datasetsvc "github.com/trezcool/ripoti/services/dataset"
	emailsvc "github.com/trezcool/ripoti/services/email"
	logsvc "github.com/trezcool/ripoti/services/logger"
	presencesvc "github.com/trezcool/ripoti/services/presence"
	telemetrysvc "github.com/trezcool/ripoti/services/telemetry"
	"github.com/trezcool/ripoti/storage/database"
	inmemdb "github.com/trezcool/ripoti/storage/database/inmem"
	"github.com/trezcool/ripoti/storage/database/sqlxrepos"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(os.Stdout, conf)
	logger.Enable(!conf.Debug)

	// set up DB & repos
	usrRepo, rptRepo, closeDB, err := setUpRepos(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = closeDB(); err != nil {
			logger.Error("failed to close the database", err)
		}
	}()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate, translator := user.NewValidator()
	report.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, assets.FS, logger)
	user.LoadCommonPasswords(logger)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(usrRepo, mailSvc, conf, logger)
	rptSvc := report.NewService(rptRepo, validate, conf)
	source := datasetsvc.NewSource()
	metrics := telemetrysvc.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hub *presencesvc.Hub
	var events editor.Broadcaster
	if conf.PresenceEnabled {
		hub = presencesvc.NewHub(logger)
		events = hub
		go hub.Run(ctx)
		defer hub.Stop()
	}

	manager := editor.NewManager(editor.ManagerDeps{
		Conf:      conf,
		Logger:    logger,
		Validate:  validate,
		Reports:   rptSvc,
		Users:     usrSvc,
		Mailer:    mailSvc,
		Generator: aisvc.NewGenerator(conf, logger),
		Data:      source,
		Events:    events,
		Recorder:  metrics,
	})

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(conf.Server.Host, shutdown, &echoapi.Deps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		UserSvc:    usrSvc,
		ReportSvc:  rptSvc,
		Editor:     manager,
		Data:       source,
		Mailer:     mailSvc,
		Presence:   hub,
		Metrics:    metrics,
	})

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("API listening on %s", conf.Server.Host))
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-serverErrors:
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		sctx, scancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer scancel()

		if err = server.Stop(sctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}
}

// setUpRepos opens the configured storage engine. Postgres is created & migrated when needed.
func setUpRepos(conf *core.Config) (user.Repository, report.Repository, func() error, error) {
	if conf.Database.Engine == core.DBEngineInMem {
		db := inmemdb.Open()
		return inmemdb.NewUserRepository(db), inmemdb.NewReportRepository(db), func() error { return nil }, nil
	}

	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, nil, nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, nil, nil, err
	}
	if err = database.Migrate(ctx, db, "up"); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	return sqlxrepos.NewUserRepository(db), sqlxrepos.NewReportRepository(db), db.Close, nil
}
