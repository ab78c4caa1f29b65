/*
main.go - Application entry point

PURPOSE:
  Command line for the Parsonage property engine. Opens the store, loads
  settings, wires the coordinator and runs one of the subcommands.

COMMANDS:
  serve            HTTP API plus the hourly sweep scheduler
  sweep            Run one sweep and print the report
  late-fee <id>    Assess the late fee on one payment now
  status <id>      Print the derived status of any record
  seed             Replace the store's contents with the sample property

GLOBAL FLAGS:
  --db          SQLite database path (default: parsonage.db)
                Use ":memory:" for an in-memory database
  --settings    JSON settings file (default: parsonage.json, optional)
  --log-level   debug, info, warn, error (default: info)
  --log-format  json or console (default: json)
  --date        Pretend today is YYYY-MM-DD (testing and back-fills)

ENVIRONMENT:
  A .env file in the working directory is loaded first if present.
  PARSONAGE_* variables override the settings file (see factory/settings.go).

GRACEFUL SHUTDOWN (serve):
  On SIGINT/SIGTERM:
  1. Stop the scheduler, waiting for an in-flight sweep
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

SEE ALSO:
  - api/server.go: Router configuration
  - sweep/coordinator.go: Run Coordinator
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/parsonage-engine/factory"
	"github.com/warp/parsonage-engine/logger"
	"github.com/warp/parsonage-engine/notify"
	"github.com/warp/parsonage-engine/property"
	"github.com/warp/parsonage-engine/store/sqlite"
	"github.com/warp/parsonage-engine/sweep"
)

// options are the global flags.
type options struct {
	dbPath       string
	settingsPath string
	logLevel     string
	logFormat    string
	date         string
}

// app is everything a subcommand needs.
type app struct {
	store    *sqlite.Store
	coord    *sweep.Coordinator
	settings *factory.Settings
	log      *zap.Logger
}

func (a *app) Close() {
	a.store.Close()
	a.log.Sync()
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "parsonage",
		Short:         "Parsonage Living Community property engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.dbPath, "db", "parsonage.db", "SQLite database path")
	flags.StringVar(&opts.settingsPath, "settings", "parsonage.json", "JSON settings file")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "json", "Log format (json, console)")
	flags.StringVar(&opts.date, "date", "", "Pretend today is YYYY-MM-DD")

	root.AddCommand(
		serveCmd(opts),
		sweepCmd(opts),
		lateFeeCmd(opts),
		statusCmd(opts),
		seedCmd(opts),
	)
	return root
}

// open builds the app from the global flags.
func open(opts *options) (*app, error) {
	log, err := logger.New(opts.logLevel, opts.logFormat, "parsonage")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	settings, err := factory.LoadSettings(opts.settingsPath, os.LookupEnv)
	if err != nil {
		return nil, err
	}

	clock, err := newClock(opts.date, settings.Config)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.New(opts.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	coord, err := sweep.New(store, store, newDispatcher(settings, log), clock, settings.Config, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	if coord.Templates, err = settings.Templates(); err != nil {
		store.Close()
		return nil, err
	}

	return &app{store: store, coord: coord, settings: settings, log: log}, nil
}

func newClock(date string, cfg property.Config) (property.Clock, error) {
	if date != "" {
		d, err := property.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("invalid --date: %w", err)
		}
		return property.FixedClock{Date: d}, nil
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return property.SystemClock{Location: loc}, nil
}

// newDispatcher sends mail when a relay is configured and logs otherwise.
func newDispatcher(settings *factory.Settings, log *zap.Logger) notify.Dispatcher {
	if m := settings.Mail; m != nil {
		log.Info("mail relay configured", zap.String("host", m.Host), zap.Int("port", m.Port))
		return notify.NewSMTPDispatcher(m.Host, m.Port, m.Username, m.Password, m.From)
	}
	log.Warn("no mail relay configured, notifications are logged only")
	return notify.LogDispatcher{Logger: log.Named("outbox")}
}
