package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/huckl3b3rry/osm/internal/config"
	"github.com/huckl3b3rry/osm/internal/db"
	"github.com/huckl3b3rry/osm/internal/logging"
	"github.com/huckl3b3rry/osm/internal/session"
)

// app carries the state shared by subcommands for one invocation.
type app struct {
	cfgFile string
	v       *viper.Viper

	cfg     *config.Config
	logger  *logging.Logger
	store   *db.Store
	manager *session.Manager
}

// newRootCmd builds the command tree. The caller runs it with a.execute so
// the store and log file are released even when a command fails.
func newRootCmd() (*cobra.Command, *app) {
	a := &app{v: config.New()}

	cmd := &cobra.Command{
		Use:           "osm",
		Short:         "Manage per-project speaker calibration databases",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default ./osm.yaml or ~/.config/osm/osm.yaml)")
	flags.String("data-dir", "", "base directory for project databases")
	flags.String("log-level", "info", "log level: trace, debug, info, warn, error")
	flags.String("log-file", "", "also write logs to this file (rotated)")

	_ = a.v.BindPFlag("data_dir", flags.Lookup("data-dir"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.file", flags.Lookup("log-file"))

	cmd.AddCommand(
		newPathCmd(a),
		newInitCmd(a),
		newStartCmd(a),
		newSessionsCmd(a),
		newCheckCmd(a),
		newAnalyzeCmd(a),
	)
	return cmd, a
}

// execute runs cmd and always tears down. Cobra skips post-run hooks when a
// command returns an error.
func (a *app) execute(cmd *cobra.Command) error {
	err := cmd.Execute()
	if terr := a.teardown(); err == nil {
		err = terr
	}
	return err
}

func (a *app) setup() error {
	if err := config.Read(a.v, a.cfgFile); err != nil {
		return err
	}
	cfg, err := config.FromViper(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Logging())
	if err != nil {
		return err
	}
	a.logger = logger

	a.store = db.New(db.WithLogger(logger.Logger))
	a.manager = session.NewManager(a.store,
		session.WithResolver(cfg.Locator()),
		session.WithLogger(logger.Logger),
	)
	return nil
}

func (a *app) teardown() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
		a.store = nil
	}
	if a.logger != nil {
		if cerr := a.logger.Close(); err == nil {
			err = cerr
		}
		a.logger = nil
	}
	return err
}

// projectArg returns the optional project argument or the default project.
func projectArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return db.DefaultProjectName
}
