package main

import (
	"errors"
	"fmt"
	"os"

	"drive_collector/config"
	"drive_collector/database"
	"drive_collector/logger"
	"drive_collector/store"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// rootOptions holds global flags and the state shared by subcommands
type rootOptions struct {
	ConfigPath string
	Verbose    bool

	cfg *config.Config
}

// skipSetup marks commands that run without configuration or logging
const skipSetup = "skip-setup"

func main() {
	err := newRootCommand().Execute()
	// PersistentPostRunE is skipped when a command fails
	_ = logger.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "drive_collector",
		Short: "Driving event sensor collector",
		Long: `Samples motion sensors at a fixed rate, tags every sample with the
driving event the operator signals, buffers samples in a local database and
uploads them to the training service when a drive stops.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipSetup] == "true" {
				return nil
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if opts.Verbose {
				cfg.Logging.LogLevel = "debug"
			}
			if err := logger.Init(cfg); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			opts.cfg = cfg
			logger.LogCommand(cmd.CommandPath(), os.Args)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg == nil {
				return nil
			}
			return logger.Close()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default config.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newDriveCommand(opts))
	cmd.AddCommand(newUploadCommand(opts))
	cmd.AddCommand(newConnectCommand(opts))
	cmd.AddCommand(newDBInfoCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newMigrateStatusCommand(opts))
	cmd.AddCommand(newScanCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newGenerateCommand())

	return cmd
}

// openStore connects to the configured database and opens the sample store.
// The returned cleanup closes the connection.
func openStore(opts *rootOptions) (*gorm.DB, *store.Store, func(), error) {
	if opts.cfg == nil {
		return nil, nil, nil, errors.New("configuration not loaded")
	}
	db, err := database.Connect(opts.cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanup := func() {
		if err := database.Close(db); err != nil {
			logger.Warnf("closing database: %v", err)
		}
	}

	st, err := store.Open(db, opts.cfg)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return db, st, cleanup, nil
}
