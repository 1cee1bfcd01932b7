package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"drive_collector/config"
	"drive_collector/database"
	"drive_collector/logger"
	"drive_collector/models"
	"drive_collector/scanner"
	"drive_collector/uploader"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newUploadCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Upload the stored backlog in one cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			coord, err := uploader.New(st, opts.cfg.Upload)
			if err != nil {
				return err
			}
			sess, err := coord.Drain(cmd.Context())
			return reportUpload(cmd, sess, err)
		},
	}
}

// reportUpload prints the outcome of a drain cycle. An empty backlog is not an error.
func reportUpload(cmd *cobra.Command, sess uploader.Session, err error) error {
	out := cmd.OutOrStdout()
	switch {
	case errors.Is(err, uploader.ErrNoData):
		fmt.Fprintln(out, "Nothing to upload")
		return nil
	case err != nil && sess.SessionID != 0:
		fmt.Fprintf(out, "Uploaded as session %d, but the local backlog could not be cleared\n", sess.SessionID)
		return err
	case err != nil:
		if uploader.IsTransient(err) {
			fmt.Fprintln(out, "Upload failed; samples are kept for the next upload")
		}
		return err
	}
	fmt.Fprintf(out, "Uploaded %d samples, session id %d\n", sess.Records, sess.SessionID)
	if sess.Dropped > 0 {
		fmt.Fprintf(out, "Dropped %d invalid samples\n", sess.Dropped)
	}
	return nil
}

func newConnectCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Test database connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Println("Testing database connection...")

			db, err := database.Connect(opts.cfg)
			if err != nil {
				return fmt.Errorf("connection failed: %w", err)
			}
			defer database.Close(db)

			logger.Printf("Successfully connected to %s database", opts.cfg.Database.Driver)
			info, _ := json.MarshalIndent(database.GetDatabaseInfo(db, opts.cfg), "", "  ")
			logger.Printf("Connection info: %s", info)
			return nil
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the sample table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Println("Running database migrations...")

			db, err := database.Connect(opts.cfg)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer database.Close(db)

			if err := database.NewMigrationRunner(db, opts.cfg).RunMigrations(); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			return nil
		},
	}
}

func newMigrateStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate:status",
		Short: "Show migration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Connect(opts.cfg)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer database.Close(db)

			steps, err := database.NewMigrationRunner(db, opts.cfg).GetMigrationStatus()
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-20s %-30s %s\n", "Version", "Name", "Status")
			fmt.Fprintln(out, strings.Repeat("-", 60))
			for _, s := range steps {
				status := "Pending"
				if s.Applied {
					status = "Applied"
				}
				fmt.Fprintf(out, "%-20s %-30s %s\n", s.Version, s.Name, status)
			}
			return nil
		},
	}
}

func newDBInfoCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "db:info",
		Short: "Show database information and backlog size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, st, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			info := database.GetDatabaseInfo(db, opts.cfg)

			fmt.Fprintln(out, "Database Information:")
			fmt.Fprintln(out, strings.Repeat("=", 50))
			fmt.Fprintf(out, "Database Type:     %v\n", info["driver"])
			fmt.Fprintf(out, "Connection Status: %s\n", connectionStatusText(info["connected"]))
			switch opts.cfg.Database.Driver {
			case "mysql", "postgres":
				fmt.Fprintf(out, "Host:              %v\n", info["host"])
				fmt.Fprintf(out, "Port:              %v\n", info["port"])
				fmt.Fprintf(out, "Database:          %v\n", info["database"])
			case "sqlite":
				fmt.Fprintf(out, "File Path:         %v\n", info["path"])
			}

			count, err := st.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "\nBacklog:")
			fmt.Fprintf(out, "  Pending Samples: %d\n", count)
			if count > 0 {
				printBacklogDetails(cmd, db)
			}
			fmt.Fprintln(out, strings.Repeat("=", 50))
			return nil
		},
	}
}

func printBacklogDetails(cmd *cobra.Command, db *gorm.DB) {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	var span struct {
		First float64
		Last  float64
	}
	err := db.WithContext(ctx).Model(&models.SampleRecord{}).
		Select("MIN(timestamp) AS first, MAX(timestamp) AS last").Scan(&span).Error
	if err != nil {
		logger.Warnf("db:info: reading time range: %v", err)
	} else {
		first := models.SampleRecord{Timestamp: span.First}.Time()
		last := models.SampleRecord{Timestamp: span.Last}.Time()
		fmt.Fprintf(out, "  Time Range:      %s to %s\n",
			first.Format("2006-01-02 15:04:05"), last.Format("2006-01-02 15:04:05"))
	}

	var perLabel []struct {
		Label models.Label
		N     int64
	}
	err = db.WithContext(ctx).Model(&models.SampleRecord{}).
		Select("label, COUNT(*) AS n").Group("label").Order("label").Scan(&perLabel).Error
	if err != nil {
		logger.Warnf("db:info: counting labels: %v", err)
		return
	}
	for _, row := range perLabel {
		fmt.Fprintf(out, "  %-16s %d\n", row.Label.DisplayName()+":", row.N)
	}
}

func connectionStatusText(connected interface{}) string {
	if conn, ok := connected.(bool); ok && conn {
		return "Connected"
	}
	return "Disconnected"
}

func newScanCommand(opts *rootOptions) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "scan <directory>",
		Short: "Import CSV backlogs into the store (non-recursive)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			sc := scanner.NewCSVScanner(st)
			sc.SetWorkerCount(workers)
			results, err := sc.ImportDirectory(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}

			var failed int
			for _, r := range results {
				if r.Error != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed to import", failed, len(results))
			}
			logger.Println("Directory scan completed successfully")
			return nil
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel file workers (default: CPU count, max 4)")
	return cmd
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write the stored backlog to a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			n, err := scanner.Export(ctx, st, args[0])
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d samples to %s\n", n, args[0])
			return nil
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "config:init [path]",
		Short:       "Write the default configuration file",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s; set upload.token or DRIVE_UPLOAD_TOKEN before uploading\n", path)
			return nil
		},
	}
}
