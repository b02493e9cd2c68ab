package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/datacollector/datacollector/internal/config"
	"github.com/datacollector/datacollector/internal/domain/patient"
	"github.com/datacollector/datacollector/internal/platform/auth"
	"github.com/datacollector/datacollector/internal/platform/db"
	"github.com/datacollector/datacollector/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "data-collector",
		Short: "Parenteral nutrition case-record backend",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// connect opens the configured database without migrating it.
func connect(ctx context.Context, cfg *config.Config) (*db.Store, error) {
	url, err := cfg.ResolveDatabaseURL()
	if err != nil {
		return nil, err
	}
	return db.Open(ctx, url, cfg.DBMaxConns)
}

func newMigrator(store *db.Store) (*db.Migrator, error) {
	files, err := migrations.For(string(store.Dialect))
	if err != nil {
		return nil, fmt.Errorf("load %s migrations: %w", store.Dialect, err)
	}
	return db.NewMigrator(store, files), nil
}

// openStore connects and brings the schema up to date.
func openStore(ctx context.Context, cfg *config.Config) (*db.Store, int, error) {
	store, err := connect(ctx, cfg)
	if err != nil {
		return nil, 0, err
	}
	migrator, err := newMigrator(store)
	if err != nil {
		store.Close()
		return nil, 0, err
	}
	count, err := migrator.Up(ctx)
	if err != nil {
		store.Close()
		return nil, 0, fmt.Errorf("migration failed: %w", err)
	}
	return store, count, nil
}

// repositoryFor picks the patient repository matching the store's backend.
func repositoryFor(store *db.Store) patient.Repository {
	if store.Dialect == db.DialectPostgres {
		return patient.NewRepoPG(store.Pool)
	}
	return patient.NewRepoSQLite(store.SQL)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetInt("to")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			store, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			migrator, err := newMigrator(store)
			if err != nil {
				return err
			}

			var count int
			if target > 0 {
				count, err = migrator.UpTo(ctx, target)
			} else {
				count, err = migrator.Up(ctx)
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().Int("to", 0, "Stop after this version (0 applies everything)")
	cmd.AddCommand(upCmd)

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			store, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			migrator, err := newMigrator(store)
			if err != nil {
				return err
			}
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status (%s)\n", store.Dialect)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write patient records to an XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			var year *int64
			if cmd.Flags().Changed("year") {
				y, _ := cmd.Flags().GetInt64("year")
				year = &y
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			store, _, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			svc := patient.NewService(repositoryFor(store))
			if err := svc.Export(ctx, f, year); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", out, err)
			}

			fmt.Printf("Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().String("out", "patients.xlsx", "Output file")
	cmd.Flags().Int64("year", 0, "Only export this prescription year")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the UI shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.AuthSecret == "" {
				return fmt.Errorf("AUTH_SECRET is not set")
			}

			token, err := auth.IssueToken([]byte(cfg.AuthSecret), subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("subject", "ui-shell", "Token subject")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime (0 for no expiry)")
	return cmd
}
