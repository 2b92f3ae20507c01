package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"saferental-service/internal/audit"
	"saferental-service/internal/client"
	"saferental-service/internal/config"
	"saferental-service/internal/repository/scylla"
	"saferental-service/internal/util"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "saferentalctl",
		Short: "SafeRental operations tool",
	}

	rootCmd.AddCommand(
		migrateCmd(),
		reapCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// migrateCmd creates the keyspace and tables, plus the audit table when
// ClickHouse is configured.
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the keyspace, tables and audit schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if err := scylla.Migrate(cfg); err != nil {
				return fmt.Errorf("scylla migration failed: %w", err)
			}
			util.Info("Scylla schema migrated",
				util.String("keyspace", cfg.Scylla.Keyspace))

			if cfg.Clickhouse.URL != "" {
				ch, err := client.NewClickHouseClient(cfg, util.Get())
				if err != nil {
					return fmt.Errorf("clickhouse connection failed: %w", err)
				}
				defer ch.Close()

				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				if err := audit.NewRecorder(ch).EnsureSchema(ctx); err != nil {
					return fmt.Errorf("audit schema migration failed: %w", err)
				}
				util.Info("Audit schema migrated")
			}

			return nil
		},
	}
}

// reapCmd deletes expired unconsumed OTP records once and exits.
func reapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Delete expired unconsumed OTP records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			sc, err := scylla.NewScyllaClient(cfg, util.Get())
			if err != nil {
				return fmt.Errorf("scylla connection failed: %w", err)
			}
			defer sc.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			repo := scylla.NewOtpRepository(sc, util.Get())
			deleted, err := repo.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("reap failed: %w", err)
			}

			fmt.Printf("deleted %d expired otp records\n", deleted)
			return nil
		},
	}
}
