// Command shiftboard runs the team scheduling and todo service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"shiftboard/internal/app"
	"shiftboard/internal/config"
	"shiftboard/migrations"
)

var (
	configPath string
	listenAddr string
)

func main() {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "shiftboard",
		Short: "Team work schedule and kanban todo service",
		Long: `shiftboard serves the team scheduling and todo API over a hosted
Postgres database, degrading to a local fallback store whenever the
database is unreachable.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}

			application, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return application.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "HTTP bind address (overrides config)")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the hosted database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			databaseURL, err := resolveDatabaseURL()
			if err != nil {
				return err
			}
			if err := migrations.Up(databaseURL); err != nil {
				return err
			}
			fmt.Println("Migrations applied.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			databaseURL, err := resolveDatabaseURL()
			if err != nil {
				return err
			}
			if err := migrations.Down(databaseURL); err != nil {
				return err
			}
			fmt.Println("Rolled back one migration.")
			return nil
		},
	})

	return cmd
}

func resolveDatabaseURL() (string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	if cfg.DatabaseURL == "" {
		return "", fmt.Errorf("no database URL configured; set DATABASE_URL or database_url in the config file")
	}
	return cfg.DatabaseURL, nil
}
