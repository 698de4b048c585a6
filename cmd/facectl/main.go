// Command facectl is the operator tool for the recognition gallery.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/studentid/internal/config"
	"github.com/saturnino-fabrica-de-software/studentid/internal/database"
	"github.com/saturnino-fabrica-de-software/studentid/internal/face"
	"github.com/saturnino-fabrica-de-software/studentid/internal/repository"
)

const Version = "0.1.0"

// env holds what every subcommand needs once PersistentPreRunE has run
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	pool     *pgxpool.Pool
	stack    *face.Stack
	students *repository.StudentRepository
}

var (
	app     env
	dbURL   string
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "facectl",
	Short:         "Operate the student face gallery",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		if dbURL != "" {
			if err := os.Setenv("DATABASE_URL", dbURL); err != nil {
				return err
			}
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		pool, err := database.NewPool(cmd.Context(), database.DefaultPoolConfig(cfg.DatabaseURL))
		if err != nil {
			return err
		}

		stack, err := face.NewStack(cfg, pool, logger)
		if err != nil {
			pool.Close()
			return err
		}

		app = env{
			cfg:      cfg,
			logger:   logger,
			pool:     pool,
			stack:    stack,
			students: repository.NewStudentRepository(pool),
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app.stack != nil {
			_ = app.stack.Close()
		}
		if app.pool != nil {
			app.pool.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: $DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging to stderr")

	rootCmd.AddCommand(warmCmd, matchCmd, enrollCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
