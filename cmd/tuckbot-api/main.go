package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tuckbot-api/internal/config"
	"tuckbot-api/internal/database"
	"tuckbot-api/internal/handlers"
	"tuckbot-api/internal/logging"
	"tuckbot-api/internal/pruner"
	"tuckbot-api/internal/repository"
	"tuckbot-api/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "tuckbot-api",
	Short:        "Private API for mirrored video records",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the videos table and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.Database.Type == config.DatabaseMemory {
			return errors.New("memory database has no schema to migrate")
		}
		db, err := database.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close(db)

		if err := database.Migrate(db); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Migrated %s database\n", cfg.Database.Type)
		return nil
	},
}

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "Print a bcrypt hash of an API token for api.token_hash",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var token string
		if len(args) == 1 {
			token = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading token from stdin: %w", err)
			}
			token = strings.TrimSpace(line)
		}

		hash, err := utils.HashToken(token)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("TUCKBOT_CONFIG"), "path to a TOML config file")
	rootCmd.AddCommand(serveCmd, migrateCmd, hashTokenCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	repo, cleanup, err := newRepository(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize video store", "error", err)
		return err
	}
	defer cleanup()

	gin.SetMode(gin.ReleaseMode)
	videos := handlers.NewVideoHandler(repo, logging.WithComponent(logger, "videos"), time.Now)
	router := handlers.NewRouter(videos, cfg.API, logger)

	server := &http.Server{
		Addr:              ":" + cfg.ListenPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", server.Addr, "database", cfg.Database.Type, "pruner", cfg.Pruner.Type)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error("server error", "error", err)
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func newRepository(cfg *config.Config, logger *slog.Logger) (repository.VideoRepository, func(), error) {
	p, err := pruner.New(cfg.Pruner, logging.WithComponent(logger, "pruner"))
	if err != nil {
		return nil, nil, err
	}
	opts := []repository.Option{
		repository.WithPruner(p),
		repository.WithStaleWindow(repository.StaleWindow{
			MinimumAgeDays: cfg.Stale.MinimumAgeDays,
			RepruneAgeDays: cfg.Stale.RepruneAgeDays,
		}),
	}

	if cfg.Database.Type == config.DatabaseMemory {
		logger.Warn("using in-memory video store; records are lost on restart")
		return repository.NewMemoryVideoRepository(opts...), func() {}, nil
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			database.Close(db)
			return nil, nil, err
		}
	}
	cleanup := func() {
		if err := database.Close(db); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}
	return repository.NewGormVideoRepository(db, opts...), cleanup, nil
}
