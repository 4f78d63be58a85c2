package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MegaGrindStone/site-assistant/internal/handlers"
	"github.com/MegaGrindStone/site-assistant/internal/session"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Answer questions about the website currently open in the browser",
		Long: `site-assistant serves the HTTP API behind the browser extension. Each thread is seeded with
the content of one website and answers questions about it with a configured language model.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadEnv,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfgPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "",
		"path to the config file (default is <user config dir>/site-assistant/config.yaml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfgPath)
		},
	}

	rootCmd.AddCommand(serveCmd, newDemoCmd(&cfgPath))

	return rootCmd
}

func loadEnv(_ *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error loading .env file: %w", err)
	}
	return nil
}

// app holds the wired session manager and everything that must be released on exit.
type app struct {
	cfg     config
	logger  *slog.Logger
	manager *session.Manager
	closers []func() error
}

func newApp(ctx context.Context, cfg config) (*app, error) {
	level, err := cfg.logLevel()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	a := &app{
		cfg:    cfg,
		logger: logger,
	}

	llm, err := cfg.LLM.llm(logger)
	if err != nil {
		return nil, fmt.Errorf("error creating llm: %w", err)
	}

	prompt, err := cfg.promptBuilder()
	if err != nil {
		return nil, fmt.Errorf("error parsing system prompt: %w", err)
	}

	store, err := cfg.Store.store(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating store: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	fetcher, closeFetcher, err := cfg.Fetcher.fetcher(ctx, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("error creating fetcher: %w", err)
	}
	a.closers = append(a.closers, closeFetcher)

	a.manager = session.NewManager(fetcher, store, llm, logger, session.WithPromptBuilder(prompt))

	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("Failed to release resource", slog.String(errLoggerKey, err.Error()))
		}
	}
}

const errLoggerKey = "err"

func runServe(ctx context.Context, cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	m := handlers.NewMain(a.manager, a.logger, handlers.WithAllowedOrigins(cfg.CORS.AllowedOrigins))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Server starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Start shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Graceful shutdown failed", slog.String(errLoggerKey, err.Error()))
			if err := srv.Close(); err != nil {
				a.logger.Error("Forcing server close", slog.String(errLoggerKey, err.Error()))
			}
		}
		if err := m.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Failed to wait for streams", slog.String(errLoggerKey, err.Error()))
		}
		return nil
	})

	return g.Wait()
}
