package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/audit"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/bounds"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/config"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/delta"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/gateway"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/logging"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/prompt"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/refine"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/server"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/validate"
)

var (
	configPath string
	cfg        config.Config
	logger     *zap.Logger
)

// #region commands

var rootCmd = &cobra.Command{
	Use:   "refiner",
	Short: "Body-shape refinement service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the refinement HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "refiner.yaml", "path to YAML config (missing file uses defaults)")
	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// #endregion commands

// #region serve

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}
	rules, err := cfg.GenderRuleSet()
	if err != nil {
		return err
	}

	store, err := bounds.NewStore(cfg.Storage.BoundsDB)
	if err != nil {
		return fmt.Errorf("open bounds store: %w", err)
	}
	defer store.Close()

	var history *audit.Log
	if cfg.Storage.AuditDB != "" {
		db := store.DB()
		if cfg.Storage.AuditDB != cfg.Storage.BoundsDB {
			db, err = openSQLite(cfg.Storage.AuditDB)
			if err != nil {
				return err
			}
			defer db.Close()
		}
		history, err = audit.NewLog(db)
		if err != nil {
			return err
		}
	}

	model, err := newModel(ctx, cfg.Model)
	if err != nil {
		return err
	}
	gw := gateway.New(model, cfg.GatewayOptions(), logger)

	opts := refine.Options{
		Validator:   validate.New(cfg.ValidatorConfig()),
		Analyzer:    delta.NewAnalyzer(cfg.Delta),
		GenderRules: rules,
		Logger:      logger,
	}
	srvOpts := server.Options{MaxBodyBytes: cfg.Server.MaxBodyBytes, Logger: logger}
	if history != nil {
		opts.Recorder = history
		srvOpts.History = history
	}
	orch := refine.NewOrchestrator(store, gw, opts)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(orch, srvOpts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr), zap.String("model", gw.ModelName()))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// #endregion serve

// #region helpers

func newModel(ctx context.Context, mc config.ModelConfig) (gateway.Model, error) {
	switch mc.Provider {
	case "openai":
		oc := gateway.DefaultOpenAIConfig(mc.APIKey)
		if mc.BaseURL != "" {
			oc.BaseURL = mc.BaseURL
		}
		if mc.Name != "" && mc.Name != gateway.DefaultGenAIModel {
			oc.Model = mc.Name
		}
		if mc.MaxOutputTokens > 0 {
			oc.MaxTokens = mc.MaxOutputTokens
		}
		oc.Temperature = mc.Temperature
		oc.SystemPrompt = prompt.SystemInstruction
		return gateway.NewOpenAIModel(oc)
	default:
		return gateway.NewGenAIModel(ctx, gateway.GenAIConfig{
			APIKey:          mc.APIKey,
			Model:           mc.Name,
			SystemPrompt:    prompt.SystemInstruction,
			Temperature:     float32(mc.Temperature),
			MaxOutputTokens: int32(mc.MaxOutputTokens),
		})
	}
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	return db, nil
}

// #endregion helpers
