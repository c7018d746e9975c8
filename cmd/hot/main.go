package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pbaille/hot/internal/classifier"
	"github.com/pbaille/hot/internal/config"
	"github.com/pbaille/hot/internal/logging"
	"github.com/pbaille/hot/internal/review"
	"github.com/pbaille/hot/internal/store"
	"github.com/pbaille/hot/internal/suggest"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	dbPath     string
	userID     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "hot",
		Short:         "Classify security measures as Human, Organizational or Technical",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", os.Getenv("USER"), "reviewer recorded in the activity log")

	rootCmd.AddCommand(suggestCmd())
	rootCmd.AddCommand(confirmCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(deferCmd())
	rootCmd.AddCommand(dropCmd())
	rootCmd.AddCommand(autoCmd())
	rootCmd.AddCommand(libraryCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app holds everything a command needs
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *store.Store
	review  *review.Service
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(a.cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}
	st, err := store.New(a.cfg.Database.Path)
	if err != nil {
		return err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	lib, err := a.openLibrary(ctx)
	if err != nil {
		return err
	}

	clf, err := a.openClassifier()
	if err != nil {
		return err
	}

	engine, err := suggest.New(lib, clf, suggest.Config{
		LookupTimeout: a.cfg.Engine.LookupTimeout,
		Concurrency:   a.cfg.Engine.Concurrency,
	}, a.logger)
	if err != nil {
		return err
	}

	a.review, err = review.New(st, lib, engine, a.cfg.Engine.AutoThreshold, a.logger)
	return err
}

// libraryBackend is what the engine and the review service need from a library
type libraryBackend interface {
	suggest.Library
	review.LibraryAdmin
}

func (a *app) openLibrary(ctx context.Context) (libraryBackend, error) {
	switch a.cfg.Library.Backend {
	case config.BackendRedis:
		r, err := store.NewRedis(ctx, store.RedisConfig{
			Addr:      a.cfg.Library.RedisAddr,
			Password:  a.cfg.Library.RedisPassword,
			DB:        a.cfg.Library.RedisDB,
			KeyPrefix: a.cfg.Library.KeyPrefix,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		return r, nil
	}
	return a.store, nil
}

func (a *app) openClassifier() (*classifier.Classifier, error) {
	if a.cfg.Engine.LexiconPath == "" {
		return classifier.NewDefault()
	}
	lex, err := classifier.LoadLexicon(a.cfg.Engine.LexiconPath)
	if err != nil {
		return nil, err
	}
	return classifier.New(lex), nil
}
