// cartd serves a debounced, optimistically updated cart over REST and MCP.
// It fronts a remote cart API and mirrors the reconciled cart to SQLite.
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

	"golang.org/x/sync/errgroup"

	"storefront-cart/internal/cart"
	"storefront-cart/internal/catalog"
	"storefront-cart/internal/config"
	"storefront-cart/internal/handler"
	"storefront-cart/internal/middleware"
	"storefront-cart/internal/mirror"
	"storefront-cart/internal/storeapi"
	"storefront-cart/internal/transport"
)

// Snapshots untouched for this long are pruned from the mirror.
const (
	mirrorRetention     = 30 * 24 * time.Hour
	mirrorPruneInterval = time.Hour
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Initialize structured logger
	logger := initLogger(cfg)

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("cart_api", cfg.CartAPI.BaseURL),
		slog.Bool("chrome_tls", cfg.CartAPI.ChromeTLS),
		slog.Bool("mirror", cfg.Cart.MirrorPath != ""),
	)

	pricing, err := cfg.BuildPricing()
	if err != nil {
		return err
	}
	catalogTTL, err := cfg.CatalogTTL()
	if err != nil {
		return err
	}

	store, err := storeapi.New(storeapi.Config{
		BaseURL:       cfg.CartAPI.BaseURL,
		Token:         cfg.CartAPI.Token,
		Timeout:       cfg.RequestTimeout(),
		ChromeTLS:     cfg.CartAPI.ChromeTLS,
		MinAPIVersion: cfg.CartAPI.MinVersion,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("creating cart API client: %w", err)
	}

	products, err := catalog.New(catalog.Config{
		BaseURL:  cfg.CartAPI.BaseURL,
		CacheTTL: catalogTTL,
		Transport: transport.New(transport.Options{
			Timeout:   cfg.RequestTimeout(),
			ChromeTLS: cfg.CartAPI.ChromeTLS,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating catalog: %w", err)
	}

	ctrlCfg := cart.Config{
		Store:          store,
		Catalog:        products,
		Pricing:        pricing,
		DebounceDelay:  cfg.DebounceDelay(),
		RequestTimeout: cfg.RequestTimeout(),
		Logger:         logger,
	}

	var snapshots *mirror.Store
	if cfg.Cart.MirrorPath != "" {
		snapshots, err = mirror.Open(ctx, cfg.Cart.MirrorPath)
		if err != nil {
			return fmt.Errorf("opening cart mirror: %w", err)
		}
		defer snapshots.Close()
		ctrlCfg.Mirror = snapshots
	}

	ctrl, err := cart.New(ctrlCfg)
	if err != nil {
		return fmt.Errorf("creating cart controller: %w", err)
	}
	defer ctrl.Close()

	notices := cart.NewNoticeBuffer(50)
	ctrl.Subscribe(notices.Listen)
	ctrl.Subscribe(func(ev cart.Event) {
		if ev.Corrections != nil && !ev.Corrections.IsEmpty() {
			logger.Info("cart corrected by reconciliation",
				slog.Int("added", len(ev.Corrections.ToAdd)),
				slog.Int("removed", len(ev.Corrections.ToRemove)),
				slog.Int("updated", len(ev.Corrections.ToUpdate)),
			)
		}
	})

	// Show the last known cart until the first sync lands
	if restored, err := ctrl.Restore(ctx); err != nil {
		logger.Warn("cart mirror restore failed", slog.String("error", err.Error()))
	} else if restored {
		logger.Info("cart restored from mirror")
	}
	if err := ctrl.Reconcile(ctx); err != nil {
		logger.Warn("initial cart sync failed", slog.String("error", err.Error()))
	}

	h := handler.New(ctrl, notices, logger)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → request id → logging → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if snapshots != nil {
		g.Go(func() error {
			pruneMirror(gctx, snapshots, logger)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

// pruneMirror deletes stale snapshots now and then every interval until ctx
// is done.
func pruneMirror(ctx context.Context, snapshots *mirror.Store, logger *slog.Logger) {
	ticker := time.NewTicker(mirrorPruneInterval)
	defer ticker.Stop()

	for {
		n, err := snapshots.Prune(ctx, time.Now().Add(-mirrorRetention))
		if err != nil && ctx.Err() == nil {
			logger.Warn("cart mirror prune failed", slog.String("error", err.Error()))
		} else if n > 0 {
			logger.Info("pruned stale cart snapshots", slog.Int64("count", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if cfg.Environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
