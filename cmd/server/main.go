package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/castlemilk/gstfiling/internal/app"
	"github.com/castlemilk/gstfiling/internal/config"
	"github.com/castlemilk/gstfiling/internal/service"
	"github.com/castlemilk/gstfiling/internal/store"
	"github.com/rs/cors"
	"github.com/spf13/viper"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/api/option"
)

func main() {
	cfgFile := flag.String("config", "", "config file (default: ./gstfile.yaml or ~/.config/gstfile/config.yaml)")
	flag.Parse()

	if err := run(*cfgFile); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfgFile string) error {
	cfg, err := config.Load(viper.New(), cfgFile)
	if err != nil {
		return err
	}

	logger, err := config.SetupLogger(os.Stderr, cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docStore, closeStore, err := newStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	model, closeModel := app.NewModelClient(ctx, cfg, logger)
	defer closeModel()

	pipeline, err := app.NewPipeline(cfg.Pipeline, model, logger)
	if err != nil {
		return err
	}

	filingService := service.NewFilingService(docStore, pipeline, logger)

	mux := http.NewServeMux()
	filingService.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"User-Agent",
		},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port, "store", cfg.Store.Backend, "model", cfg.Gemini.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.DocumentStore, func(), error) {
	if cfg.Backend == "memory" {
		logger.Info("using in-memory store", "retention", cfg.RetentionTTL)
		mem := store.NewMemoryStoreWithTTL(cfg.RetentionTTL)
		return mem, mem.Close, nil
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	logger.Info("using firestore store", "project", cfg.ProjectID)
	return store.NewFirestoreStore(client), func() { client.Close() }, nil
}
