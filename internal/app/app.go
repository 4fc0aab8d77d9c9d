// Package app builds the model client and pipeline from configuration for
// both the HTTP server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/castlemilk/gstfiling/internal/config"
	"github.com/castlemilk/gstfiling/internal/extraction"
	"github.com/redis/go-redis/v9"
)

// NewModelClient returns nil when no API key is configured, in which case the
// pipeline runs on local rules and the manual extractor only. The returned
// close function is never nil.
func NewModelClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (extraction.ModelClient, func()) {
	if cfg.Gemini.APIKey == "" {
		logger.Warn("no Gemini API key configured, model-backed stages will fall back")
		return nil, func() {}
	}

	retry := extraction.DefaultModelRetryConfig
	retry.MaxRetries = cfg.Gemini.MaxRetries

	var model extraction.ModelClient = extraction.NewGeminiClient(extraction.GeminiConfig{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
		Timeout: cfg.Gemini.Timeout,
		Retry:   retry,
	})

	if cfg.Redis.Addr == "" {
		return model, func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, model responses will not be cached", "addr", cfg.Redis.Addr, "error", err)
	} else {
		logger.Info("caching model responses in redis", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
	}
	return extraction.NewCachedModelClient(model, rdb, cfg.Redis.TTL, logger), func() { _ = rdb.Close() }
}

// NewPipeline builds the filing pipeline with the configured chunking,
// threshold and optional rules file.
func NewPipeline(cfg config.PipelineCfg, model extraction.ModelClient, logger *slog.Logger) (*extraction.Pipeline, error) {
	opts := []extraction.PipelineOption{
		extraction.WithChunking(cfg.ChunkSize, cfg.ChunkOverlap),
		extraction.WithLargeInvoiceThreshold(cfg.LargeInvoiceThreshold),
	}
	if cfg.RulesPath != "" {
		rules, err := extraction.LoadRules(cfg.RulesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load classifier rules: %w", err)
		}
		opts = append(opts, extraction.WithRules(rules))
	}
	return extraction.NewPipeline(model, logger, opts...), nil
}
