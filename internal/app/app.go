// Package app wires configuration into a ready-to-serve advisor.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"kalshorb/internal/api"
	"kalshorb/internal/config"
	"kalshorb/internal/llm"
	"kalshorb/internal/store"
	"kalshorb/pkg/kalshorb"
)

// Options adjusts Build.
type Options struct {
	// Offline skips the language model so every reply uses templates.
	Offline bool
	// Store overrides the configured store driver when non-empty.
	Store string
}

// App holds the assembled service and the resources it owns.
type App struct {
	Service *kalshorb.Service
	Handler http.Handler

	closers []func() error
}

// Build opens the store, builds the completer and the HTTP router. cfg must
// already be validated.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	storeCfg := StoreConfig(cfg)
	if opts.Store != "" {
		storeCfg.Driver = opts.Store
	}
	st, closeStore, err := store.Open(storeCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &App{closers: []func() error{closeStore}}

	var completer kalshorb.Completer
	if !opts.Offline {
		completer, err = llm.New(ctx, LLMConfig(cfg), logger)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("build llm client: %w", err)
		}
	}

	a.Service = kalshorb.New(kalshorb.Options{
		Store:          st,
		Completer:      completer,
		Logger:         logger,
		Temperature:    cfg.LLM.Temperature,
		TopP:           cfg.LLM.TopP,
		ChatMaxTokens:  cfg.LLM.ChatMaxTokens,
		QuickMaxTokens: cfg.LLM.QuickMaxTokens,
	})
	a.Handler = api.NewRouter(a.Service, api.Options{Logger: logger, CORS: CORSOptions(cfg)})

	logger.Info("advisor ready",
		"store", store.Resolve(storeCfg),
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"llm_enabled", !opts.Offline && cfg.LLM.APIKey != "",
	)
	return a, nil
}

// Close releases the store. It is safe to call more than once.
func (a *App) Close() error {
	var errs []error
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// StoreConfig maps the store section onto the store package.
func StoreConfig(cfg config.Config) store.Config {
	return store.Config{
		Driver:     cfg.Store.Driver,
		SQLitePath: cfg.Store.SQLitePath,
		URL:        cfg.Store.URL,
		ServiceKey: cfg.Store.ServiceKey,
		Timeout:    cfg.Store.Timeout,
	}
}

// LLMConfig maps the llm section onto the llm package.
func LLMConfig(cfg config.Config) llm.Config {
	return llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		Referer:  cfg.LLM.Referer,
		Title:    cfg.LLM.Title,
		Timeout:  cfg.LLM.Timeout,
	}
}

// CORSOptions maps the cors section onto the router options.
func CORSOptions(cfg config.Config) api.CORSOptions {
	return api.CORSOptions{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}
}
