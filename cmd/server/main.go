package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"kalshorb/internal/api"
	"kalshorb/internal/app"
	"kalshorb/internal/config"
	"kalshorb/internal/logging"
)

var getppid = os.Getppid
var sleep = time.Sleep
var exit = os.Exit

type flags struct {
	configFile string
	envFile    string
	dataDir    string
	port       int
	host       string
	webDir     string
	logLevel   string
	set        map[string]bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configFile, "config", "", "YAML configuration file (optional)")
	flag.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before the environment")
	flag.StringVar(&f.dataDir, "data-dir", "", "Directory for the database and logs")
	flag.IntVar(&f.port, "port", 8000, "Port to run the server on")
	flag.StringVar(&f.host, "host", "127.0.0.1", "Host to bind the server to")
	flag.StringVar(&f.webDir, "web-dir", "", "Directory for SPA static files (optional)")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	f.set = map[string]bool{}
	flag.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f
}

// apply overrides cfg with explicitly given flags.
func (f flags) apply(cfg *config.Config) {
	if f.set["port"] {
		cfg.Server.Port = f.port
	}
	if f.set["host"] {
		cfg.Server.Host = f.host
	}
	if f.set["web-dir"] {
		cfg.Server.WebDir = f.webDir
	}
	if f.set["log-level"] {
		cfg.Log.Level = f.logLevel
	}
	if f.dataDir != "" {
		if cfg.Store.SQLitePath == "" {
			cfg.Store.SQLitePath = filepath.Join(f.dataDir, "kalshorb.db")
		}
		if cfg.Log.Dir == "" {
			cfg.Log.Dir = filepath.Join(f.dataDir, "logs")
		}
	}
}

func main() {
	f := parseFlags()

	cfg, err := config.Load(config.LoadOptions{ConfigFile: f.configFile, EnvFile: f.envFile})
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	f.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if cfg.Log.Dir == "" {
		dataDir, err := config.DataDir()
		if err != nil {
			slog.Error("failed to resolve data directory", "err", err)
			os.Exit(1)
		}
		cfg.Log.Dir = filepath.Join(dataDir, "logs")
	}
	logger, writer, err := logging.NewLogger(logging.Options{
		Dir:           cfg.Log.Dir,
		RetentionDays: cfg.Log.RetentionDays,
		Level:         cfg.Log.Level,
		Format:        cfg.Log.Format,
	})
	if err != nil {
		slog.Error("failed to initialize logger", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("failed to close log writer", "err", err)
		}
	}()

	ctx := context.Background()
	application, err := app.Build(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Error("failed to initialize advisor", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("failed to close store", "err", err)
		}
	}()

	if os.Getenv("KALSHORB_PARENT_WATCH") == "1" {
		go watchParent(logger)
	}

	addr := cfg.Addr()
	handler := application.Handler
	if resolvedWebDir := resolveWebDir(cfg.Server.WebDir); resolvedWebDir != "" {
		logger.Info("serving SPA", "web_dir", resolvedWebDir)
		handler = api.WithSPA(handler, resolvedWebDir)
	}
	handler = middleware.Compress(5)(handler)

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	logger.Info("server starting", "addr", addr)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "err", err)
	}
}

func watchParent(logger *slog.Logger) {
	for {
		sleep(1 * time.Second)
		if getppid() == 1 {
			logger.Info("parent process exited; shutting down")
			exit(0)
		}
	}
}

func resolveWebDir(input string) string {
	if input != "" {
		if dirExists(input) {
			return input
		}
		return ""
	}

	candidates := []string{"static", "../static"}
	for _, candidate := range candidates {
		if dirExists(candidate) {
			return candidate
		}
	}
	if exe, err := os.Executable(); err == nil {
		base := filepath.Dir(exe)
		for _, candidate := range candidates {
			path := filepath.Join(base, candidate)
			if dirExists(path) {
				return path
			}
		}
	}
	return ""
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
