// Package config loads service configuration from defaults, an optional YAML
// file, a .env file and the environment. Command-line flags are applied last
// by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"kalshorb/internal/llm"
	"kalshorb/internal/store"
)

const (
	defaultPort   = 8000
	defaultDBName = "kalshorb.db"
)

// Config is the full service configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Store  StoreConfig  `yaml:"store"`
	LLM    LLMConfig    `yaml:"llm"`
	CORS   CORSConfig   `yaml:"cors"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	WebDir          string        `yaml:"web_dir"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Dir           string `yaml:"dir"`
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	RetentionDays int    `yaml:"retention_days"`
}

type StoreConfig struct {
	Driver     string        `yaml:"driver"`
	SQLitePath string        `yaml:"sqlite_path"`
	URL        string        `yaml:"url"`
	ServiceKey string        `yaml:"service_key"`
	Timeout    time.Duration `yaml:"timeout"`
}

type LLMConfig struct {
	Provider string        `yaml:"provider"`
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	Model    string        `yaml:"model"`
	Referer  string        `yaml:"referer"`
	Title    string        `yaml:"title"`
	Timeout  time.Duration `yaml:"timeout"`

	Temperature    float64 `yaml:"temperature"`
	TopP           float64 `yaml:"top_p"`
	ChatMaxTokens  int     `yaml:"chat_max_tokens"`
	QuickMaxTokens int     `yaml:"quick_max_tokens"`
}

type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            defaultPort,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    120 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:         "info",
			Format:        "text",
			RetentionDays: 7,
		},
		Store: StoreConfig{
			Driver:  store.DriverAuto,
			Timeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			Provider:       llm.ProviderOpenRouter,
			Referer:        llm.DefaultReferer,
			Title:          llm.DefaultTitle,
			Temperature:    0.7,
			TopP:           0.95,
			ChatMaxTokens:  1024,
			QuickMaxTokens: 512,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"POST", "GET", "OPTIONS", "PUT", "DELETE", "PATCH"},
			AllowedHeaders: []string{"authorization", "x-client-info", "apikey", "content-type"},
			MaxAge:         86400,
		},
	}
}

// LoadOptions names the inputs of Load.
type LoadOptions struct {
	// ConfigFile is an optional YAML file. A missing file is an error only
	// when the path was given explicitly.
	ConfigFile string
	// EnvFile is an optional dotenv file. A missing file is ignored.
	EnvFile string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load builds a Config. Precedence, lowest first: defaults, YAML file, .env
// file, process environment.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	if opts.ConfigFile != "" {
		if err := loadYAML(opts.ConfigFile, &cfg); err != nil {
			return cfg, err
		}
	}

	dotenv := map[string]string{}
	if opts.EnvFile != "" {
		values, err := godotenv.Read(opts.EnvFile)
		switch {
		case err == nil:
			dotenv = values
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, fmt.Errorf("read env file %s: %w", opts.EnvFile, err)
		}
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := applyEnv(&cfg, env); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, env func(string) (string, bool)) error {
	str := func(target *string, keys ...string) {
		for _, key := range keys {
			if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
				*target = strings.TrimSpace(v)
				return
			}
		}
	}
	var errs []error
	duration := func(target *time.Duration, key string) {
		if v, ok := env(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*target = d
		}
	}

	str(&cfg.Server.Host, "KALSHORB_HOST")
	if v, ok := env("KALSHORB_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("KALSHORB_PORT: %w", err))
		} else {
			cfg.Server.Port = port
		}
	}
	str(&cfg.Server.WebDir, "KALSHORB_WEB_DIR")

	str(&cfg.Log.Dir, "KALSHORB_LOG_DIR")
	str(&cfg.Log.Level, "KALSHORB_LOG_LEVEL")
	str(&cfg.Log.Format, "KALSHORB_LOG_FORMAT")

	str(&cfg.Store.Driver, "KALSHORB_STORE_DRIVER")
	str(&cfg.Store.SQLitePath, "KALSHORB_DB_PATH")
	str(&cfg.Store.URL, "KALSHORB_SUPABASE_URL", "SUPABASE_URL")
	str(&cfg.Store.ServiceKey, "KALSHORB_SUPABASE_SERVICE_ROLE_KEY", "SUPABASE_SERVICE_ROLE_KEY")

	str(&cfg.LLM.Provider, "KALSHORB_LLM_PROVIDER")
	str(&cfg.LLM.APIKey, "KALSHORB_LLM_API_KEY", "OPENROUTER_API_KEY")
	str(&cfg.LLM.BaseURL, "KALSHORB_LLM_BASE_URL")
	str(&cfg.LLM.Model, "KALSHORB_LLM_MODEL")
	duration(&cfg.LLM.Timeout, "KALSHORB_LLM_TIMEOUT")

	if v, ok := env("KALSHORB_CORS_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		cfg.CORS.AllowedOrigins = splitList(v)
	}
	return errors.Join(errs...)
}

// Validate checks enumerations and fills derived defaults.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port: %d", c.Server.Port))
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("invalid log format: %s", c.Log.Format))
	}
	if !slices.Contains(store.Drivers(), strings.ToLower(c.Store.Driver)) {
		errs = append(errs, fmt.Errorf("invalid store driver: %s", c.Store.Driver))
	}
	if !slices.Contains(llm.Providers(), strings.ToLower(c.LLM.Provider)) {
		errs = append(errs, fmt.Errorf("invalid llm provider: %s", c.LLM.Provider))
	}
	if strings.EqualFold(c.Store.Driver, store.DriverPostgREST) && (c.Store.URL == "" || c.Store.ServiceKey == "") {
		errs = append(errs, errors.New("postgrest store requires url and service key"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if strings.TrimSpace(c.LLM.Model) == "" {
		c.LLM.Model = llm.DefaultModel(c.LLM.Provider)
	}
	if c.Store.SQLitePath == "" {
		dir, err := DataDir()
		if err != nil {
			return fmt.Errorf("resolve data dir: %w", err)
		}
		c.Store.SQLitePath = filepath.Join(dir, defaultDBName)
	}
	return nil
}

// Addr returns host:port for the HTTP listener.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	c.Store.ServiceKey = mask(c.Store.ServiceKey)
	c.LLM.APIKey = mask(c.LLM.APIKey)
	return c
}

// YAML renders the configuration as a YAML document.
func (c Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DataDir returns the per-user data directory, honoring KALSHORB_DATA_DIR.
func DataDir() (string, error) {
	if envDir := os.Getenv("KALSHORB_DATA_DIR"); envDir != "" {
		return envDir, nil
	}
	return appConfigDir()
}

func appConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if runtime.GOOS == "darwin" {
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "Kalshorb"), nil
	}
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, "Kalshorb"), nil
	}
	configDir, cfgErr := os.UserConfigDir()
	if cfgErr != nil {
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "kalshorb"), nil
	}
	return filepath.Join(configDir, "kalshorb"), nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}
