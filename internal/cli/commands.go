// Package cli implements the kalshorb operator command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"kalshorb/internal/app"
	"kalshorb/internal/config"
	"kalshorb/internal/logging"
	"kalshorb/pkg/kalshorb"
)

type rootOptions struct {
	configFile string
	envFile    string
	store      string
	logLevel   string
	lookupEnv  func(string) (string, bool)
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&rootOptions{})
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kalshorb",
		Short: "Kalshorb - prediction market trading advisor",
		Long: `Kalshorb answers prediction-market trading questions with a hosted language
model, or with built-in templates when no model is configured.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment")
	rootCmd.PersistentFlags().StringVar(&opts.store, "store", "", "Override the store driver (auto, sqlite, postgrest, none)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level written to stderr")

	rootCmd.AddCommand(newAskCmd(opts))
	rootCmd.AddCommand(newQuickCmd(opts))
	rootCmd.AddCommand(newSessionsCmd(opts))
	rootCmd.AddCommand(newAccountCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))

	return rootCmd
}

// newAskCmd creates the ask command.
func newAskCmd(opts *rootOptions) *cobra.Command {
	var (
		userID    string
		sessionID string
		offline   bool
		noContext bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "ask MESSAGE...",
		Short: "Ask the advisor a question",
		Long: `Send one chat message through the advisor using the configured store and model.
Example: kalshorb ask "How should I size a position with the Kelly criterion?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			req := kalshorb.InboundRequest{
				UserID:         userID,
				SessionID:      sessionID,
				Message:        strings.Join(args, " "),
				Action:         kalshorb.ActionChat,
				IncludeContext: !noContext,
			}
			return runRequest(cmd, opts, offline, asJSON, req)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "cli", "User id the message is recorded under")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (a new one is generated when empty)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Answer from templates without calling the language model")
	cmd.Flags().BoolVar(&noContext, "no-context", false, "Skip loading positions, risk and portfolio")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw response as JSON")
	return cmd
}

// newQuickCmd creates the quick command.
func newQuickCmd(opts *rootOptions) *cobra.Command {
	var (
		userID  string
		offline bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "quick ACTION",
		Short: "Run a quick action such as analyze_portfolio or kelly_sizing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := kalshorb.InboundRequest{
				UserID:  userID,
				Message: args[0],
				Action:  kalshorb.ActionQuickAction,
			}
			return runRequest(cmd, opts, offline, asJSON, req)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "cli", "User id")
	cmd.Flags().BoolVar(&offline, "offline", false, "Answer from templates without calling the language model")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw response as JSON")
	return cmd
}

// newSessionsCmd creates the sessions command.
func newSessionsCmd(opts *rootOptions) *cobra.Command {
	var (
		userID string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List a user's conversation sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			sessions, err := a.Service.Sessions(commandContext(cmd), userID, limit)
			if err != nil {
				return err
			}
			renderSessions(cmd.OutOrStdout(), sessions)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "cli", "User id")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum sessions to list")
	return cmd
}

// newConfigCmd creates the config command.
func newConfigCmd(opts *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			out, err := cfg.Redacted().YAML()
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := opts.load(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("configuration is valid"))
			return nil
		},
	})

	return configCmd
}

func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: o.configFile,
		EnvFile:    o.envFile,
		LookupEnv:  o.lookupEnv,
	})
	if err != nil {
		return cfg, err
	}
	if o.store != "" {
		cfg.Store.Driver = o.store
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func buildApp(cmd *cobra.Command, opts *rootOptions, offline bool) (*app.App, error) {
	cfg, err := opts.load()
	if err != nil {
		return nil, err
	}
	logger, _, err := logging.NewLogger(logging.Options{
		Level:  opts.logLevel,
		Format: cfg.Log.Format,
		Stdout: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	return app.Build(commandContext(cmd), cfg, logger, app.Options{Offline: offline})
}

func runRequest(cmd *cobra.Command, opts *rootOptions, offline, asJSON bool, req kalshorb.InboundRequest) error {
	a, err := buildApp(cmd, opts, offline)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("close store", "err", err)
		}
	}()

	resp, err := a.Service.Handle(commandContext(cmd), req)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	renderResponse(cmd.OutOrStdout(), resp)
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
