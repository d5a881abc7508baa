package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/KaramelBytes/docqa-cli/internal/app"
	cfgpkg "github.com/KaramelBytes/docqa-cli/internal/config"
	"github.com/KaramelBytes/docqa-cli/internal/gateway"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	debug   bool
	// HTTP flags (override config if set)
	flagHTTPTimeoutSec int
	flagAPIBaseURL     string

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:           "docqa",
	Short:         "docqa: ask questions about your documents",
	Long:          `docqa is a command-line client for the document Q&A backend. Upload PDF, DOCX and TXT files, ask questions about them, request summaries and review your history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", gateway.UserMessage(err))
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.docqa/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log every backend call to stderr")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagAPIBaseURL, "api-url", "", "backend API base URL (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: config show/set still work
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		cfg = nil
		return
	}
	cfg = c

	f := rootCmd.PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("api-url") && flagAPIBaseURL != "" {
		cfg.APIBaseURL = flagAPIBaseURL
	}
	if debug {
		cfg.LogLevel = "debug"
	}
}

// openApp builds the client for one command run. The caller closes it.
func openApp(cmd *cobra.Command) (*app.App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("no configuration loaded")
	}
	return app.New(cfg, app.WithLogOutput(cmd.ErrOrStderr()))
}

// requireLogin fails fast when no session is stored, before any request.
func requireLogin(a *app.App) error {
	if !a.Store.IsAuthenticated() {
		return fmt.Errorf("not logged in (run: docqa login)")
	}
	return nil
}
