package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	configDir string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "concierge",
		Short: "WhatsApp business assistant: intent classification, LLM fallback and routing",
		Long: `Concierge answers guest messages for a hospitality business.

It classifies each message with fast local tiers before falling back to a
prioritised list of LLM providers, then routes the intent to a static reply,
a generated reply, a workflow or a staff escalation.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "configs", "path to configuration directory")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(providersCmd())
	rootCmd.AddCommand(classifyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogger installs the process-wide slog handler.
func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var logger *slog.Logger
	if strings.ToLower(format) == "text" {
		logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	slog.SetDefault(logger)
	return logger
}
