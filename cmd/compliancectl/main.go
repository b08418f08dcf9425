package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/compliance-analyzer/internal/config"
	"github.com/kirillkom/compliance-analyzer/internal/observability/logging"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:           "compliancectl",
	Short:         "Operate the compliance analysis pipeline",
	Long:          `Inspect checklist catalogs, preview document chunking, queue analysis runs and serve the MCP tools.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		cfg = config.Load()
		// stdout carries command output and the MCP protocol.
		slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "compliancectl", cfg.LogLevel))
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetOut(os.Stdout)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		rootCmd.PrintErrln("Error:", err)
		stop()
		os.Exit(1)
	}
}
