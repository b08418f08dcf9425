package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/compliance-analyzer/internal/adapters/mcp"
	"github.com/kirillkom/compliance-analyzer/internal/bootstrap"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Model Context Protocol server",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the compliance tools over stdio",
	Long: `Starts an MCP server on stdin/stdout exposing the checklist catalog and,
unless --catalog-only is set, session lookup and analysis runs.`,
	RunE: runMCPServe,
}

var mcpCatalogOnly bool

func init() {
	mcpServeCmd.Flags().BoolVar(&mcpCatalogOnly, "catalog-only", false, "Expose only the catalog tools and skip database and queue")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if mcpCatalogOnly {
		c, err := loadCatalog()
		if err != nil {
			return err
		}
		return mcpadapter.NewServer(mcpadapter.Deps{Catalog: c}).ServeStdio(ctx, os.Stdin, os.Stdout)
	}

	app, err := bootstrap.New(ctx, cfg, "compliancectl", nil)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()
	app.WatchCatalog(ctx)

	server := mcpadapter.NewServer(mcpadapter.Deps{
		Catalog:  app.Catalog,
		Sessions: app.Sessions,
		Analyzer: app.Analyzer,
		Enqueuer: app.Enqueuer,
	})
	return server.ServeStdio(ctx, os.Stdin, os.Stdout)
}
