package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/catalog"
)

var standardsCmd = &cobra.Command{
	Use:   "standards",
	Short: "Inspect the checklist catalog",
	Long:  `Read the checklist catalog directory without connecting to any backing service.`,
}

var standardsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog standards",
	Args:  cobra.NoArgs,
	RunE:  runStandardsList,
}

var standardsShowCmd = &cobra.Command{
	Use:   "show [key]",
	Short: "Show the questions of one standard",
	Args:  cobra.ExactArgs(1),
	RunE:  runStandardsShow,
}

var standardsSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search questions across all standards",
	Args:  cobra.ExactArgs(1),
	RunE:  runStandardsSearch,
}

var (
	catalogDir string
	jsonOutput bool
)

func init() {
	standardsCmd.PersistentFlags().StringVar(&catalogDir, "catalog", "", "Checklist directory (defaults to CATALOG_DIR)")
	standardsCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of text")

	standardsCmd.AddCommand(standardsListCmd)
	standardsCmd.AddCommand(standardsShowCmd)
	standardsCmd.AddCommand(standardsSearchCmd)
	rootCmd.AddCommand(standardsCmd)
}

func loadCatalog() (*catalog.Catalog, error) {
	dir := catalogDir
	if dir == "" {
		dir = cfg.CatalogDir
	}
	c, err := catalog.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", dir, err)
	}
	return c, nil
}

func runStandardsList(cmd *cobra.Command, _ []string) error {
	c, err := loadCatalog()
	if err != nil {
		return err
	}
	standards := c.ListStandards()
	if jsonOutput {
		return printJSON(cmd, standards)
	}

	if len(standards) == 0 {
		cmd.Printf("No standards found in %s\n", c.Dir())
		return nil
	}
	for _, s := range standards {
		cmd.Printf("  %-12s %-6s %4d  %s\n", s.Key, s.Framework, s.ItemCount, s.Title)
	}
	cmd.Printf("\nTotal: %d standards\n", len(standards))
	return nil
}

func runStandardsShow(cmd *cobra.Command, args []string) error {
	c, err := loadCatalog()
	if err != nil {
		return err
	}
	standard, err := c.GetStandard(args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, standard)
	}

	cmd.Printf("%s: %s\n\n", standard.Key, standard.Title)
	for _, q := range standard.Items {
		cmd.Printf("  [%s] %s\n", q.ID, q.Question)
		if q.Reference != "" {
			cmd.Printf("        ref: %s\n", q.Reference)
		}
	}
	return nil
}

func runStandardsSearch(cmd *cobra.Command, args []string) error {
	c, err := loadCatalog()
	if err != nil {
		return err
	}
	items := c.SearchItems(args[0])
	if jsonOutput {
		return printJSON(cmd, items)
	}

	if len(items) == 0 {
		cmd.Printf("No questions match %q\n", args[0])
		return nil
	}
	for _, item := range items {
		cmd.Printf("  %-12s [%s] %s\n", item.Standard, item.ID, item.Question.Question)
	}
	cmd.Printf("\nTotal: %d questions\n", len(items))
	return nil
}

func printJSON(cmd *cobra.Command, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
