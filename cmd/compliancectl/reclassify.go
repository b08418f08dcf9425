package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/chunking"
)

var reclassifyCmd = &cobra.Command{
	Use:   "reclassify [chunks.json]",
	Short: "Recompute taxonomy of a saved chunk set",
	Long: `Reads chunks previously written by "chunk --json" and recomputes their taxonomy
and table flags with the current classifier. Content and ids are left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runReclassify,
}

var reclassifyJSON bool

func init() {
	reclassifyCmd.Flags().BoolVar(&reclassifyJSON, "json", false, "Print the reclassified chunks as JSON")
	rootCmd.AddCommand(reclassifyCmd)
}

func runReclassify(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read chunks: %w", err)
	}
	var chunks []domain.DocumentChunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode chunks", err)
	}

	splitter := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap, cfg.ChunkMinSize)
	out := splitter.Reclassify(chunks)
	if reclassifyJSON {
		return printJSON(cmd, out)
	}

	changed := 0
	for i, c := range out {
		marker := ""
		if c.Taxonomy != chunks[i].Taxonomy {
			changed++
			marker = fmt.Sprintf(" (was %s)", chunks[i].Taxonomy)
		}
		cmd.Printf("  #%-4d %-24s%s\n", c.Index, c.Taxonomy, marker)
	}
	cmd.Printf("\n%d of %d chunks reclassified\n", changed, len(out))
	return nil
}
