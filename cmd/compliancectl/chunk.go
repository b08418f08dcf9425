package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/chunking"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/extractor"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/extractor/docx"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/extractor/spreadsheet"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/storage/localfs"
)

var chunkCmd = &cobra.Command{
	Use:   "chunk [file]",
	Short: "Extract and chunk a local document",
	Long:  `Runs text extraction and chunking on a local file and prints the resulting chunks with their taxonomy.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runChunk,
}

var (
	chunkSize    int
	chunkOverlap int
	chunkMinSize int
	chunkJSON    bool
)

func init() {
	chunkCmd.Flags().IntVar(&chunkSize, "size", 0, "Target chunk size in characters (defaults to CHUNK_SIZE)")
	chunkCmd.Flags().IntVar(&chunkOverlap, "overlap", 0, "Overlap between chunks (defaults to CHUNK_OVERLAP)")
	chunkCmd.Flags().IntVar(&chunkMinSize, "min", 0, "Minimum chunk size (defaults to CHUNK_MIN_SIZE)")
	chunkCmd.Flags().BoolVar(&chunkJSON, "json", false, "Print chunks as JSON")
	rootCmd.AddCommand(chunkCmd)
}

func runChunk(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	storage, err := localfs.New(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}
	router := extractor.NewRouter(
		storage,
		pdf.NewParser(),
		docx.NewParser(),
		spreadsheet.NewParser(),
		plaintext.NewParser(),
	)

	name := filepath.Base(path)
	extraction, err := router.Extract(cmd.Context(), name, name)
	if err != nil {
		return err
	}

	splitter := chunking.NewSplitter(
		orDefault(chunkSize, cfg.ChunkSize),
		orDefault(chunkOverlap, cfg.ChunkOverlap),
		orDefault(chunkMinSize, cfg.ChunkMinSize),
	)
	chunks := splitter.Chunk(extraction.FullText, name, extraction.Tables...)
	if chunkJSON {
		return printJSON(cmd, chunks)
	}

	cmd.Printf("%s: %d pages, %d tables, %d chunks (%s)\n\n", name, extraction.TotalPages(), len(extraction.Tables), len(chunks), extraction.Method)
	for _, c := range chunks {
		table := ""
		if c.HasTable {
			table = " table"
		}
		cmd.Printf("  #%-4d %-24s %6d chars%s\n", c.Index, c.Taxonomy, c.CharCount, table)
	}
	return nil
}

func orDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
