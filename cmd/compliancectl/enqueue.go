package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/compliance-analyzer/internal/bootstrap"
	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [session-id]",
	Short: "Queue an analysis run for the workers",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnqueue,
}

var enqueueJobID string

func init() {
	enqueueCmd.Flags().StringVar(&enqueueJobID, "job-id", "", "Resume or name the job (generated when empty)")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.New(cmd.Context(), cfg, "compliancectl", nil)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	req, err := app.Enqueuer.Enqueue(cmd.Context(), domain.RunRequest{
		SessionID: args[0],
		JobID:     enqueueJobID,
	})
	if err != nil {
		return err
	}
	cmd.Printf("Queued analysis for session %s (job %s)\n", req.SessionID, req.JobID)
	return nil
}
