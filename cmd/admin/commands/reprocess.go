package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mailtasker/mailtasker/internal/config"
	"github.com/mailtasker/mailtasker/internal/queue"
)

// NewReprocessCmd creates the reprocess command.
func NewReprocessCmd() *cobra.Command {
	var userFlag string
	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Enqueue a reprocessing sweep over unprocessed emails",
		Long:  "Enqueue a background job that retries stored emails never turned into tasks. Omit --user to sweep all users.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			var userID *uuid.UUID
			if userFlag != "" {
				id, err := uuid.Parse(userFlag)
				if err != nil {
					return fmt.Errorf("--user must be a valid UUID: %w", err)
				}
				userID = &id
			}

			jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
			if err != nil {
				return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
			}
			defer func() { _ = jobQueue.Close() }()

			job := queue.NewJob(queue.JobTypeReprocessEmails, userID)
			if err := jobQueue.Enqueue(context.Background(), job); err != nil {
				return fmt.Errorf("failed to enqueue reprocess job: %w", err)
			}

			fmt.Printf("Enqueued reprocess job %s\n", job.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&userFlag, "user", "", "User ID (omit to sweep all users)")
	return cmd
}
