package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailtasker/mailtasker/internal/database"
	"github.com/mailtasker/mailtasker/internal/queue"
	"github.com/mailtasker/mailtasker/internal/services/ai"
)

// JobProcessor dispatches queue jobs to their handlers.
type JobProcessor struct {
	reprocessor *Reprocessor
	budgets     database.BudgetRepositoryInterface
	users       database.UserRepositoryInterface
	jobQueue    queue.JobQueue // For re-enqueueing jobs with delays

	defaultDepositNano int64
	depositCapNano     int64
	logger             *zap.Logger
}

func NewJobProcessor(reprocessor *Reprocessor, budgets database.BudgetRepositoryInterface, users database.UserRepositoryInterface, jobQueue queue.JobQueue, defaultDepositNano, depositCapNano int64, log *zap.Logger) *JobProcessor {
	return &JobProcessor{
		reprocessor:        reprocessor,
		budgets:            budgets,
		users:              users,
		jobQueue:           jobQueue,
		defaultDepositNano: defaultDepositNano,
		depositCapNano:     depositCapNano,
		logger:             log,
	}
}

// ProcessJob processes a job based on its type
func (p *JobProcessor) ProcessJob(ctx context.Context, msg *queue.Message) error {
	job := msg.Job

	// Check if job should be processed now (respect NotBefore)
	if !job.ShouldProcess() {
		p.logger.Info("job_not_ready",
			zap.String("job_id", job.ID.String()),
			zap.Timep("not_before", job.NotBefore),
		)
		if ackErr := msg.Ack(); ackErr != nil {
			p.logger.Warn("failed_to_ack_job_for_later_processing", zap.Error(ackErr))
		}
		return nil
	}

	switch job.Type {
	case queue.JobTypeReprocessEmails:
		if _, err := p.reprocessor.Run(ctx, job.UserID); err != nil {
			return p.handleJobError(ctx, msg, job, err)
		}
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack reprocessing job: %w", ackErr)
		}
		return nil

	case queue.JobTypeDepositBudget:
		if err := p.processDepositJob(ctx, job); err != nil {
			return p.handleJobError(ctx, msg, job, err)
		}
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack deposit job: %w", ackErr)
		}
		return nil

	default:
		if nackErr := msg.Nack(false); nackErr != nil { // Unknown job type, send to DLQ
			p.logger.Warn("failed_to_nack_unknown_job_type", zap.Error(nackErr))
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// processDepositJob credits budget to the job's user, or to every known
// user when the job carries no user id.
func (p *JobProcessor) processDepositJob(ctx context.Context, job *queue.Job) error {
	amount := p.defaultDepositNano
	if job.AmountNano != nil {
		amount = *job.AmountNano
	}
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive, got %d", amount)
	}

	var userIDs []uuid.UUID
	if job.UserID != nil {
		userIDs = []uuid.UUID{*job.UserID}
	} else {
		ids, err := p.users.ListIDs(ctx)
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}
		userIDs = ids
	}

	for _, id := range userIDs {
		balance, err := p.budgets.Deposit(ctx, id, amount, p.depositCapNano)
		if err != nil {
			p.logger.Error("budget_deposit_failed",
				zap.String("user_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		p.logger.Info("budget_deposited",
			zap.String("user_id", id.String()),
			zap.Int64("amount_nano_usd", amount),
			zap.Int64("balance_nano_usd", balance),
		)
	}
	return nil
}

// handleJobError decides between delayed retry, immediate requeue and DLQ.
func (p *JobProcessor) handleJobError(ctx context.Context, msg *queue.Message, job *queue.Job, err error) error {
	// Rate limited: re-enqueue through the delayed exchange instead of
	// hammering the provider with immediate retries.
	if ai.IsRateLimited(err) && job.CanRetry() && p.jobQueue != nil {
		notBefore := time.Now().Add(retryDelay(job.RetryCount))
		delayedJob := *job
		delayedJob.NotBefore = &notBefore
		delayedJob.RetryCount = job.RetryCount + 1

		if ackErr := msg.Ack(); ackErr != nil {
			p.logger.Warn("failed_to_ack_rate_limited_job", zap.Error(ackErr))
		}
		if enqueueErr := p.jobQueue.Enqueue(ctx, &delayedJob); enqueueErr != nil {
			return fmt.Errorf("rate limited, failed to re-enqueue: %w", enqueueErr)
		}
		p.logger.Info("job_delayed_for_rate_limit",
			zap.String("job_id", job.ID.String()),
			zap.Time("not_before", notBefore),
		)
		return nil
	}

	if job.CanRetry() {
		job.IncrementRetry()
		p.logger.Warn("job_failed_will_retry",
			zap.String("job_id", job.ID.String()),
			zap.Int("attempt", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Error(err),
		)
		if nackErr := msg.Nack(true); nackErr != nil {
			p.logger.Warn("failed_to_nack_job", zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (will retry): %w", err)
	}

	// Max retries exceeded, send to DLQ
	p.logger.Error("job_failed_max_retries",
		zap.String("job_id", job.ID.String()),
		zap.Error(err),
	)
	if nackErr := msg.Nack(false); nackErr != nil {
		p.logger.Warn("failed_to_nack_job_to_dlq", zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (max retries): %w", err)
}

// retryDelay backs off exponentially from one minute, capped at an hour.
func retryDelay(attempt int) time.Duration {
	delay := time.Minute << attempt
	if delay > time.Hour || delay <= 0 {
		return time.Hour
	}
	return delay
}
