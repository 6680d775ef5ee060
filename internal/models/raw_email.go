package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EmailStatus tracks whether an inbound email's tasks have been reconciled.
// The only legal transition is UNPROCESSED -> UPDATED_TASKS, applied once
// by the reconciler's finalization step.
type EmailStatus string

const (
	EmailStatusUnprocessed  EmailStatus = "UNPROCESSED"
	EmailStatusUpdatedTasks EmailStatus = "UPDATED_TASKS"
)

// RawEmail is the stored record of one inbound message.
type RawEmail struct {
	ID             int64           `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	FromEmail      *string         `json:"from_email"`
	ToEmail        *string         `json:"to_email"`
	Subject        *string         `json:"subject"`
	TextBody       *string         `json:"text_body"`
	HTMLBody       *string         `json:"html_body"`
	ProviderMeta   json.RawMessage `json:"provider_meta,omitempty"`
	SentAt         *time.Time      `json:"sent_at"`
	MessageID      *string         `json:"message_id"`
	InputCostNano  int64           `json:"input_cost_nano_usd"`
	OutputCostNano int64           `json:"output_cost_nano_usd"`
	TasksBefore    int             `json:"tasks_before"`
	TasksAfter     int             `json:"tasks_after"`
	Status         EmailStatus     `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}
