package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingBudget is a per-user balance, in nano-USD, gating how many
// email-to-model calls may run. A missing row reads as zero (fail-closed).
type ProcessingBudget struct {
	UserID        uuid.UUID `json:"user_id"`
	RemainingNano int64     `json:"remaining_nano_usd"`
	UpdatedAt     time.Time `json:"updated_at"`
}
