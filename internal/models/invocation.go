package models

import (
	"time"

	"github.com/google/uuid"
)

// AIInvocation is an immutable audit record of one model call. Rows are
// written once by the invoker and never mutated; a paid call that cannot
// be logged is treated as a failed call.
type AIInvocation struct {
	ID             int64     `json:"id"`
	ConfigID       int64     `json:"config_id"`
	UserID         uuid.UUID `json:"user_id"`
	EmailID        *int64    `json:"email_id"`
	RequestTokens  int64     `json:"request_tokens"`
	ResponseTokens int64     `json:"response_tokens"`
	InputCostNano  int64     `json:"input_cost_nano"`
	OutputCostNano int64     `json:"output_cost_nano"`
	TotalCostNano  int64     `json:"total_cost_nano"`
	LatencyMillis  int64     `json:"latency_ms"`
	CreatedAt      time.Time `json:"created_at"`
}
