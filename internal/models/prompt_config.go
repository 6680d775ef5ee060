package models

import "time"

// PromptConfig is one row of the runtime model configuration table.
// Exactly one row is active at a time; it supplies the model name, the
// system prompt, the optional sampling parameters, and the per-token
// nano-USD rates used for cost accounting.
//
// Temperature, TopP and Seed are nullable on purpose: a nil value means
// "do not send this parameter at all", since some models reject requests
// that carry non-default values.
type PromptConfig struct {
	ID                   int64     `json:"id"`
	IsActive             bool      `json:"is_active"`
	Model                string    `json:"model"`
	Prompt               string    `json:"prompt"`
	Temperature          *float64  `json:"temperature"`
	TopP                 *float64  `json:"top_p"`
	Seed                 *int64    `json:"seed"`
	InputCostNanoPerTok  int64     `json:"input_cost_nano_per_token"`
	OutputCostNanoPerTok int64     `json:"output_cost_nano_per_token"`
	CostCurrency         string    `json:"cost_currency"`
	CreatedAt            time.Time `json:"created_at"`
}
