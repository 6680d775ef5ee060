package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mailtasker/mailtasker/internal/models"
)

// ErrNoActivePromptConfig is returned when no prompt config row is active.
var ErrNoActivePromptConfig = errors.New("no active prompt config")

// PromptConfigRepository handles model prompt configuration rows.
type PromptConfigRepository struct {
	db *DB
}

// NewPromptConfigRepository creates a new prompt config repository
func NewPromptConfigRepository(db *DB) *PromptConfigRepository {
	return &PromptConfigRepository{db: db}
}

const promptConfigColumns = `id, is_active, model, prompt, temperature, top_p,
	seed, input_cost_nano_per_token, output_cost_nano_per_token, cost_currency,
	created_at`

// GetActive returns the oldest active prompt config.
func (r *PromptConfigRepository) GetActive(ctx context.Context) (*models.PromptConfig, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM ai_prompt_configs
		WHERE is_active = TRUE
		ORDER BY created_at ASC
		LIMIT 1
	`, promptConfigColumns)

	cfg, err := r.scanConfig(r.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, ErrNoActivePromptConfig
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active prompt config: %w", err)
	}

	return cfg, nil
}

// List returns all prompt configs, newest first.
func (r *PromptConfigRepository) List(ctx context.Context) ([]*models.PromptConfig, error) {
	query := fmt.Sprintf(`SELECT %s FROM ai_prompt_configs ORDER BY created_at DESC`, promptConfigColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.PromptConfig
	for rows.Next() {
		cfg, err := r.scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prompt config: %w", err)
		}
		configs = append(configs, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prompt configs: %w", err)
	}

	return configs, nil
}

// Create inserts a new prompt config row.
func (r *PromptConfigRepository) Create(ctx context.Context, cfg *models.PromptConfig) error {
	query := `
		INSERT INTO ai_prompt_configs (is_active, model, prompt, temperature,
			top_p, seed, input_cost_nano_per_token, output_cost_nano_per_token,
			cost_currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	currency := cfg.CostCurrency
	if currency == "" {
		currency = "USD"
	}

	err := r.db.QueryRowContext(ctx, query,
		cfg.IsActive,
		cfg.Model,
		cfg.Prompt,
		cfg.Temperature,
		cfg.TopP,
		cfg.Seed,
		cfg.InputCostNanoPerTok,
		cfg.OutputCostNanoPerTok,
		currency,
	).Scan(&cfg.ID, &cfg.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create prompt config: %w", err)
	}
	cfg.CostCurrency = currency

	return nil
}

// Activate marks one config active and deactivates every other row.
func (r *PromptConfigRepository) Activate(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE ai_prompt_configs SET is_active = (id = $1)`, id); err != nil {
		return fmt.Errorf("failed to activate prompt config: %w", err)
	}
	return nil
}

func (r *PromptConfigRepository) scanConfig(s scanner) (*models.PromptConfig, error) {
	cfg := &models.PromptConfig{}
	err := s.Scan(
		&cfg.ID,
		&cfg.IsActive,
		&cfg.Model,
		&cfg.Prompt,
		&cfg.Temperature,
		&cfg.TopP,
		&cfg.Seed,
		&cfg.InputCostNanoPerTok,
		&cfg.OutputCostNanoPerTok,
		&cfg.CostCurrency,
		&cfg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
