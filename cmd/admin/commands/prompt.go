package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mailtasker/mailtasker/internal/database"
	"github.com/mailtasker/mailtasker/internal/models"
	"github.com/mailtasker/mailtasker/internal/services/ai"
)

// NewPromptCmd creates the prompt configuration command with list, activate, and seed subcommands.
func NewPromptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Manage model prompt configurations",
		Long:  "List, activate, or seed prompt configurations. The active configuration drives extraction.",
	}
	cmd.AddCommand(newPromptListCmd())
	cmd.AddCommand(newPromptActivateCmd())
	cmd.AddCommand(newPromptSeedCmd())
	return cmd
}

func newPromptListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List prompt configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(db)

			repo := database.NewPromptConfigRepository(db)
			configs, err := repo.List(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list prompt configs: %w", err)
			}

			if len(configs) == 0 {
				fmt.Println("No prompt configurations. Use 'prompt seed' to add one.")
				return nil
			}

			fmt.Println("Prompt configurations:")
			for _, c := range configs {
				marker := " "
				if c.IsActive {
					marker = "*"
				}
				fmt.Printf("  %s ID: %d\n", marker, c.ID)
				fmt.Printf("    Model: %s\n", c.Model)
				fmt.Printf("    Input cost: %d nano-USD/token\n", c.InputCostNanoPerTok)
				fmt.Printf("    Output cost: %d nano-USD/token\n", c.OutputCostNanoPerTok)
				if c.Temperature != nil {
					fmt.Printf("    Temperature: %g\n", *c.Temperature)
				}
				if c.Seed != nil {
					fmt.Printf("    Seed: %d\n", *c.Seed)
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func newPromptActivateCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate a prompt configuration by ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(db)

			repo := database.NewPromptConfigRepository(db)
			if err := repo.Activate(context.Background(), id); err != nil {
				return fmt.Errorf("failed to activate prompt config: %w", err)
			}
			fmt.Printf("Activated prompt configuration %d\n", id)
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Configuration ID (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newPromptSeedCmd() *cobra.Command {
	var (
		model          string
		promptFile     string
		inputCostNano  int64
		outputCostNano int64
		temperature    float64
		seed           int64
		activate       bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a new prompt configuration",
		Long:  "Create a prompt configuration with per-token costs in nano-USD. Uses the built-in extraction prompt unless --prompt-file overrides it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			promptText := ai.DefaultSystemPrompt
			if promptFile != "" {
				raw, err := os.ReadFile(promptFile)
				if err != nil {
					return fmt.Errorf("failed to read prompt file: %w", err)
				}
				promptText = string(raw)
			}

			_, db, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(db)

			c := &models.PromptConfig{
				Model:                model,
				Prompt:               promptText,
				InputCostNanoPerTok:  inputCostNano,
				OutputCostNanoPerTok: outputCostNano,
				CostCurrency:         "USD",
			}
			if cmd.Flags().Changed("temperature") {
				c.Temperature = &temperature
			}
			if cmd.Flags().Changed("seed") {
				c.Seed = &seed
			}

			repo := database.NewPromptConfigRepository(db)
			ctx := context.Background()
			if err := repo.Create(ctx, c); err != nil {
				return fmt.Errorf("failed to create prompt config: %w", err)
			}
			fmt.Printf("Created prompt configuration %d\n", c.ID)

			if activate {
				if err := repo.Activate(ctx, c.ID); err != nil {
					return fmt.Errorf("failed to activate prompt config: %w", err)
				}
				fmt.Printf("Activated prompt configuration %d\n", c.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Model name (required)")
	cmd.Flags().StringVar(&promptFile, "prompt-file", "", "Path to a system prompt text file (defaults to the built-in extraction prompt)")
	cmd.Flags().Int64Var(&inputCostNano, "input-cost", 0, "Input cost in nano-USD per token (required)")
	cmd.Flags().Int64Var(&outputCostNano, "output-cost", 0, "Output cost in nano-USD per token (required)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Sampling temperature")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Sampling seed")
	cmd.Flags().BoolVar(&activate, "activate", false, "Activate after creating")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("input-cost")
	_ = cmd.MarkFlagRequired("output-cost")
	return cmd
}
