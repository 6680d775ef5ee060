package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mailtasker/mailtasker/internal/config"
	"github.com/mailtasker/mailtasker/internal/database"
)

// NewBudgetCmd creates the budget command with show and deposit subcommands.
func NewBudgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Manage per-user processing budgets",
		Long:  "Show balances or deposit processing budget, denominated in nano-USD",
	}
	cmd.AddCommand(newBudgetShowCmd())
	cmd.AddCommand(newBudgetDepositCmd())
	return cmd
}

func openDB() (*config.Config, *database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return cfg, db, nil
}

func closeDB(db *database.DB) {
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
}

func newBudgetShowCmd() *cobra.Command {
	var userFlag string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show remaining budget for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(userFlag)
			if err != nil {
				return fmt.Errorf("--user must be a valid UUID: %w", err)
			}

			_, db, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(db)

			budgetRepo := database.NewBudgetRepository(db)
			remaining, err := budgetRepo.GetRemaining(context.Background(), userID)
			if err != nil {
				return fmt.Errorf("failed to get remaining budget: %w", err)
			}

			fmt.Printf("User: %s\n", userID)
			fmt.Printf("Remaining: %d nano-USD (%.6f USD)\n", remaining, float64(remaining)/1e9)
			return nil
		},
	}
	cmd.Flags().StringVar(&userFlag, "user", "", "User ID (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newBudgetDepositCmd() *cobra.Command {
	var userFlag string
	var amountNano int64
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Deposit budget for one user or all users",
		Long:  "Credit budget in nano-USD, capped at the configured accrual ceiling. Omit --user to credit all users.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB(db)

			amount := amountNano
			if amount == 0 {
				amount = cfg.BudgetDepositNano
			}
			if amount <= 0 {
				return fmt.Errorf("--amount must be positive")
			}

			budgetRepo := database.NewBudgetRepository(db)
			ctx := context.Background()

			var userIDs []uuid.UUID
			if userFlag != "" {
				userID, err := uuid.Parse(userFlag)
				if err != nil {
					return fmt.Errorf("--user must be a valid UUID: %w", err)
				}
				userIDs = []uuid.UUID{userID}
			} else {
				userRepo := database.NewUserRepository(db)
				userIDs, err = userRepo.ListIDs(ctx)
				if err != nil {
					return fmt.Errorf("failed to list users: %w", err)
				}
			}

			for _, userID := range userIDs {
				balance, err := budgetRepo.Deposit(ctx, userID, amount, cfg.BudgetMaxAccruedNano)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Warning: deposit failed for %s: %v\n", userID, err)
					continue
				}
				fmt.Printf("  %s: balance %d nano-USD\n", userID, balance)
			}

			fmt.Printf("Deposited %d nano-USD to %d user(s)\n", amount, len(userIDs))
			return nil
		},
	}
	cmd.Flags().StringVar(&userFlag, "user", "", "User ID (omit to credit all users)")
	cmd.Flags().Int64Var(&amountNano, "amount", 0, "Amount in nano-USD (defaults to BUDGET_DEPOSIT_NANO_USD)")
	return cmd
}
