package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mailtasker/mailtasker/cmd/admin/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "mailtasker-admin",
		Short: "Administration tool for the mailtasker API",
		Long:  "CLI tool for managing budgets, prompt configurations, and reprocessing",
	}

	rootCmd.AddCommand(commands.NewBudgetCmd())
	rootCmd.AddCommand(commands.NewPromptCmd())
	rootCmd.AddCommand(commands.NewReprocessCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
