// Command pcrtrack is the project and budget tracking backend.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pcrtrack",
	Short: "Project, budget, and cost tracking backend",
	Long: `pcrtrack is the backend for a project and budget tracking application.
It keeps an authoritative in-memory state mirror over a local SQLite or
PostgreSQL backend, enforces role-based permissions on every mutation, and
notifies affected users when state changes.`,
	RunE:          runServe, // Default to server mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, tokenCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
