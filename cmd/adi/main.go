package main

import (
	"os"

	"github.com/spf13/cobra"
)

var databaseURL string

func defaultDatabaseURL() string {
	return os.Getenv("ADI_DATABASE_URL")
}

var rootCmd = &cobra.Command{
	Use:   "adi",
	Short: "Automated data import service for OMERO",
	Long: `adi watches an import order table, uploads the ordered files into an
OMERO server on behalf of the requesting users, and records every lifecycle
transition as an immutable event.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", defaultDatabaseURL(), "Postgres connection string")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
