package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/export"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/store/postgres"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the full event log as JSONL",
	RunE: func(cmd *cobra.Command, args []string) error {
		if databaseURL == "" {
			return fmt.Errorf("--database-url or ADI_DATABASE_URL is required")
		}

		log, err := postgres.New(databaseURL)
		if err != nil {
			return err
		}
		defer log.Close()

		out := os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		return export.JSONL(context.Background(), log, out)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
}
