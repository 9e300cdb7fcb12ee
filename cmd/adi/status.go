package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/store/postgres"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/ui"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status UUID",
	Short: "Show the full event history of an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if databaseURL == "" {
			return fmt.Errorf("--database-url or ADI_DATABASE_URL is required")
		}

		log, err := postgres.New(databaseURL)
		if err != nil {
			return err
		}
		defer log.Close()

		events, err := log.History(context.Background(), args[0])
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return fmt.Errorf("no events for %s", args[0])
		}

		if statusJSON || !ui.StdoutIsTerminal() {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(events)
		}

		printHistory(events)
		return nil
	},
}

func printHistory(events []*model.Event) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTAGE\tCREATED\tUSER\tDEST\tDETAIL")
	for _, ev := range events {
		detail := ev.Error
		if detail == "" && ev.Stage == model.StageSubmitted {
			detail = strings.Join(ev.FileNames, ",")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			ev.ID, ev.Stage, ev.CreatedAt.Format("2006-01-02 15:04:05"),
			ev.Username, ev.DestinationID, detail)
	}
	w.Flush()
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}
