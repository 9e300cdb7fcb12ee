package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/idgen"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/store/postgres"
)

var (
	submitGroup         string
	submitGroupID       int64
	submitUsername      string
	submitDestination   string
	submitPreprocessing string
)

// preprocessingProfile is the on-disk shape of a --preprocessing TOML file.
type preprocessingProfile struct {
	Container       string            `toml:"container"`
	InputFile       string            `toml:"inputfile"`
	OutputFolder    string            `toml:"outputfolder"`
	AltOutputFolder string            `toml:"altoutputfolder"`
	Kwargs          map[string]string `toml:"kwargs"`
}

var submitCmd = &cobra.Command{
	Use:   "submit FILE...",
	Short: "Submit a new import order",
	Long: `Submit appends a submitted event for the given files. The running
service picks the order up on its next poll; this command does not wait
for the import to complete.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if databaseURL == "" {
			return fmt.Errorf("--database-url or ADI_DATABASE_URL is required")
		}
		if submitGroup == "" || submitGroupID <= 0 || submitUsername == "" {
			return fmt.Errorf("--group, --group-id and --user are required")
		}
		if _, _, err := model.ParseDestination(submitDestination); err != nil {
			return err
		}

		var prep *model.Preprocessing
		if submitPreprocessing != "" {
			var profile preprocessingProfile
			if _, err := toml.DecodeFile(submitPreprocessing, &profile); err != nil {
				return fmt.Errorf("preprocessing profile: %w", err)
			}
			prep = &model.Preprocessing{
				Container:       profile.Container,
				InputFile:       profile.InputFile,
				OutputFolder:    profile.OutputFolder,
				AltOutputFolder: profile.AltOutputFolder,
				Kwargs:          profile.Kwargs,
			}
		}

		uuid, err := idgen.Generate()
		if err != nil {
			return err
		}

		names := make([]string, len(args))
		for i, f := range args {
			names[i] = filepath.Base(f)
		}

		log, err := postgres.New(databaseURL)
		if err != nil {
			return err
		}
		defer log.Close()

		ev := &model.Event{
			Group:         submitGroup,
			GroupID:       submitGroupID,
			Username:      submitUsername,
			DestinationID: submitDestination,
			Stage:         model.StageSubmitted,
			UUID:          uuid,
			Files:         args,
			FileNames:     names,
			Preprocessing: prep,
		}
		if err := log.Append(context.Background(), ev); err != nil {
			return err
		}

		fmt.Println(uuid)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitGroup, "group", "", "target group name")
	submitCmd.Flags().Int64Var(&submitGroupID, "group-id", 0, "target group id")
	submitCmd.Flags().StringVar(&submitUsername, "user", "", "target username")
	submitCmd.Flags().StringVar(&submitDestination, "dest", "", "destination, e.g. Dataset:5 or Screen:2")
	submitCmd.Flags().StringVar(&submitPreprocessing, "preprocessing", "", "path to a TOML preprocessing profile")
}
