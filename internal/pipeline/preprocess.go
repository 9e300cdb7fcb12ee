package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/runner"
)

// Container-side mount points handed to the preprocessing image.
const (
	containerInputDir  = "/data/in"
	containerOutputDir = "/data/out"
)

// filePlaceholder in the input-file template is replaced with the
// container-side path of the file being processed.
const filePlaceholder = "{file}"

// PreprocessingError marks a fatal preprocessing failure: a missing
// required parameter or a failed container run. Never retried, and no
// upload is attempted afterwards.
type PreprocessingError struct {
	Reason string
}

func (e *PreprocessingError) Error() string {
	return "preprocessing: " + e.Reason
}

// validatePreprocessing checks the required parameters before any
// container is run, so an incomplete order has no partial side effects.
func validatePreprocessing(p *model.Preprocessing) error {
	var missing []string
	if strings.TrimSpace(p.Container) == "" {
		missing = append(missing, "container")
	}
	if strings.TrimSpace(p.InputFile) == "" {
		missing = append(missing, "inputfile")
	}
	if strings.TrimSpace(p.OutputFolder) == "" {
		missing = append(missing, "outputfolder")
	}
	if len(missing) > 0 {
		return &PreprocessingError{Reason: "missing required parameters: " + strings.Join(missing, ", ")}
	}
	return nil
}

// preprocess runs the order's container once per file with the input and
// output directories bind-mounted, returning the preprocessed output paths
// that replace the original files for upload.
func (p *Pipeline) preprocess(ctx context.Context, order *model.Order) ([]string, error) {
	prep := order.Preprocessing
	if err := validatePreprocessing(prep); err != nil {
		return nil, err
	}

	outs := make([]string, len(order.Files))
	for i, file := range order.Files {
		base := filepath.Base(file)
		mounts := []runner.Mount{
			{Host: filepath.Dir(file), Container: containerInputDir},
			{Host: prep.OutputFolder, Container: containerOutputDir},
		}
		args := preprocessArgs(prep, base)

		res, err := p.runner.Run(ctx, prep.Container, args, mounts)
		if err != nil {
			return nil, &PreprocessingError{Reason: fmt.Sprintf("%s on %s: %v", prep.Container, base, err)}
		}
		if res.ExitCode != 0 {
			return nil, &PreprocessingError{
				Reason: fmt.Sprintf("%s on %s: exit %d: %s", prep.Container, base, res.ExitCode, res.Output),
			}
		}

		p.logger.Info("preprocessing finished",
			"uuid", order.UUID, "file", base, "container", prep.Container)
		outs[i] = filepath.Join(prep.OutputFolder, base)
	}
	return outs, nil
}

// preprocessArgs expands the input-file template for one file and appends
// the extra key/value parameters in a deterministic order.
func preprocessArgs(prep *model.Preprocessing, base string) []string {
	input := strings.ReplaceAll(prep.InputFile, filePlaceholder, filepath.Join(containerInputDir, base))
	args := []string{"--inputfile", input, "--outputfolder", containerOutputDir}

	keys := make([]string, 0, len(prep.Kwargs))
	for k := range prep.Kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--"+k, prep.Kwargs[k])
	}
	return args
}
