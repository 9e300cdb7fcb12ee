package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/omero"
)

// sidecarSuffix names the optional two-column metadata file placed beside
// a source file, e.g. "scan.tif" -> "scan.tif.metadata.csv".
const sidecarSuffix = ".metadata.csv"

// annotate attaches key/value metadata to every object a file import
// created. Failures are logged and never change the order's outcome.
func (p *Pipeline) annotate(ctx context.Context, sess omero.Session, order *model.Order, res fileResult) {
	kv := map[string]string{
		"adi_uuid":    order.UUID,
		"source_path": res.Src,
	}

	sidecar, err := sidecarMetadata(res.Src)
	if err != nil {
		p.logger.Warn("sidecar metadata unreadable",
			"uuid", order.UUID, "file", res.Src, "err", err)
	}
	for k, v := range sidecar {
		kv[k] = v
	}

	for _, id := range res.IDs {
		if _, err := sess.Annotate(ctx, id, kv); err != nil {
			p.logger.Warn("annotation failed",
				"uuid", order.UUID, "object", id, "err", err)
		}
	}
}

// sidecarMetadata parses the two-column metadata file beside the source
// file, if present. Columns are separated by a tab or the first comma;
// blank lines and #-comments are skipped.
func sidecarMetadata(srcPath string) (map[string]string, error) {
	f, err := os.Open(srcPath + sidecarSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	kv := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var key, val string
		if k, v, ok := strings.Cut(line, "\t"); ok {
			key, val = k, v
		} else if k, v, ok := strings.Cut(line, ","); ok {
			key, val = k, v
		} else {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		kv[key] = strings.TrimSpace(val)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sidecar: %w", err)
	}
	return kv, nil
}
