package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
)

// processedSubdir is where durable copies of preprocessed output live under
// the alternate output folder on remote storage.
const processedSubdir = ".processeddata"

// reconcile repairs the symbolic links an in-place import created against
// ephemeral preprocessing output. Durable copies of that output live in
// remote storage under the alternate output folder's processed-data
// subfolder; every link under the managed repository that points into the
// local output folder is rewritten to the durable location, then the local
// output folder is removed.
func (p *Pipeline) reconcile(order *model.Order) error {
	out := filepath.Clean(order.Preprocessing.OutputFolder)
	durable := filepath.Join(order.Preprocessing.AltOutputFolder, processedSubdir)

	if root := p.opts.ManagedRepoDir; root != "" {
		if err := relinkTree(root, out, durable); err != nil {
			return err
		}
	}

	if err := os.RemoveAll(out); err != nil {
		return fmt.Errorf("remove ephemeral output %s: %w", out, err)
	}
	p.logger.Info("reconciled in-place import",
		"uuid", order.UUID, "ephemeral", out, "durable", durable)
	return nil
}

// relinkTree walks root and re-points every symlink whose target lies
// under oldBase at the equivalent path under newBase.
func relinkTree(root, oldBase, newBase string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		target, err := os.Readlink(path)
		if err != nil {
			return fmt.Errorf("readlink %s: %w", path, err)
		}
		rel, ok := pathWithin(target, oldBase)
		if !ok {
			return nil
		}
		newTarget := filepath.Join(newBase, rel)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("unlink %s: %w", path, err)
		}
		if err := os.Symlink(newTarget, path); err != nil {
			return fmt.Errorf("relink %s -> %s: %w", path, newTarget, err)
		}
		return nil
	})
}

// pathWithin returns target's path relative to base and whether target
// lies under base.
func pathWithin(target, base string) (string, bool) {
	target = filepath.Clean(target)
	base = filepath.Clean(base)
	if target == base {
		return ".", true
	}
	prefix := base + string(filepath.Separator)
	if !strings.HasPrefix(target, prefix) {
		return "", false
	}
	return strings.TrimPrefix(target, prefix), true
}
