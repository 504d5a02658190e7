package source

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/wheelerbb/gcp-invoice-intel/internal/ocr"
)

// Dir lists invoice files under a local directory, recursively.
type Dir struct {
	root string
	exts extSet
}

// NewDir creates a Dir source. root must be an existing directory.
func NewDir(root string, opts Options) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, eris.Wrapf(err, "source: stat %s", root)
	}
	if !info.IsDir() {
		return nil, eris.Errorf("source: %s is not a directory", root)
	}
	return &Dir{root: root, exts: newExtSet(opts.Extensions)}, nil
}

// List walks the directory and returns matching files sorted by path.
func (d *Dir) List(ctx context.Context) ([]Item, error) {
	var items []Item
	err := filepath.WalkDir(d.root, func(path string, e fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() {
			if path != d.root && len(e.Name()) > 0 && e.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if !e.Type().IsRegular() || !d.exts.allowed(path) {
			return nil
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		items = append(items, Item{Name: e.Name(), Path: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "source: walk %s", d.root)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items, nil
}

// Load reads a file from disk.
func (d *Dir) Load(_ context.Context, item Item) (ocr.Document, error) {
	return LoadFile(item.Path)
}

// LoadFile reads a local invoice file into a Document.
func LoadFile(path string) (ocr.Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return ocr.Document{}, eris.Wrapf(err, "source: read %s", path)
	}
	return ocr.Document{Name: filepath.Base(path), Content: data}, nil
}
