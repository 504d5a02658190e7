// Package source lists and loads invoice files from local directories and
// FTP drops.
package source

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/wheelerbb/gcp-invoice-intel/internal/ocr"
)

// Item is one invoice file a Source can load.
type Item struct {
	// Name is the original filename.
	Name string
	// Path is where the file lives: a local path or an ftp:// URL.
	Path string
	Size int64
}

// Source enumerates invoice files and loads their content.
type Source interface {
	List(ctx context.Context) ([]Item, error)
	Load(ctx context.Context, item Item) (ocr.Document, error)
}

// Options configures Open.
type Options struct {
	// Extensions limits listing to these lowercase extensions without the dot.
	Extensions []string
	// Timeout bounds FTP dials.
	Timeout time.Duration
}

// DefaultExtensions are the file types the extractors accept.
var DefaultExtensions = []string{"pdf", "png", "jpg", "jpeg", "tif", "tiff", "gif", "webp"}

// Open picks a Source for target: an ftp:// URL or a local directory.
func Open(target string, opts Options) (Source, error) {
	if strings.HasPrefix(strings.ToLower(target), "ftp://") {
		return NewFTP(target, opts)
	}
	return NewDir(target, opts)
}

type extSet map[string]struct{}

func newExtSet(exts []string) extSet {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	s := make(extSet, len(exts))
	for _, e := range exts {
		s[strings.TrimPrefix(strings.ToLower(e), ".")] = struct{}{}
	}
	return s
}

func (s extSet) allowed(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	_, ok := s[strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")]
	return ok
}
