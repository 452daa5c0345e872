package fetcher

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kennygrant/sanitize"
)

// PageDumper writes raw page markup to disk for debugging.
type PageDumper struct {
	dir string
}

// NewPageDumper creates a dumper writing into dir.
func NewPageDumper(dir string) *PageDumper {
	return &PageDumper{dir: dir}
}

// Path returns the file a page title is written to.
func (d *PageDumper) Path(title string) string {
	name := sanitize.BaseName(title)
	if name == "" {
		name = "page"
	}
	return filepath.Join(d.dir, name+".html")
}

// Write stores body under the file derived from title.
func (d *PageDumper) Write(title, body string) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("create dump dir: %w", err)
	}
	if err := os.WriteFile(d.Path(title), []byte(body), 0o644); err != nil {
		return fmt.Errorf("write page dump: %w", err)
	}
	return nil
}
