package upload

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ledongthuc/pdf"
)

// Picker expands paths and glob patterns (including "**") into file
// handles, the way a file dialog would hand a selection to the staging
// area.
type Picker struct {
	logger *slog.Logger
}

// NewPicker creates a Picker. A nil logger uses slog.Default().
func NewPicker(logger *slog.Logger) *Picker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Picker{logger: logger.With("component", "picker")}
}

// Pick resolves every pattern and returns the matching regular files in
// pattern order, each pattern's matches sorted, duplicates dropped. A
// pattern that matches nothing is an error.
func (p *Picker) Pick(patterns ...string) ([]File, error) {
	var files []File
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}
		sort.Strings(matches)
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				abs = m
			}
			if seen[abs] {
				continue
			}
			seen[abs] = true

			f, err := FileFromPath(m)
			if err != nil {
				return nil, err
			}
			if strings.EqualFold(filepath.Ext(m), ".pdf") {
				f.pages = p.pageCount(m)
			}
			files = append(files, f)
		}
	}
	return files, nil
}

// pageCount reads the page tree of a PDF. The count is informational: a
// file that cannot be parsed reports 0 and is still staged, since the
// backend decides what it accepts.
func (p *Picker) pageCount(path string) (pages int) {
	// The pdf reader panics on some malformed input.
	defer func() {
		if r := recover(); r != nil {
			p.logger.Debug("unreadable pdf", "path", path, "panic", r)
			pages = 0
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		p.logger.Debug("unreadable pdf", "path", path, "error", err)
		return 0
	}
	defer f.Close()
	return r.NumPage()
}
