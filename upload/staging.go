package upload

import (
	"path/filepath"
	"strings"
	"sync"
)

// DropState is the drag-and-drop state of a staging area.
type DropState int

const (
	Idle DropState = iota
	DragOver
	Dropped
)

func (s DropState) String() string {
	switch s {
	case DragOver:
		return "drag_over"
	case Dropped:
		return "dropped"
	default:
		return "idle"
	}
}

// DefaultAccept is the extension filter applied when none is configured.
var DefaultAccept = []string{".pdf"}

// StagingArea holds the candidate batch for the next upload. Every
// selection or drop replaces the batch; nothing is ever merged.
type StagingArea struct {
	accept []string

	mu         sync.Mutex
	state      DropState
	beforeDrag DropState
	files      []File
	generation uint64
}

// StagingOption configures a StagingArea.
type StagingOption func(*StagingArea)

// WithAccept sets the accepted file extensions (case-insensitive, with or
// without the leading dot). An empty list accepts everything.
func WithAccept(exts ...string) StagingOption {
	return func(a *StagingArea) {
		a.accept = normalizeExts(exts)
	}
}

// NewStagingArea returns an empty, idle staging area.
func NewStagingArea(opts ...StagingOption) *StagingArea {
	a := &StagingArea{accept: normalizeExts(DefaultAccept)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// Accepts reports whether name passes the extension filter.
func (a *StagingArea) Accepts(name string) bool {
	if len(a.accept) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range a.accept {
		if e == ext {
			return true
		}
	}
	return false
}

// Accept returns the configured extension filter.
func (a *StagingArea) Accept() []string {
	return append([]string(nil), a.accept...)
}

// Select replaces the batch with the accepted subset of files chosen with
// a picker. Names that failed the filter are returned.
func (a *StagingArea) Select(files []File) (rejected []string) {
	return a.replace(files, Idle)
}

// Drop replaces the batch with the accepted subset of dropped files.
func (a *StagingArea) Drop(files []File) (rejected []string) {
	return a.replace(files, Dropped)
}

func (a *StagingArea) replace(files []File, next DropState) []string {
	accepted := make([]File, 0, len(files))
	var rejected []string
	for _, f := range files {
		if a.Accepts(f.Name()) {
			accepted = append(accepted, f)
		} else {
			rejected = append(rejected, f.Name())
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.files = accepted
	a.state = next
	a.generation++
	return rejected
}

// DragEnter marks a drag hovering over the area.
func (a *StagingArea) DragEnter() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != DragOver {
		a.beforeDrag = a.state
		a.state = DragOver
	}
}

// DragLeave cancels a hover without changing the batch.
func (a *StagingArea) DragLeave() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == DragOver {
		a.state = a.beforeDrag
	}
}

// State returns the current drag-and-drop state.
func (a *StagingArea) State() DropState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Files returns a copy of the staged batch.
func (a *StagingArea) Files() []File {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]File(nil), a.files...)
}

// Len returns the number of staged files.
func (a *StagingArea) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.files)
}

// Generation increments on every replacement of the batch.
func (a *StagingArea) Generation() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generation
}

// Clear empties the batch and returns to Idle.
func (a *StagingArea) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clearLocked()
}

func (a *StagingArea) clearLocked() {
	a.files = nil
	a.state = Idle
	a.beforeDrag = Idle
	a.generation++
}

func (a *StagingArea) snapshot() ([]File, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]File(nil), a.files...), a.generation
}

// clearIf clears the batch only if it has not been replaced since gen.
func (a *StagingArea) clearIf(gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation != gen {
		return false
	}
	a.clearLocked()
	return true
}
