package upload

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmcleod/cardledger/client"
	"github.com/jmcleod/cardledger/internal/util"
)

// ErrInconsistentResult is returned when an upload response does not
// account for every submitted file exactly once.
var ErrInconsistentResult = errors.New("inconsistent upload result")

// Reason explains why a file was skipped.
type Reason string

// ReasonDuplicate is decided by the backend; the client does not know how.
const ReasonDuplicate Reason = "duplicate"

// Processed is a file the backend extracted data from.
type Processed struct {
	Filename string        `json:"filename"`
	Issuer   string        `json:"issuer"`
	Fields   client.Fields `json:"fields"`
}

// Skipped is a file the backend did not process.
type Skipped struct {
	Filename string `json:"filename"`
	Reason   Reason `json:"reason"`
}

// Result partitions one submitted batch. Every submitted file appears in
// exactly one partition.
type Result struct {
	Processed []Processed `json:"processed"`
	Skipped   []Skipped   `json:"skipped"`
}

// Len is the number of files the result accounts for.
func (r Result) Len() int { return len(r.Processed) + len(r.Skipped) }

// Summary is the user-facing completion message.
func (r Result) Summary() string {
	var b strings.Builder
	b.WriteString("Upload complete.")
	if n := len(r.Processed); n > 0 {
		fmt.Fprintf(&b, " %d file(s) processed.", n)
	}
	if n := len(r.Skipped); n > 0 {
		fmt.Fprintf(&b, " %d file(s) were duplicates and skipped.", n)
	}
	return b.String()
}

// Reconcile partitions resp against the submitted file names. Names are
// compared after Unicode normalization and matched as a multiset, so a
// batch may carry the same name twice. A response that names a file that
// was not submitted, leaves one out or reports it in both partitions is
// rejected and nothing is committed.
func Reconcile(submitted []string, resp client.UploadResponse) (Result, error) {
	pending := make(map[string]int, len(submitted))
	for _, name := range submitted {
		pending[util.NormalizeName(name)]++
	}
	processedNames := make(map[string]bool, len(resp.Processed))

	res := Result{
		Processed: make([]Processed, 0, len(resp.Processed)),
		Skipped:   make([]Skipped, 0, len(resp.Skipped)),
	}
	for _, p := range resp.Processed {
		key := util.NormalizeName(p.Filename)
		if pending[key] == 0 {
			return Result{}, fmt.Errorf("%w: processed file %q was not submitted", ErrInconsistentResult, p.Filename)
		}
		pending[key]--
		processedNames[key] = true
		res.Processed = append(res.Processed, Processed{
			Filename: p.Filename,
			Issuer:   p.Issuer,
			Fields:   p.Data,
		})
	}
	for _, name := range resp.Skipped {
		key := util.NormalizeName(name)
		if pending[key] == 0 {
			if processedNames[key] {
				return Result{}, fmt.Errorf("%w: file %q is both processed and skipped", ErrInconsistentResult, name)
			}
			return Result{}, fmt.Errorf("%w: skipped file %q was not submitted", ErrInconsistentResult, name)
		}
		pending[key]--
		res.Skipped = append(res.Skipped, Skipped{Filename: name, Reason: ReasonDuplicate})
	}
	for _, name := range submitted {
		if pending[util.NormalizeName(name)] > 0 {
			return Result{}, fmt.Errorf("%w: no outcome for %q", ErrInconsistentResult, name)
		}
	}
	return res, nil
}
