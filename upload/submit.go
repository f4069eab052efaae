// Package upload stages statement files, submits a batch to the backend and
// reconciles the response into processed and skipped partitions.
package upload

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jmcleod/cardledger/client"
	"github.com/jmcleod/cardledger/metrics"
)

var (
	// ErrBusy is returned when a submission is already in flight for the
	// staging area. The call is rejected, not queued.
	ErrBusy = errors.New("upload already in progress")
	// ErrDetached is returned when the consumer detached while the request
	// was outstanding. The response was discarded.
	ErrDetached = errors.New("upload view detached")
	// ErrSignedOut is returned when no credential is available.
	ErrSignedOut = errors.New("not signed in")
)

const (
	emptySelectionMessage = "Please choose at least one PDF file to upload."
	uploadFallbackMessage = "An error occurred during upload."
)

// ValidationError is a local input problem found before any network call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// SubmitError is the single aggregate error for a failed submission.
type SubmitError struct {
	Err error
}

func (e *SubmitError) Error() string {
	return "Upload failed: " + client.Detail(e.Err, uploadFallbackMessage)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Uploader sends a batch to the backend.
type Uploader interface {
	Upload(ctx context.Context, token string, parts []client.Part) (client.UploadResponse, error)
}

// TokenSource yields the current credential.
type TokenSource interface {
	Token() (string, bool)
}

// Submitter submits the batch held by one StagingArea.
type Submitter struct {
	area     *StagingArea
	uploader Uploader
	tokens   TokenSource
	logger   *slog.Logger
	metrics  *metrics.Recorder
	onAuth   func(error)

	mu       sync.Mutex
	busy     bool
	detached bool
	result   *Result
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

func WithLogger(logger *slog.Logger) SubmitterOption {
	return func(s *Submitter) { s.logger = logger }
}

func WithMetrics(m *metrics.Recorder) SubmitterOption {
	return func(s *Submitter) { s.metrics = m }
}

// WithUnauthorizedHandler is called when the backend rejects the
// credential, typically to end the session.
func WithUnauthorizedHandler(fn func(error)) SubmitterOption {
	return func(s *Submitter) { s.onAuth = fn }
}

// NewSubmitter creates a Submitter for area.
func NewSubmitter(area *StagingArea, uploader Uploader, tokens TokenSource, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		area:     area,
		uploader: uploader,
		tokens:   tokens,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "upload")
	return s
}

// Submit uploads the staged batch once. On success the reconciled result
// replaces the previous one and the staging area is cleared, unless it was
// re-staged meanwhile. On failure staging and the previous result are left
// as they were.
func (s *Submitter) Submit(ctx context.Context) (Result, error) {
	s.mu.Lock()
	switch {
	case s.detached:
		s.mu.Unlock()
		return Result{}, ErrDetached
	case s.busy:
		s.mu.Unlock()
		return Result{}, ErrBusy
	}
	files, gen := s.area.snapshot()
	if len(files) == 0 {
		s.mu.Unlock()
		return Result{}, &ValidationError{Message: emptySelectionMessage}
	}
	s.busy = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	token, ok := s.tokens.Token()
	if !ok {
		return Result{}, &SubmitError{Err: ErrSignedOut}
	}

	names := make([]string, len(files))
	parts := make([]client.Part, len(files))
	for i, f := range files {
		names[i] = f.Name()
		parts[i] = f
	}

	s.logger.Info("submitting upload", "files", len(files), "generation", gen)
	resp, err := s.uploader.Upload(ctx, token, parts)

	s.mu.Lock()
	detached := s.detached
	s.mu.Unlock()
	if detached {
		s.logger.Debug("discarding upload response for detached view")
		return Result{}, ErrDetached
	}

	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) && s.onAuth != nil {
			s.onAuth(err)
		}
		s.logger.Warn("upload failed", "error", err)
		return Result{}, &SubmitError{Err: err}
	}

	res, err := Reconcile(names, resp)
	if err != nil {
		s.logger.Warn("rejecting upload response", "error", err)
		return Result{}, &SubmitError{Err: err}
	}

	s.mu.Lock()
	s.result = &res
	s.mu.Unlock()
	cleared := s.area.clearIf(gen)
	s.metrics.AddUploaded(len(res.Processed), len(res.Skipped))
	s.logger.Info("upload complete",
		"processed", len(res.Processed),
		"skipped", len(res.Skipped),
		"staging_cleared", cleared)
	return res, nil
}

// Result returns the last committed result.
func (s *Submitter) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

// Busy reports whether a submission is in flight.
func (s *Submitter) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Detach marks the consuming view as gone. Outstanding and later
// submissions return ErrDetached without touching any state.
func (s *Submitter) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached = true
}
