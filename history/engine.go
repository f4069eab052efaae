// Package history tracks the active filter criteria, keeps the filtered
// record set and the stable issuer options in sync with the backend, and
// exports the filtered history.
package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jmcleod/cardledger/client"
)

var (
	// ErrSuperseded is returned when the criteria changed while a fetch was
	// outstanding. Its response was dropped.
	ErrSuperseded = errors.New("history criteria changed")
	// ErrDetached is returned once the consuming view has detached.
	ErrDetached = errors.New("history view detached")
	// ErrSignedOut is returned when no credential is available.
	ErrSignedOut = errors.New("not signed in")
)

const fetchFallbackMessage = "Failed to fetch history"

// FetchError is the aggregate error for a failed history fetch.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return fetchFallbackMessage }

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher lists history records.
type Fetcher interface {
	History(ctx context.Context, token string, criteria client.Criteria) ([]client.HistoryRecord, error)
}

// TokenSource yields the current credential.
type TokenSource interface {
	Token() (string, bool)
}

// View is a consistent snapshot of the engine.
type View struct {
	Criteria client.Criteria        `json:"criteria"`
	Summary  string                 `json:"summary"`
	Records  []client.HistoryRecord `json:"records"`
	Issuers  []string               `json:"issuers"`
	Loading  bool                   `json:"loading"`
	Error    string                 `json:"error,omitempty"`
}

// Engine owns the filter criteria and the record set fetched for them.
// Each criteria change triggers exactly one fetch. Issuer options are
// fetched once, unfiltered, and never derived from filtered records.
type Engine struct {
	fetcher Fetcher
	tokens  TokenSource
	logger  *slog.Logger
	onAuth  func(error)

	mu         sync.Mutex
	criteria   client.Criteria
	records    []client.HistoryRecord
	issuers    []string
	generation uint64
	loading    bool
	lastErr    error
	detached   bool
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithUnauthorizedHandler is called when the backend rejects the
// credential.
func WithUnauthorizedHandler(fn func(error)) Option {
	return func(e *Engine) { e.onAuth = fn }
}

// NewEngine creates an Engine with empty criteria.
func NewEngine(fetcher Fetcher, tokens TokenSource, opts ...Option) *Engine {
	e := &Engine{fetcher: fetcher, tokens: tokens}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "history")
	return e
}

// Mount loads the issuer options and the first record set concurrently.
// A failure to load issuers is logged and leaves the options empty; the
// returned error concerns the record set only.
func (e *Engine) Mount(ctx context.Context) error {
	return e.mount(ctx, nil)
}

// MountWith is Mount with criteria applied before the first record fetch.
// Issuer options still come from an unfiltered fetch.
func (e *Engine) MountWith(ctx context.Context, criteria client.Criteria) error {
	return e.mount(ctx, &criteria)
}

func (e *Engine) mount(ctx context.Context, initial *client.Criteria) error {
	e.mu.Lock()
	if e.detached {
		e.mu.Unlock()
		return ErrDetached
	}
	if initial != nil {
		e.criteria = *initial
	}
	e.generation++
	gen, criteria := e.generation, e.criteria
	e.loading = true
	e.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		if err := e.loadIssuers(ctx); err != nil {
			e.logger.Warn("could not fetch issuers", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		return e.fetch(ctx, criteria, gen)
	})
	return g.Wait()
}

func (e *Engine) loadIssuers(ctx context.Context) error {
	token, ok := e.tokens.Token()
	if !ok {
		return ErrSignedOut
	}
	recs, err := e.fetcher.History(ctx, token, client.Criteria{})
	if err != nil {
		return err
	}
	issuers := uniqueIssuers(recs)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		return ErrDetached
	}
	e.issuers = issuers
	return nil
}

// uniqueIssuers keeps first-seen order.
func uniqueIssuers(recs []client.HistoryRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range recs {
		if r.Issuer == "" || seen[r.Issuer] {
			continue
		}
		seen[r.Issuer] = true
		out = append(out, r.Issuer)
	}
	return out
}

// SetIssuer changes the issuer filter ("" for all) and re-fetches.
func (e *Engine) SetIssuer(ctx context.Context, issuer string) error {
	return e.update(ctx, func(c *client.Criteria) { c.Issuer = issuer })
}

// SetPeriod changes the period filter ("" for any time) and re-fetches.
func (e *Engine) SetPeriod(ctx context.Context, period client.Period) error {
	return e.update(ctx, func(c *client.Criteria) { c.Period = period })
}

// SetCriteria replaces both filters and re-fetches.
func (e *Engine) SetCriteria(ctx context.Context, criteria client.Criteria) error {
	return e.update(ctx, func(c *client.Criteria) { *c = criteria })
}

// ClearFilters resets both filters and re-fetches.
func (e *Engine) ClearFilters(ctx context.Context) error {
	return e.update(ctx, func(c *client.Criteria) { *c = client.Criteria{} })
}

func (e *Engine) update(ctx context.Context, mutate func(*client.Criteria)) error {
	e.mu.Lock()
	if e.detached {
		e.mu.Unlock()
		return ErrDetached
	}
	mutate(&e.criteria)
	e.generation++
	gen, criteria := e.generation, e.criteria
	e.loading = true
	e.mu.Unlock()

	return e.fetch(ctx, criteria, gen)
}

// fetch loads records for criteria and commits them only if gen is still
// the latest generation.
func (e *Engine) fetch(ctx context.Context, criteria client.Criteria, gen uint64) error {
	token, ok := e.tokens.Token()
	var recs []client.HistoryRecord
	var err error
	if !ok {
		err = ErrSignedOut
	} else {
		recs, err = e.fetcher.History(ctx, token, criteria)
	}

	e.mu.Lock()
	if e.detached {
		e.mu.Unlock()
		return ErrDetached
	}
	if gen != e.generation {
		e.mu.Unlock()
		e.logger.Debug("dropping superseded history response", "generation", gen)
		return ErrSuperseded
	}
	e.loading = false
	if err != nil {
		fetchErr := &FetchError{Err: err}
		e.lastErr = fetchErr
		e.mu.Unlock()
		e.logger.Warn("history fetch failed", "error", err)
		e.authFailure(err)
		return fetchErr
	}
	e.lastErr = nil
	if recs == nil {
		recs = []client.HistoryRecord{}
	}
	e.records = recs
	e.mu.Unlock()
	return nil
}

func (e *Engine) authFailure(err error) {
	if errors.Is(err, client.ErrUnauthorized) && e.onAuth != nil {
		e.onAuth(err)
	}
}

// Criteria returns the active criteria.
func (e *Engine) Criteria() client.Criteria {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.criteria
}

// Records returns the current record set.
func (e *Engine) Records() []client.HistoryRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]client.HistoryRecord(nil), e.records...)
}

// Issuers returns the issuer options loaded at mount.
func (e *Engine) Issuers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.issuers...)
}

// View returns a snapshot of criteria, records, options and status.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := View{
		Criteria: e.criteria,
		Summary:  e.criteria.Summary(),
		Records:  append([]client.HistoryRecord{}, e.records...),
		Issuers:  append([]string{}, e.issuers...),
		Loading:  e.loading,
	}
	if e.lastErr != nil {
		v.Error = e.lastErr.Error()
	}
	return v
}

// Detach marks the consuming view as gone. Outstanding responses are
// dropped and later calls return ErrDetached.
func (e *Engine) Detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detached = true
}
