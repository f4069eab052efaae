// Package session derives identity and role from the stored credential and
// drives the signed-in/signed-out state machine.
//
// The transitions (Login, Logout, Derive) are pure and return an Intent.
// Session is the single place that applies intents: it writes the
// credential store, commits the state and performs navigation.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmcleod/cardledger/credential"
	"github.com/jmcleod/cardledger/metrics"
)

// Session owns the current State for one credential store.
type Session struct {
	store   credential.Store
	deriver *Deriver
	nav     Navigator
	logger  *slog.Logger
	metrics *metrics.Recorder
	audit   *auditLogger
	observe func(prev, next State)

	// writeMu serializes transitions. mu guards state and token and is
	// never held across a store write, since stores notify synchronously.
	writeMu sync.Mutex
	mu      sync.RWMutex
	state   State
	token   string // token the state was derived from

	unsubscribe func()
}

// Option configures a Session.
type Option func(*Session)

func WithNavigator(nav Navigator) Option {
	return func(s *Session) { s.nav = nav }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Session) { s.metrics = m }
}

// WithIdentityObserver registers fn to run after every committed change of
// the signed-in identity (subject or role), whether it came from this
// session or from another writer of the store. fn runs synchronously; for
// changes made by Login, Logout or Expire it runs inside that transition,
// so it must not start another one on the same session.
func WithIdentityObserver(fn func(prev, next State)) Option {
	return func(s *Session) { s.observe = fn }
}

// New derives the initial state from whatever store holds and, when the
// store supports it, subscribes to slot changes. An undecodable stored token
// is cleared before New returns.
func New(store credential.Store, deriver *Deriver, opts ...Option) (*Session, error) {
	if deriver == nil {
		deriver = NewDeriver()
	}
	s := &Session{
		store:   store,
		deriver: deriver,
		nav:     discardNavigator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.audit = newAuditLogger(s.logger, s.metrics)

	if err := s.refresh(false); err != nil {
		return nil, err
	}
	if sub, ok := store.(credential.Subscriber); ok {
		s.unsubscribe = sub.Subscribe(s.onChange)
	}
	return s, nil
}

// Close stops listening to the store.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Token returns the token the current state was derived from.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.state.Authenticated() {
		return "", false
	}
	return s.token, true
}

// Login commits token and navigates to the role's home route. A token that
// does not decode clears the store, leaves the session Anonymous, navigates
// to the login route and returns the *DecodeError.
func (s *Session) Login(token string) error {
	s.writeMu.Lock()
	next, intent, decodeErr := Login(s.deriver, token)
	err := s.apply(next, intent)
	s.writeMu.Unlock()
	if err != nil {
		return err
	}

	if decodeErr != nil {
		s.audit.logFailure(AuditLoginRejected, decodeErr)
	} else {
		u, _ := next.User()
		s.audit.logUser(AuditLoginSuccess, u)
	}
	s.nav.Navigate(intent.Navigate)
	return decodeErr
}

// Logout clears the credential and navigates to the login route.
func (s *Session) Logout() error {
	s.writeMu.Lock()
	prev := s.State()
	next, intent := Logout()
	err := s.apply(next, intent)
	s.writeMu.Unlock()
	if err != nil {
		return err
	}
	if u, ok := prev.User(); ok {
		s.audit.logUser(AuditLogout, u)
	} else {
		s.audit.log(AuditLogout)
	}
	s.nav.Navigate(intent.Navigate)
	return nil
}

// Expire handles an authorization failure reported by the backend during
// session use: the credential is dropped and the caller is sent to log in
// again.
func (s *Session) Expire(reason error) error {
	s.writeMu.Lock()
	next, intent := Logout()
	err := s.apply(next, intent)
	s.writeMu.Unlock()
	if err != nil {
		return err
	}
	if reason == nil {
		reason = errors.New("unauthorized")
	}
	s.audit.logFailure(AuditSessionExpired, reason)
	s.nav.Navigate(intent.Navigate)
	return nil
}

func (s *Session) apply(next State, intent Intent) error {
	switch intent.Store {
	case StoreSet:
		if err := s.store.Set(intent.Token); err != nil {
			return fmt.Errorf("storing session token: %w", err)
		}
	case StoreClear:
		if err := s.store.Clear(); err != nil {
			return fmt.Errorf("clearing session token: %w", err)
		}
	}
	s.commit(next, intent.Token)
	return nil
}

// commit installs next and reports an identity change to the observer.
func (s *Session) commit(next State, token string) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.token = token
	s.mu.Unlock()
	s.notifyIdentity(prev, next)
}

func (s *Session) notifyIdentity(prev, next State) {
	if s.observe == nil || sameIdentity(prev, next) {
		return
	}
	s.observe(prev, next)
}

func sameIdentity(a, b State) bool {
	ua, okA := a.User()
	ub, okB := b.User()
	return okA == okB && ua == ub
}

// clearIfHolding clears the store only while it still holds token, so a
// transition that committed a newer token in the meantime is kept. Only
// undecodable tokens reach here, and transitions never write one, so no
// transition holds writeMu while this runs.
func (s *Session) clearIfHolding(token string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if current, ok := s.store.Get(); !ok || current != token {
		return false, nil
	}
	if err := s.store.Clear(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Session) onChange(c credential.Change) {
	if err := s.refresh(c.External); err != nil {
		s.logger.Warn("re-deriving session failed", "error", err)
	}
}

// refresh re-derives the state from the store's current value. The user is
// memoized per token: an unchanged token is a no-op.
func (s *Session) refresh(external bool) error {
	s.mu.Lock()
	token, present := s.store.Get()
	if present && token == s.token && s.state.Authenticated() {
		s.mu.Unlock()
		return nil
	}
	if !present && !s.state.Authenticated() {
		s.mu.Unlock()
		return nil
	}
	next, intent, decodeErr := Derive(s.deriver, token, present)
	prev := s.state
	s.state = next
	s.token = intent.Token
	s.mu.Unlock()
	s.notifyIdentity(prev, next)

	if intent.Store == StoreClear {
		cleared, err := s.clearIfHolding(token)
		if err != nil {
			return fmt.Errorf("clearing undecodable session token: %w", err)
		}
		if cleared {
			s.audit.logFailure(AuditTokenCleared, decodeErr)
		}
		return nil
	}
	if external {
		attrs := []slog.Attr{slog.Bool("present", present)}
		if u, ok := next.User(); ok {
			s.audit.logUser(AuditTokenChangedExternally, u, attrs...)
		} else {
			s.audit.log(AuditTokenChangedExternally, attrs...)
		}
	}
	return nil
}
