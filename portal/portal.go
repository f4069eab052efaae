// Package portal assembles one signed-in statement client: the session,
// the upload dashboard, the history view and the admin dashboard, sharing
// a backend client and a credential store.
package portal

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmcleod/cardledger/client"
	"github.com/jmcleod/cardledger/credential"
	"github.com/jmcleod/cardledger/history"
	"github.com/jmcleod/cardledger/metrics"
	"github.com/jmcleod/cardledger/session"
	"github.com/jmcleod/cardledger/upload"
)

// ErrSignedOut is returned by operations that need a credential when none
// is held.
var ErrSignedOut = errors.New("not signed in")

// RegisteredMessage is shown after a successful registration.
const RegisteredMessage = "Registration successful! Please sign in."

// Portal is the composition root shared by the CLI and the console.
type Portal struct {
	client   *client.Client
	session  *session.Session
	staging  *upload.StagingArea
	picker   *upload.Picker
	saver    history.Saver
	logger   *slog.Logger
	metrics  *metrics.Recorder
	location *location

	mu        sync.Mutex
	submitter *upload.Submitter
	engine    *history.Engine
	mounted   bool
}

type settings struct {
	logger  *slog.Logger
	metrics *metrics.Recorder
	nav     session.Navigator
	accept  []string
	saver   history.Saver
}

// Option configures a Portal.
type Option func(*settings)

func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(s *settings) { s.metrics = m }
}

// WithNavigator receives every route change after the portal records it.
func WithNavigator(nav session.Navigator) Option {
	return func(s *settings) { s.nav = nav }
}

// WithAccept sets the extensions the staging area admits.
func WithAccept(exts ...string) Option {
	return func(s *settings) { s.accept = exts }
}

// WithSaver sets where exports are written. The default saves into the
// working directory.
func WithSaver(saver history.Saver) Option {
	return func(s *settings) { s.saver = saver }
}

// New derives the session from store and prepares an empty dashboard.
func New(c *client.Client, store credential.Store, deriver *session.Deriver, opts ...Option) (*Portal, error) {
	var cfg settings
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.saver == nil {
		cfg.saver = history.LocalSaver{Dir: "."}
	}

	p := &Portal{
		client:   c,
		picker:   upload.NewPicker(cfg.logger),
		saver:    cfg.saver,
		logger:   cfg.logger.With("component", "portal"),
		metrics:  cfg.metrics,
		location: &location{next: cfg.nav},
	}
	var stagingOpts []upload.StagingOption
	if len(cfg.accept) > 0 {
		stagingOpts = append(stagingOpts, upload.WithAccept(cfg.accept...))
	}
	p.staging = upload.NewStagingArea(stagingOpts...)

	sess, err := session.New(store, deriver,
		session.WithNavigator(p.location),
		session.WithLogger(cfg.logger),
		session.WithMetrics(cfg.metrics),
		session.WithIdentityObserver(p.identityChanged))
	if err != nil {
		return nil, fmt.Errorf("deriving session: %w", err)
	}
	p.session = sess
	if st := sess.State(); st.Authenticated() {
		p.location.Navigate(session.HomeRoute(st.Role()))
	} else {
		p.location.Navigate(session.RouteLogin)
	}
	return p, nil
}

// Close stops following the credential store.
func (p *Portal) Close() {
	p.resetViews()
	p.session.Close()
}

// Session exposes the underlying session for guards.
func (p *Portal) Session() *session.Session { return p.session }

// State returns the current session state.
func (p *Portal) State() session.State { return p.session.State() }

// Location is the route the portal last navigated to.
func (p *Portal) Location() session.Route { return p.location.current() }

// Navigate records a route change requested by the caller.
func (p *Portal) Navigate(r session.Route) { p.location.Navigate(r) }

// Client returns the backend client.
func (p *Portal) Client() *client.Client { return p.client }

// Metrics returns the recorder, which may be nil.
func (p *Portal) Metrics() *metrics.Recorder { return p.metrics }

// expire ends the session after the backend rejected its credential.
func (p *Portal) expire(reason error) {
	p.resetViews()
	if err := p.session.Expire(reason); err != nil {
		p.logger.Error("could not end rejected session", "error", err)
	}
}

// resetViews detaches the dashboard and history views so no response from
// the previous session is applied to the next one.
func (p *Portal) resetViews() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitter != nil {
		p.submitter.Detach()
		p.submitter = nil
	}
	if p.engine != nil {
		p.engine.Detach()
		p.engine = nil
	}
	p.mounted = false
	p.staging.Clear()
}

// identityChanged drops every view when the signed-in identity changes,
// including a switch made by another process sharing the credential slot.
func (p *Portal) identityChanged(prev, next session.State) {
	p.logger.Debug("identity changed; resetting views", "from", prev.String(), "to", next.String())
	p.resetViews()
}

// location records the current route.
type location struct {
	mu    sync.Mutex
	route session.Route
	next  session.Navigator
}

func (l *location) Navigate(r session.Route) {
	l.mu.Lock()
	l.route = r
	l.mu.Unlock()
	if l.next != nil {
		l.next.Navigate(r)
	}
}

func (l *location) current() session.Route {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.route
}
