package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/cardledger/credential"
	"github.com/jmcleod/cardledger/metrics"
)

type recordingNav struct {
	mu     sync.Mutex
	routes []Route
}

func (n *recordingNav) Navigate(r Route) {
	n.mu.Lock()
	n.routes = append(n.routes, r)
	n.mu.Unlock()
}

func (n *recordingNav) all() []Route {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Route(nil), n.routes...)
}

func newTestSession(t *testing.T, store credential.Store) (*Session, *recordingNav, *bytes.Buffer) {
	t.Helper()
	nav := &recordingNav{}
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, err := New(store, NewDeriver(), WithNavigator(nav), WithLogger(logger), WithMetrics(metrics.New()))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, nav, &logs
}

func auditEvents(t *testing.T, logs *bytes.Buffer) []string {
	t.Helper()
	var events []string
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["component"] == "audit" {
			events = append(events, entry["event"].(string))
		}
	}
	return events
}

func TestPureLoginTransition(t *testing.T) {
	tok := tokenFor(t, "alice", RoleAdmin)
	st, intent, err := Login(NewDeriver(), tok)
	require.NoError(t, err)
	u, ok := st.User()
	require.True(t, ok)
	assert.Equal(t, User{Subject: "alice", Role: RoleAdmin}, u)
	assert.Equal(t, Intent{Store: StoreSet, Token: tok, Navigate: RouteAdminDashboard}, intent)

	st, intent, err = Login(NewDeriver(), "garbage")
	assert.Error(t, err)
	assert.False(t, st.Authenticated())
	assert.Equal(t, Intent{Store: StoreClear, Navigate: RouteLogin}, intent)

	st, intent = Logout()
	assert.False(t, st.Authenticated())
	assert.Equal(t, Intent{Store: StoreClear, Navigate: RouteLogin}, intent)
}

func TestInitialStateFromStore(t *testing.T) {
	store := credential.NewMemoryStore()
	require.NoError(t, store.Set(tokenFor(t, "alice", RoleUser)))

	s, nav, _ := newTestSession(t, store)
	u, ok := s.State().User()
	require.True(t, ok)
	assert.Equal(t, "alice", u.Subject)
	assert.Empty(t, nav.all(), "initial derivation does not navigate")
}

func TestInitialUndecodableTokenIsCleared(t *testing.T) {
	store := credential.NewMemoryStore()
	require.NoError(t, store.Set("garbage"))

	s, _, logs := newTestSession(t, store)
	assert.False(t, s.State().Authenticated())
	_, present := store.Get()
	assert.False(t, present)
	assert.Contains(t, auditEvents(t, logs), string(AuditTokenCleared))
}

func TestLoginLandsOnRoleHome(t *testing.T) {
	cases := map[Role]Route{
		RoleUser:       RouteDashboard,
		RoleAdmin:      RouteAdminDashboard,
		RoleSuperAdmin: RouteAdminDashboard,
	}
	for role, want := range cases {
		t.Run(string(role), func(t *testing.T) {
			store := credential.NewMemoryStore()
			s, nav, logs := newTestSession(t, store)

			tok := tokenFor(t, "alice", role)
			require.NoError(t, s.Login(tok))

			assert.Equal(t, []Route{want}, nav.all())
			assert.Equal(t, role, s.State().Role())
			got, ok := store.Get()
			require.True(t, ok)
			assert.Equal(t, tok, got)
			current, ok := s.Token()
			require.True(t, ok)
			assert.Equal(t, tok, current)
			assert.Equal(t, []string{string(AuditLoginSuccess)}, auditEvents(t, logs))
			assert.NotContains(t, logs.String(), tok)
		})
	}
}

func TestLoginDecodeFailureClearsStoreAndState(t *testing.T) {
	store := credential.NewMemoryStore()
	s, nav, logs := newTestSession(t, store)
	require.NoError(t, s.Login(tokenFor(t, "alice", RoleUser)))

	err := s.Login(mintToken(t, signingKey, map[string]any{"sub": "alice", "role": "owner"}))
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, ErrInvalidRole)

	assert.False(t, s.State().Authenticated())
	_, present := store.Get()
	assert.False(t, present)
	_, ok := s.Token()
	assert.False(t, ok)
	assert.Equal(t, []Route{RouteDashboard, RouteLogin}, nav.all())
	assert.Contains(t, auditEvents(t, logs), string(AuditLoginRejected))
}

func TestLogout(t *testing.T) {
	store := credential.NewMemoryStore()
	s, nav, logs := newTestSession(t, store)
	require.NoError(t, s.Login(tokenFor(t, "alice", RoleUser)))

	require.NoError(t, s.Logout())
	assert.False(t, s.State().Authenticated())
	_, present := store.Get()
	assert.False(t, present)
	assert.Equal(t, []Route{RouteDashboard, RouteLogin}, nav.all())
	assert.Equal(t, []string{string(AuditLoginSuccess), string(AuditLogout)}, auditEvents(t, logs))
}

func TestExpire(t *testing.T) {
	store := credential.NewMemoryStore()
	s, nav, logs := newTestSession(t, store)
	require.NoError(t, s.Login(tokenFor(t, "alice", RoleUser)))

	require.NoError(t, s.Expire(errors.New("401 from backend")))
	assert.False(t, s.State().Authenticated())
	assert.Equal(t, RouteLogin, nav.all()[1])
	assert.Contains(t, auditEvents(t, logs), string(AuditSessionExpired))
}

func TestExternalChangeRederives(t *testing.T) {
	store := credential.NewMemoryStore()
	s, nav, logs := newTestSession(t, store)
	require.NoError(t, s.Login(tokenFor(t, "alice", RoleUser)))

	store.Inject(tokenFor(t, "carol", RoleSuperAdmin))
	u, ok := s.State().User()
	require.True(t, ok)
	assert.Equal(t, User{Subject: "carol", Role: RoleSuperAdmin}, u)

	store.Inject("")
	assert.False(t, s.State().Authenticated())

	assert.Len(t, nav.all(), 1, "external changes do not navigate")
	events := auditEvents(t, logs)
	assert.Equal(t, 2, countOf(events, string(AuditTokenChangedExternally)))
}

func TestExternalUndecodableTokenIsCleared(t *testing.T) {
	store := credential.NewMemoryStore()
	s, _, logs := newTestSession(t, store)
	require.NoError(t, s.Login(tokenFor(t, "alice", RoleUser)))

	store.Inject("garbage")

	assert.False(t, s.State().Authenticated())
	_, present := store.Get()
	assert.False(t, present)
	assert.Contains(t, auditEvents(t, logs), string(AuditTokenCleared))
}

type identityLog struct {
	mu      sync.Mutex
	changes []string
}

func (l *identityLog) record(prev, next State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, prev.String()+" -> "+next.String())
}

func (l *identityLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.changes...)
}

func TestIdentityObserver(t *testing.T) {
	store := credential.NewMemoryStore()
	ids := &identityLog{}
	s, err := New(store, NewDeriver(), WithIdentityObserver(ids.record))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Login(tokenFor(t, "alice", RoleUser)))
	store.Inject(tokenFor(t, "alice", RoleUser))
	store.Inject("")
	store.Inject(tokenFor(t, "carol", RoleAdmin))
	require.NoError(t, s.Expire(nil))

	assert.Equal(t, []string{
		"anonymous -> authenticated(alice, user)",
		"authenticated(alice, user) -> anonymous",
		"anonymous -> authenticated(carol, admin)",
		"authenticated(carol, admin) -> anonymous",
	}, ids.all(), "a new token for the same identity is not a change")
}

func TestUndecodableTokenDoesNotClearNewerLogin(t *testing.T) {
	store := credential.NewMemoryStore()
	bob := tokenFor(t, "bob", RoleUser)
	var s *Session
	var once sync.Once
	// The login lands after the garbage token was read and before the
	// session cleans it up.
	s, err := New(store, NewDeriver(), WithIdentityObserver(func(_, next State) {
		if !next.Authenticated() {
			once.Do(func() { require.NoError(t, s.Login(bob)) })
		}
	}))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Login(tokenFor(t, "alice", RoleUser)))

	store.Inject("garbage")

	got, present := store.Get()
	require.True(t, present)
	assert.Equal(t, bob, got)
	u, ok := s.State().User()
	require.True(t, ok)
	assert.Equal(t, "bob", u.Subject)
}

func TestCloseStopsListening(t *testing.T) {
	store := credential.NewMemoryStore()
	s, _, _ := newTestSession(t, store)
	s.Close()

	store.Inject(tokenFor(t, "alice", RoleUser))
	assert.False(t, s.State().Authenticated())
}

type failingStore struct{ credential.MemoryStore }

func (*failingStore) Set(string) error { return errors.New("disk full") }

func TestLoginStoreFailureLeavesState(t *testing.T) {
	store := &failingStore{}
	s, nav, _ := newTestSession(t, store)

	err := s.Login(tokenFor(t, "alice", RoleUser))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, s.State().Authenticated())
	assert.Empty(t, nav.all())
}

func countOf(list []string, v string) int {
	n := 0
	for _, s := range list {
		if s == v {
			n++
		}
	}
	return n
}
