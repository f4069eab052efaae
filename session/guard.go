package session

// Capability is a predicate over the current session state.
type Capability func(State) bool

// AnyUser is satisfied by any signed-in user.
func AnyUser(s State) bool { return s.Authenticated() }

// ElevatedRole is satisfied by admin and super_admin.
func ElevatedRole(s State) bool { return s.Role().Elevated() }

// Decision is the outcome of a guard evaluation.
type Decision struct {
	Allow    bool
	Redirect Route
}

// Guard gates a route tree on a capability. A caller that fails the
// capability is sent to Fallback, or to the login route when Fallback is
// empty. An anonymous caller sent to a guarded fallback such as the
// dashboard is then sent on to login by that route's own guard.
type Guard struct {
	Require  Capability
	Fallback Route
}

var (
	RequireUser     = Guard{Require: AnyUser, Fallback: RouteLogin}
	RequireElevated = Guard{Require: ElevatedRole, Fallback: RouteDashboard}
)

// Evaluate decides against s. A nil Require allows everyone.
func (g Guard) Evaluate(s State) Decision {
	if g.Require == nil || g.Require(s) {
		return Decision{Allow: true}
	}
	if g.Fallback == "" {
		return Decision{Redirect: RouteLogin}
	}
	return Decision{Redirect: g.Fallback}
}

// StateSource yields the current session state.
type StateSource interface {
	State() State
}

// Check evaluates against the source's current state. Nothing is cached.
func (g Guard) Check(src StateSource) Decision {
	return g.Evaluate(src.State())
}
