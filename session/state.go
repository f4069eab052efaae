package session

// User is the read-only identity derived from a decoded token.
type User struct {
	Subject string `json:"subject"`
	Role    Role   `json:"role"`
}

// State is either Anonymous (the zero value) or Authenticated.
type State struct {
	user *User
}

// Anonymous returns the signed-out state.
func Anonymous() State { return State{} }

// Authenticated returns the signed-in state for u.
func Authenticated(u User) State { return State{user: &u} }

// User returns the signed-in user, if any.
func (s State) User() (User, bool) {
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// Authenticated reports whether a user is signed in.
func (s State) Authenticated() bool { return s.user != nil }

// Role returns the signed-in user's role, or "" when anonymous.
func (s State) Role() Role {
	if s.user == nil {
		return ""
	}
	return s.user.Role
}

func (s State) String() string {
	if s.user == nil {
		return "anonymous"
	}
	return "authenticated(" + s.user.Subject + ", " + string(s.user.Role) + ")"
}

// StoreEffect is the credential store write a transition asks for.
type StoreEffect int

const (
	StoreKeep StoreEffect = iota
	StoreSet
	StoreClear
)

// Intent carries the side effects of a transition. Only Session performs
// them.
type Intent struct {
	Store    StoreEffect
	Token    string // set when Store == StoreSet
	Navigate Route  // empty means stay
}

// Login is the pure login transition. A token that decodes yields the
// authenticated state, a store write and the role's home route. Any decode
// failure yields Anonymous, a store clear and the login route, with the
// failure returned alongside.
func Login(d *Deriver, token string) (State, Intent, error) {
	claims, err := d.Decode(token)
	if err != nil {
		return Anonymous(), Intent{Store: StoreClear, Navigate: RouteLogin}, err
	}
	return Authenticated(claims.User()), Intent{
		Store:    StoreSet,
		Token:    token,
		Navigate: HomeRoute(claims.Role),
	}, nil
}

// Logout is the pure logout transition.
func Logout() (State, Intent) {
	return Anonymous(), Intent{Store: StoreClear, Navigate: RouteLogin}
}

// Derive computes the state for a stored token without navigation. An
// undecodable token asks for the store to be cleared.
func Derive(d *Deriver, token string, present bool) (State, Intent, error) {
	if !present {
		return Anonymous(), Intent{}, nil
	}
	claims, err := d.Decode(token)
	if err != nil {
		return Anonymous(), Intent{Store: StoreClear}, err
	}
	return Authenticated(claims.User()), Intent{Token: token}, nil
}
