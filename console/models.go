package console

import (
	"github.com/jmcleod/cardledger/client"
	"github.com/jmcleod/cardledger/portal"
	"github.com/jmcleod/cardledger/session"
	"github.com/jmcleod/cardledger/upload"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CredentialsRequest is the JSON body for POST /login, /admin/login and
// /register.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned from a successful login.
type LoginResponse struct {
	User  session.User  `json:"user"`
	Route session.Route `json:"route"`
}

// MessageResponse carries a display message and the route to show next.
type MessageResponse struct {
	Message string        `json:"message,omitempty"`
	Route   session.Route `json:"route"`
}

// StageRequest is the JSON form of a staging request: glob patterns
// resolved on the console host.
type StageRequest struct {
	Patterns []string `json:"patterns"`
}

// StageResponse is returned after staging.
type StageResponse struct {
	Rejected  []string             `json:"rejected"`
	Dashboard portal.DashboardView `json:"dashboard"`
}

// UploadResponse is returned after a submission.
type UploadResponse struct {
	Summary string `json:"summary"`
	upload.Result
}

// UsersResponse is returned from GET /admin/dashboard.
type UsersResponse struct {
	Users []client.User `json:"users"`
}

// AdminActionResponse is returned after an admin action, with the
// re-fetched user list.
type AdminActionResponse struct {
	Result client.ActionResult `json:"result"`
	Users  []client.User       `json:"users"`
}
