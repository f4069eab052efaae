package portal

import (
	"context"
	"errors"

	"github.com/jmcleod/cardledger/client"
)

// AdminError is a failed admin dashboard operation, worded for display.
type AdminError struct {
	Message string
	Err     error
	// Applied is set when the action succeeded and only the re-fetch of
	// the user list failed.
	Applied bool
}

func (e *AdminError) Error() string { return e.Message }

func (e *AdminError) Unwrap() error { return e.Err }

var actionFailures = map[client.AdminAction]string{
	client.ActionVerify:        "Failed to verify user.",
	client.ActionPromote:       "Failed to promote user.",
	client.ActionDemote:        "Failed to demote user.",
	client.ActionToggleSuspend: "Failed to update user status.",
	client.ActionResetPassword: "Failed to reset password.",
}

func (p *Portal) adminToken() (string, error) {
	token, ok := p.session.Token()
	if !ok {
		return "", ErrSignedOut
	}
	return token, nil
}

func (p *Portal) adminFailure(err error) {
	if errors.Is(err, client.ErrUnauthorized) {
		p.expire(err)
	}
}

// Users lists every account for the admin dashboard.
func (p *Portal) Users(ctx context.Context) ([]client.User, error) {
	token, err := p.adminToken()
	if err != nil {
		return nil, &AdminError{Message: "Could not fetch users.", Err: err}
	}
	users, err := p.client.ListUsers(ctx, token)
	if err != nil {
		p.adminFailure(err)
		return nil, &AdminError{Message: "Could not fetch users.", Err: err}
	}
	return users, nil
}

// AdminAction applies action to the account and re-fetches the user list.
// A failed re-fetch is returned with the action's result.
func (p *Portal) AdminAction(ctx context.Context, userID int, action client.AdminAction) (client.ActionResult, []client.User, error) {
	msg, ok := actionFailures[action]
	if !ok {
		_, err := client.ParseAdminAction(string(action))
		return client.ActionResult{}, nil, err
	}
	token, err := p.adminToken()
	if err != nil {
		return client.ActionResult{}, nil, &AdminError{Message: msg, Err: err}
	}
	res, err := p.client.AdminAction(ctx, token, userID, action)
	if err != nil {
		p.adminFailure(err)
		return client.ActionResult{}, nil, &AdminError{Message: msg, Err: err}
	}
	p.logger.Info("admin action applied", "action", action, "user_id", userID)
	users, err := p.Users(ctx)
	if err != nil {
		var ae *AdminError
		if errors.As(err, &ae) {
			ae.Applied = true
		}
		return res, nil, err
	}
	return res, users, nil
}
