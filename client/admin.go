package client

import (
	"context"
	"fmt"
	"net/http"
)

// ListUsers returns every account. Requires an elevated role.
func (c *Client) ListUsers(ctx context.Context, token string) ([]User, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/admin/users", nil, nil)
	if err != nil {
		return nil, err
	}
	bearer(req, token)

	var out struct {
		Users []User `json:"users"`
	}
	if err := c.doJSON("list_users", req, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// AdminAction applies action to the account with the given id.
// ActionResetPassword returns the generated password in the result.
func (c *Client) AdminAction(ctx context.Context, token string, userID int, action AdminAction) (ActionResult, error) {
	if _, err := ParseAdminAction(string(action)); err != nil {
		return ActionResult{}, err
	}
	path := fmt.Sprintf("/admin/users/%d/%s", userID, action)
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, nil)
	if err != nil {
		return ActionResult{}, err
	}
	bearer(req, token)

	var out ActionResult
	if err := c.doJSON("admin_"+string(action), req, &out); err != nil {
		return ActionResult{}, err
	}
	return out, nil
}
