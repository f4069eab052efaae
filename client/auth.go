package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrNoToken is returned when a login response carries no access token.
var ErrNoToken = errors.New("login response carried no access token")

// Register creates an account.
func (c *Client) Register(ctx context.Context, cred Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/register", nil, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON("register", req, nil)
}

// Login exchanges a credential for an access token. Bad credentials yield
// an error matching ErrUnauthorized.
func (c *Client) Login(ctx context.Context, cred Credential) (string, error) {
	form := url.Values{}
	form.Set("username", cred.Username)
	form.Set("password", cred.Password)

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/login", nil, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := c.doJSON("login", req, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", ErrNoToken
	}
	return out.AccessToken, nil
}
