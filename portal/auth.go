package portal

import (
	"context"

	"github.com/jmcleod/cardledger/client"
	"github.com/jmcleod/cardledger/session"
)

// LoginError is a failed sign-in, worded for display.
type LoginError struct {
	Err error
}

func (e *LoginError) Error() string {
	return "Login failed: " + client.Detail(e.Err, "Please check your credentials.")
}

func (e *LoginError) Unwrap() error { return e.Err }

// RegisterError is a failed registration, worded for display.
type RegisterError struct {
	Err error
}

func (e *RegisterError) Error() string {
	return "Registration failed: " + client.Detail(e.Err, "An unknown error occurred.")
}

func (e *RegisterError) Unwrap() error { return e.Err }

// Register creates an account and sends the caller to the login route.
func (p *Portal) Register(ctx context.Context, cred client.Credential) error {
	if err := p.client.Register(ctx, cred); err != nil {
		p.logger.Warn("registration failed", "username", cred.Username, "error", err)
		return &RegisterError{Err: err}
	}
	p.logger.Info("registered account", "username", cred.Username)
	p.location.Navigate(session.RouteLogin)
	return nil
}

// Login exchanges cred for a token and commits it. Views from a previous
// session are discarded first.
func (p *Portal) Login(ctx context.Context, cred client.Credential) (session.User, error) {
	token, err := p.client.Login(ctx, cred)
	if err != nil {
		p.logger.Warn("backend rejected login", "username", cred.Username, "error", err)
		p.metrics.ObserveLoginFailure()
		return session.User{}, &LoginError{Err: err}
	}
	p.resetViews()
	if err := p.session.Login(token); err != nil {
		return session.User{}, &LoginError{Err: err}
	}
	u, _ := p.session.State().User()
	return u, nil
}

// Logout drops the credential and the views bound to it.
func (p *Portal) Logout() error {
	p.resetViews()
	return p.session.Logout()
}
