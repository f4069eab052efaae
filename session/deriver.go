package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrTokenExpired   = errors.New("token expired")
	ErrMissingSubject = errors.New("missing subject")
	ErrBadSignature   = errors.New("bad token signature")
)

// DecodeError is returned by Deriver.Decode. Reason is one of the package
// sentinels; Err carries the underlying cause when there is one.
type DecodeError struct {
	Reason error
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Reason == nil {
		return "decode session token"
	}
	if e.Err == nil {
		return "decode session token: " + e.Reason.Error()
	}
	return fmt.Sprintf("decode session token: %v: %v", e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// Claims is the identity view recovered from a token.
type Claims struct {
	Subject   string
	Role      Role
	ExpiresAt time.Time // zero when the token carries no exp
}

// User returns the authenticated user the claims describe.
func (c Claims) User() User {
	return User{Subject: c.Subject, Role: c.Role}
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Deriver turns an opaque token into Claims. It holds no state between
// calls.
type Deriver struct {
	key    []byte
	leeway time.Duration
	now    func() time.Time
}

// DeriverOption configures a Deriver.
type DeriverOption func(*Deriver)

// WithVerificationKey enables HS256 signature verification.
func WithVerificationKey(key []byte) DeriverOption {
	return func(d *Deriver) {
		d.key = key
	}
}

// WithLeeway allows clock skew when checking exp.
func WithLeeway(leeway time.Duration) DeriverOption {
	return func(d *Deriver) {
		d.leeway = leeway
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) DeriverOption {
	return func(d *Deriver) {
		d.now = now
	}
}

// NewDeriver creates a Deriver. Without a verification key the claims are
// read unverified and the backend stays the authority on the signature.
func NewDeriver(opts ...DeriverOption) *Deriver {
	d := &Deriver{now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Deriver) parserOptions() []jwt.ParserOption {
	now := time.Now
	if d.now != nil {
		now = d.now
	}
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(d.leeway),
		jwt.WithTimeFunc(now),
	}
}

// Decode parses token and validates its claims. Every failure is a
// *DecodeError.
func (d *Deriver) Decode(token string) (Claims, error) {
	if d == nil {
		d = NewDeriver()
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, &DecodeError{Reason: ErrMalformedToken}
	}

	var tc tokenClaims
	opts := d.parserOptions()
	if len(d.key) > 0 {
		_, err := jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
			return d.key, nil
		}, opts...)
		if err != nil {
			return Claims{}, classify(err)
		}
	} else {
		if _, _, err := jwt.NewParser(opts...).ParseUnverified(token, &tc); err != nil {
			return Claims{}, classify(err)
		}
		if err := jwt.NewValidator(opts...).Validate(&tc); err != nil {
			return Claims{}, classify(err)
		}
	}

	if strings.TrimSpace(tc.Subject) == "" {
		return Claims{}, &DecodeError{Reason: ErrMissingSubject}
	}
	role, err := ParseRole(tc.Role)
	if err != nil {
		return Claims{}, &DecodeError{Reason: err}
	}

	c := Claims{Subject: tc.Subject, Role: role}
	if tc.ExpiresAt != nil {
		c.ExpiresAt = tc.ExpiresAt.Time
	}
	return c, nil
}

func classify(err error) *DecodeError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &DecodeError{Reason: ErrTokenExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return &DecodeError{Reason: ErrBadSignature, Err: err}
	default:
		return &DecodeError{Reason: ErrMalformedToken, Err: err}
	}
}
