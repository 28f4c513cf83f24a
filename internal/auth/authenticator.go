// Package auth verifies employee credentials and opens sessions.
package auth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/phillip-england/timecard/internal/apperr"
	"github.com/phillip-england/timecard/internal/credentials"
	"github.com/phillip-england/timecard/internal/security"
)

const invalidCredentials = "Invalid username or password"

type CredentialLookup interface {
	Lookup(ctx context.Context, name string) (credentials.Employee, error)
}

type SessionIssuer interface {
	Create(ctx context.Context, username, role string) (string, error)
}

type Result struct {
	Token string
	Name  string
	Role  string
}

type Authenticator struct {
	credentials CredentialLookup
	sessions    SessionIssuer
	logger      *slog.Logger
}

func NewAuthenticator(creds CredentialLookup, sessions SessionIssuer, logger *slog.Logger) *Authenticator {
	return &Authenticator{credentials: creds, sessions: sessions, logger: logger}
}

// Login checks a client-side SHA-256 digest against the stored one. Unknown
// names and wrong digests fail with the same message.
func (a *Authenticator) Login(ctx context.Context, username, passwordHash string) (Result, error) {
	username = strings.TrimSpace(username)
	passwordHash = strings.TrimSpace(passwordHash)
	if username == "" || passwordHash == "" {
		return Result{}, apperr.Validation("username and passwordHash are required")
	}

	employee, err := a.credentials.Lookup(ctx, username)
	if err != nil {
		if apperr.IsNotFound(err) {
			a.logger.Info("login rejected", slog.String("username", username), slog.String("reason", "unknown employee"))
			return Result{}, apperr.Auth(invalidCredentials)
		}
		return Result{}, err
	}
	if !security.Matches(passwordHash, employee.PasswordHash) {
		a.logger.Info("login rejected", slog.String("username", username), slog.String("reason", "hash mismatch"))
		return Result{}, apperr.Auth(invalidCredentials)
	}

	token, err := a.sessions.Create(ctx, employee.Name, employee.Role)
	if err != nil {
		return Result{}, err
	}
	a.logger.Info("login succeeded", slog.String("username", employee.Name), slog.String("role", employee.Role))
	return Result{Token: token, Name: employee.Name, Role: employee.Role}, nil
}
