// Package session issues bearer tokens and tracks them in the Sessions sheet.
// A token is only honoured while its row exists and has not expired.
package session

import (
	"context"
	"crypto/rand"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phillip-england/timecard/internal/apperr"
	"github.com/phillip-england/timecard/internal/sheet"
	"github.com/pkg/errors"
)

const (
	Table      = "Sessions"
	DefaultTTL = 8 * time.Hour
)

var Header = []string{"Token", "Username", "Role", "Created At", "Expires At"}

const (
	colToken = iota
	colUsername
	colRole
	colCreatedAt
	colExpiresAt
)

// ErrUnauthorized is returned for every token that cannot be honoured. Missing,
// malformed and expired tokens are deliberately indistinguishable.
var ErrUnauthorized = &apperr.Error{Kind: apperr.KindAuth, Message: "Unauthorized"}

type Identity struct {
	Username string
	Role     string
}

type Manager struct {
	sheets sheet.Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	// mu serialises writes to the Sessions sheet so a sweep never deletes
	// by row numbers another writer has shifted.
	mu sync.Mutex
}

type Option func(*Manager)

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager returns a Manager signing tokens with secret. An empty secret is
// replaced by a random one, which invalidates outstanding tokens on restart.
func NewManager(sheets sheet.Store, secret []byte, logger *slog.Logger, opts ...Option) (*Manager, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, errors.Wrap(err, "generate session secret")
		}
		logger.Warn("no session secret configured; tokens will not survive a restart")
	}
	m := &Manager{
		sheets: sheets,
		secret: secret,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Create issues a token for username and records it. Expired sessions are
// swept afterwards; a failed sweep does not fail the login.
func (m *Manager) Create(ctx context.Context, username, role string) (string, error) {
	createdAt := m.now().UTC()
	expiresAt := createdAt.Add(m.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(createdAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign session token")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.sheets.InsertTable(ctx, Table, Header); err != nil {
		return "", err
	}
	row := []string{
		signed,
		username,
		role,
		createdAt.Format(time.RFC3339Nano),
		expiresAt.Format(time.RFC3339Nano),
	}
	if _, err := m.sheets.Append(ctx, Table, row); err != nil {
		return "", err
	}

	if removed, err := m.sweep(ctx); err != nil {
		m.logger.Warn("sweep expired sessions", slog.Any("error", err))
	} else if removed > 0 {
		m.logger.Debug("swept expired sessions", slog.Int("count", removed))
	}
	return signed, nil
}

// Validate reports whether token belongs to a live session.
func (m *Manager) Validate(ctx context.Context, token string) bool {
	_, err := m.Resolve(ctx, token)
	return err == nil
}

// Resolve returns the identity behind a live session. Every failure,
// including storage errors, yields ErrUnauthorized.
func (m *Manager) Resolve(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrUnauthorized
	}
	subject, err := m.parse(token)
	if err != nil {
		return Identity{}, ErrUnauthorized
	}

	rows, err := m.sheets.ReadAll(ctx, Table)
	if err != nil {
		if !apperr.IsNotFound(err) {
			m.logger.Error("read sessions", slog.Any("error", err))
		}
		return Identity{}, ErrUnauthorized
	}

	now := m.now()
	for i := 1; i < len(rows); i++ {
		if sheet.Cell(rows[i], colToken) != token {
			continue
		}
		expiresAt, ok := sheet.ParseTime(sheet.Cell(rows[i], colExpiresAt))
		if !ok || !expiresAt.After(now) {
			return Identity{}, ErrUnauthorized
		}
		username := sheet.Cell(rows[i], colUsername)
		if username != subject {
			return Identity{}, ErrUnauthorized
		}
		return Identity{Username: username, Role: sheet.Cell(rows[i], colRole)}, nil
	}
	return Identity{}, ErrUnauthorized
}

// parse checks the signature only. Expiry is decided by the session row, so an
// operator can revoke or shorten a session by editing the sheet.
func (m *Manager) parse(token string) (string, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// Sweep deletes every session row whose expiry has passed or cannot be read.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweep(ctx)
}

// sweep collects the expired tokens, then deletes each one at the row it
// occupies when it is removed. The sheet can also be edited by hand, so a row
// number from the first read is never trusted for a later delete.
func (m *Manager) sweep(ctx context.Context) (int, error) {
	rows, err := m.sheets.ReadAll(ctx, Table)
	if err != nil {
		if apperr.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}

	now := m.now()
	var stale []string
	for i := len(rows) - 1; i >= 1; i-- {
		if token := sheet.Cell(rows[i], colToken); token != "" && expired(rows[i], now) {
			stale = append(stale, token)
		}
	}

	removed := 0
	for _, token := range stale {
		current, err := m.sheets.ReadAll(ctx, Table)
		if err != nil {
			return removed, err
		}
		row := expiredRow(current, token, now)
		if row == 0 {
			continue
		}
		if err := m.sheets.DeleteRow(ctx, Table, row); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func expired(row []string, now time.Time) bool {
	expiresAt, ok := sheet.ParseTime(sheet.Cell(row, colExpiresAt))
	return !ok || expiresAt.Before(now)
}

// expiredRow returns the 1-based row holding token if it is still expired,
// or 0 when the token is gone.
func expiredRow(rows [][]string, token string, now time.Time) int {
	for i := len(rows) - 1; i >= 1; i-- {
		if sheet.Cell(rows[i], colToken) == token && expired(rows[i], now) {
			return i + 1
		}
	}
	return 0
}
