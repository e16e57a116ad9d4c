// Package session tracks the operator's authentication state and
// drives the login flow against the monitoring service.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/hivetrace/hivectl/internal/api"
	"github.com/hivetrace/hivectl/internal/client"
	"github.com/hivetrace/hivectl/internal/logging"
	"go.uber.org/zap"
)

// State is the console's view of the current session. StateUnknown
// means no probe has resolved yet; callers must treat it as distinct
// from StateUnauthenticated so a pending probe never triggers a
// redirect to login.
type State int

const (
	StateUnknown State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

// ErrEmptyAdminKey is returned before any request is issued when the
// submitted key is blank.
var ErrEmptyAdminKey = errors.New("admin key must not be empty")

// LoginError is a credential rejection carrying the service's reason.
type LoginError struct {
	Reason string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login rejected: %s", e.Reason)
}

// ConnectError wraps a transport or timeout failure so callers can
// phrase it as a connection problem rather than a credential one.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Manager owns the session state and the operations that change it.
type Manager struct {
	client *client.Client
	eps    api.Endpoints
	logger *zap.Logger

	mu    sync.Mutex
	state State
}

// NewManager creates a Manager in the unknown (pending) state.
func NewManager(c *client.Client, eps api.Endpoints, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		client: c,
		eps:    eps,
		logger: logger.With(logging.Component("session")),
		state:  StateUnknown,
	}
}

// State returns the last resolved session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// MarkExpired resolves the state to unauthenticated. Wire it into the
// client's auth-expired hook so a mid-session 401 on any request
// invalidates the session immediately.
func (m *Manager) MarkExpired() {
	m.setState(StateUnauthenticated)
}

// Check probes the whoami endpoint and resolves the session state.
// The CSRF token rides along for session binding even though the call
// is a GET. Any outcome other than an explicit authenticated flag
// resolves to unauthenticated: the probe fails closed.
func (m *Manager) Check(ctx context.Context) State {
	resp, err := m.client.Do(ctx, http.MethodGet, m.eps.Session, nil, client.WithCSRF())
	if err != nil {
		m.logger.Warn("session probe failed", zap.Error(err))
		m.setState(StateUnauthenticated)
		return StateUnauthenticated
	}

	if resp.OK {
		var body api.SessionResponse
		if err := json.Unmarshal(resp.Body, &body); err == nil && body.IsAuthenticated {
			m.setState(StateAuthenticated)
			return StateAuthenticated
		}
	}

	m.setState(StateUnauthenticated)
	return StateUnauthenticated
}

// Login authenticates with the admin key: a fresh CSRF token is always
// fetched first (a stale one from a previous session must not be
// reused), then the credentials are submitted with it attached.
func (m *Manager) Login(ctx context.Context, adminKey string) error {
	if strings.TrimSpace(adminKey) == "" {
		return ErrEmptyAdminKey
	}

	if _, err := m.client.FetchToken(ctx); err != nil {
		return &ConnectError{Err: err}
	}

	body, err := json.Marshal(api.LoginRequest{AdminKey: adminKey})
	if err != nil {
		return err
	}

	resp, err := m.client.Do(ctx, http.MethodPost, m.eps.Login, body)
	if err != nil {
		return &ConnectError{Err: err}
	}

	if !resp.OK {
		m.setState(StateUnauthenticated)
		reason := resp.ErrorReason("invalid credentials")
		m.logger.Warn("login rejected", logging.Status(resp.Status))
		return &LoginError{Reason: reason}
	}

	m.setState(StateAuthenticated)
	m.logger.Info("login succeeded")
	return nil
}

// Logout ends the session on the server and resolves the local state
// to unauthenticated.
func (m *Manager) Logout(ctx context.Context) error {
	resp, err := m.client.Do(ctx, http.MethodPost, m.eps.Logout, nil)
	if err != nil {
		return &ConnectError{Err: err}
	}
	if !resp.OK {
		return &LoginError{Reason: resp.ErrorReason("logout refused")}
	}
	m.setState(StateUnauthenticated)
	return nil
}
