// ABOUTME: Connection/auth state slice with an atomic commit primitive
// ABOUTME: Every commit updates the slice and publishes one notification

package state

import (
	"log/slog"
	"sync"

	"github.com/2389/treesync/internal/backend"
	"github.com/2389/treesync/internal/notify"
)

// Authenticated is the coarse auth status.
type Authenticated string

const (
	AuthUnknown   Authenticated = "unknown"
	AuthLoggedIn  Authenticated = "logged-in"
	AuthLoggedOut Authenticated = "logged-out"
)

// Status tracks the connection handshake.
type Status string

const (
	StatusUnconfigured    Status = "unconfigured"
	StatusConfiguring     Status = "configuring"
	StatusConnecting      Status = "connecting"
	StatusConnected       Status = "connected"
	StatusConnectionError Status = "connection-error"
)

// maxCompletions bounds the lifecycle completion history.
const maxCompletions = 100

// CurrentUser is the abbreviated signed-in user.
type CurrentUser struct {
	Email         string
	EmailVerified bool
	UID           string
	IsAnonymous   bool
	FullProfile   *backend.User
}

// Snapshot is a point-in-time copy of the slice.
type Snapshot struct {
	Status        Status
	Authenticated Authenticated
	CurrentUser   *CurrentUser
	Config        *backend.Config
	LastError     *notify.ErrorPayload
	Completions   []notify.LifecycleCompleted
}

// Plugin is the connection/auth slice.
type Plugin struct {
	mu            sync.RWMutex
	status        Status
	authenticated Authenticated
	currentUser   *CurrentUser
	config        *backend.Config
	lastError     *notify.ErrorPayload
	completions   []notify.LifecycleCompleted

	bus    *notify.Broadcaster
	logger *slog.Logger
}

// New creates the slice. bus may be nil when nobody listens. Pass nil logger for default.
func New(bus *notify.Broadcaster, logger *slog.Logger) *Plugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Plugin{
		status:        StatusUnconfigured,
		authenticated: AuthUnknown,
		bus:           bus,
		logger:        logger.With("component", "state"),
	}
}

// Commit applies the mutation named by name and publishes it.
func (p *Plugin) Commit(name notify.Name, payload any) {
	p.mu.Lock()
	switch name {
	case notify.Configuring:
		p.status = StatusConfiguring
		if cfg, ok := payload.(backend.Config); ok {
			c := cfg.Clone()
			p.config = &c
		}
	case notify.Connecting:
		p.status = StatusConnecting
	case notify.Connected:
		p.status = StatusConnected
	case notify.ConnectionError:
		p.status = StatusConnectionError
		if err, ok := payload.(error); ok {
			p.lastError = &notify.ErrorPayload{Message: err.Error(), Code: string(StatusConnectionError)}
		}
	case notify.UserLoggedIn:
		if u, ok := payload.(*backend.User); ok && u != nil {
			p.currentUser = abbreviate(u)
			p.authenticated = AuthLoggedIn
		}
	case notify.UserLoggedOut:
		p.currentUser = nil
		p.authenticated = AuthLoggedOut
	case notify.UserUpdated:
		if u, ok := payload.(*backend.User); ok && u != nil && p.currentUser != nil && p.currentUser.UID == u.UID {
			p.currentUser = abbreviate(u)
		}
	case notify.LifecycleEventCompleted:
		if c, ok := payload.(notify.LifecycleCompleted); ok {
			p.completions = append(p.completions, c)
			if len(p.completions) > maxCompletions {
				p.completions = p.completions[len(p.completions)-maxCompletions:]
			}
		}
	case notify.Error:
		if e, ok := payload.(notify.ErrorPayload); ok {
			p.lastError = &e
		}
	}
	p.mu.Unlock()

	p.logger.Debug("commit", "name", name)
	if p.bus != nil {
		p.bus.Emit(name, payload)
	}
}

func abbreviate(u *backend.User) *CurrentUser {
	profile := *u
	return &CurrentUser{
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		UID:           u.UID,
		IsAnonymous:   u.IsAnonymous,
		FullProfile:   &profile,
	}
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (p *Plugin) CurrentUser() *CurrentUser {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.currentUser == nil {
		return nil
	}
	u := *p.currentUser
	return &u
}

// Authenticated returns the auth status.
func (p *Plugin) Authenticated() Authenticated {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.authenticated
}

// Status returns the connection status.
func (p *Plugin) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Snapshot copies the whole slice.
func (p *Plugin) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Snapshot{
		Status:        p.status,
		Authenticated: p.authenticated,
		Completions:   append([]notify.LifecycleCompleted(nil), p.completions...),
	}
	if p.currentUser != nil {
		u := *p.currentUser
		s.CurrentUser = &u
	}
	if p.config != nil {
		c := p.config.Clone()
		s.Config = &c
	}
	if p.lastError != nil {
		e := *p.lastError
		s.LastError = &e
	}
	return s
}
