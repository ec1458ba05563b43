// ABOUTME: Backend collaborator interfaces: connection, change watch, and auth
// ABOUTME: Config is compared by deep equality to decide whether to reconnect

package backend

import (
	"context"
	"maps"

	"github.com/2389/treesync/internal/event"
)

// Config is the connection configuration. It is opaque to the cache layer
// beyond equality comparison.
type Config struct {
	Name        string            `yaml:"name" toml:"name"`
	ProjectID   string            `yaml:"project_id" toml:"project_id"`
	DatabaseURL string            `yaml:"database_url" toml:"database_url"`
	APIKey      string            `yaml:"api_key" toml:"api_key"`
	Mocking     bool              `yaml:"mocking" toml:"mocking"`
	Options     map[string]string `yaml:"options" toml:"options"`
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	c.Options = maps.Clone(c.Options)
	return c
}

// Backend opens database connections.
type Backend interface {
	Connect(ctx context.Context, cfg Config) (DB, error)
}

// DB is an established connection.
type DB interface {
	// Auth returns the auth capability of this connection.
	Auth(ctx context.Context) (Auth, error)

	// Watch delivers every change event to fn until stop is called.
	Watch(ctx context.Context, fn func(event.Event)) (stop func(), err error)

	Close() error
}

// User is the backend's view of a signed-in user.
type User struct {
	UID           string
	Email         string
	EmailVerified bool
	IsAnonymous   bool
	IDToken       string
}

// Credential is returned by sign-in operations.
type Credential struct {
	User *User
}

// ActionCodeSettings customizes out-of-band emails such as password resets.
type ActionCodeSettings struct {
	URL             string
	HandleCodeInApp bool
}

// Auth is the opaque auth capability.
type Auth interface {
	// CurrentUser returns the signed-in user, or nil.
	CurrentUser() *User

	SignInAnonymously(ctx context.Context) (*Credential, error)
	SignInWithEmailAndPassword(ctx context.Context, email, password string) (*Credential, error)
	CreateUserWithEmailAndPassword(ctx context.Context, email, password string) (*Credential, error)
	SendPasswordResetEmail(ctx context.Context, email string, settings *ActionCodeSettings) error
	ConfirmPasswordReset(ctx context.Context, code, newPassword string) error
	VerifyPasswordResetCode(ctx context.Context, code string) (email string, err error)
	UpdateEmail(ctx context.Context, uid, email string) error
	UpdatePassword(ctx context.Context, uid, password string) error
	SignOut(ctx context.Context) error

	// OnAuthStateChanged calls fn with the current user (nil when signed
	// out) right away and again on every transition.
	OnAuthStateChanged(fn func(*User)) (unsubscribe func(), err error)
}
