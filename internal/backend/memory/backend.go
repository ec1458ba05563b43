// ABOUTME: In-memory backend: connections, change watchers and event emission
// ABOUTME: Events are delivered synchronously to watchers in registration order

package memory

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/treesync/internal/backend"
	"github.com/2389/treesync/internal/event"
)

// ErrClosed is returned by operations on a closed DB.
var ErrClosed = errors.New("database closed")

// Backend hands out DB connections that share one user directory.
type Backend struct {
	mu         sync.Mutex
	connects   int
	connectErr error
	users      *directory
	tokens     *TokenIssuer
	logger     *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithSigningKey sets the HMAC key used for ID tokens.
func WithSigningKey(key []byte) Option {
	return func(b *Backend) { b.tokens = NewTokenIssuer(key) }
}

// WithConnectError makes every Connect fail with err.
func WithConnectError(err error) Option {
	return func(b *Backend) { b.connectErr = err }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) { b.logger = logger }
}

// New creates an in-memory backend. Without WithSigningKey a random key is used.
func New(opts ...Option) *Backend {
	b := &Backend{
		users:  newDirectory(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.tokens == nil {
		key := make([]byte, 32)
		_, _ = rand.Read(key)
		b.tokens = NewTokenIssuer(key)
	}
	b.logger = b.logger.With("component", "memory-backend")
	return b
}

// Connect opens a new DB. Each call is a fresh handshake.
func (b *Backend) Connect(ctx context.Context, cfg backend.Config) (backend.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.connects++
	if b.connectErr != nil {
		return nil, b.connectErr
	}

	b.logger.Debug("connected", "name", cfg.Name, "connects", b.connects)
	db := &DB{
		id:       uuid.New().String(),
		config:   cfg,
		watchers: make(map[string]func(event.Event)),
	}
	db.auth = newAuth(b.users, b.tokens)
	return db, nil
}

// Connects returns how many handshakes were attempted.
func (b *Backend) Connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

// Tokens returns the issuer used to sign ID tokens.
func (b *Backend) Tokens() *TokenIssuer {
	return b.tokens
}

// DB is one in-memory connection.
type DB struct {
	id     string
	config backend.Config
	auth   *Auth

	mu       sync.Mutex
	watchers map[string]func(event.Event)
	order    []string
	closed   bool
}

// ID identifies this connection.
func (d *DB) ID() string { return d.id }

// Config returns the configuration the connection was opened with.
func (d *DB) Config() backend.Config { return d.config }

// Auth returns the connection's auth capability.
func (d *DB) Auth(ctx context.Context) (backend.Auth, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	return d.auth, nil
}

// Watch registers fn for every emitted event.
func (d *DB) Watch(ctx context.Context, fn func(event.Event)) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}

	id := uuid.New().String()
	d.watchers[id] = fn
	d.order = append(d.order, id)

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.watchers, id)
		d.order = slices.DeleteFunc(d.order, func(other string) bool { return other == id })
	}, nil
}

// Emit delivers ev to all watchers, synchronously and in registration order.
func (d *DB) Emit(ev event.Event) {
	d.mu.Lock()
	fns := make([]func(event.Event), 0, len(d.watchers))
	for _, id := range d.order {
		if fn, ok := d.watchers[id]; ok {
			fns = append(fns, fn)
		}
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Close drops all watchers.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.watchers = make(map[string]func(event.Event))
	d.order = nil
	return nil
}
