// ABOUTME: In-memory auth: user directory with bcrypt hashes and a per-connection session
// ABOUTME: Auth-state listeners fire immediately and on every sign-in or sign-out

package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/treesync/internal/backend"
)

// Auth errors
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrWrongPassword    = errors.New("wrong password")
	ErrEmailInUse       = errors.New("email already in use")
	ErrWeakPassword     = errors.New("password must be at least 6 characters")
	ErrInvalidResetCode = errors.New("invalid or expired reset code")
)

const minPasswordLength = 6

type account struct {
	uid           string
	email         string
	emailVerified bool
	anonymous     bool
	passwordHash  []byte
}

// directory is the user store shared by every connection of a Backend.
type directory struct {
	mu         sync.Mutex
	byUID      map[string]*account
	byEmail    map[string]string // lowercased email -> uid
	resetCodes map[string]string // code -> lowercased email
	outbox     []ResetEmail
}

// ResetEmail is a password reset "sent" by the backend.
type ResetEmail struct {
	Email    string
	Code     string
	Settings *backend.ActionCodeSettings
}

func newDirectory() *directory {
	return &directory{
		byUID:      make(map[string]*account),
		byEmail:    make(map[string]string),
		resetCodes: make(map[string]string),
	}
}

// Auth is the auth capability of one in-memory connection.
type Auth struct {
	users  *directory
	tokens *TokenIssuer

	mu        sync.Mutex
	current   *backend.User
	listeners map[string]func(*backend.User)
	order     []string
}

func newAuth(users *directory, tokens *TokenIssuer) *Auth {
	return &Auth{
		users:     users,
		tokens:    tokens,
		listeners: make(map[string]func(*backend.User)),
	}
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (a *Auth) CurrentUser() *backend.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil
	}
	u := *a.current
	return &u
}

// SignInAnonymously creates a fresh anonymous account and signs it in.
func (a *Auth) SignInAnonymously(ctx context.Context) (*backend.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acct := &account{uid: uuid.New().String(), anonymous: true}

	a.users.mu.Lock()
	a.users.byUID[acct.uid] = acct
	a.users.mu.Unlock()

	return a.signIn(acct)
}

// SignInWithEmailAndPassword signs in an existing account.
func (a *Auth) SignInWithEmailAndPassword(ctx context.Context, email, password string) (*backend.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.users.mu.Lock()
	uid, ok := a.users.byEmail[strings.ToLower(email)]
	var acct *account
	if ok {
		acct = a.users.byUID[uid]
	}
	a.users.mu.Unlock()

	if acct == nil {
		return nil, ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)); err != nil {
		return nil, ErrWrongPassword
	}
	return a.signIn(acct)
}

// CreateUserWithEmailAndPassword registers an unverified account and signs it in.
func (a *Auth) CreateUserWithEmailAndPassword(ctx context.Context, email, password string) (*backend.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	acct := &account{uid: uuid.New().String(), email: email, passwordHash: hash}

	a.users.mu.Lock()
	key := strings.ToLower(email)
	if _, taken := a.users.byEmail[key]; taken {
		a.users.mu.Unlock()
		return nil, ErrEmailInUse
	}
	a.users.byUID[acct.uid] = acct
	a.users.byEmail[key] = acct.uid
	a.users.mu.Unlock()

	return a.signIn(acct)
}

// SendPasswordResetEmail records a reset code in the outbox.
func (a *Auth) SendPasswordResetEmail(ctx context.Context, email string, settings *backend.ActionCodeSettings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := strings.ToLower(email)

	a.users.mu.Lock()
	defer a.users.mu.Unlock()

	if _, ok := a.users.byEmail[key]; !ok {
		return ErrUserNotFound
	}
	code := uuid.New().String()
	a.users.resetCodes[code] = key
	a.users.outbox = append(a.users.outbox, ResetEmail{Email: email, Code: code, Settings: settings})
	return nil
}

// VerifyPasswordResetCode returns the email the code was issued for.
func (a *Auth) VerifyPasswordResetCode(ctx context.Context, code string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.users.mu.Lock()
	defer a.users.mu.Unlock()

	key, ok := a.users.resetCodes[code]
	if !ok {
		return "", ErrInvalidResetCode
	}
	return a.users.byUID[a.users.byEmail[key]].email, nil
}

// ConfirmPasswordReset consumes the code and sets a new password.
func (a *Auth) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	a.users.mu.Lock()
	defer a.users.mu.Unlock()

	key, ok := a.users.resetCodes[code]
	if !ok {
		return ErrInvalidResetCode
	}
	delete(a.users.resetCodes, code)
	a.users.byUID[a.users.byEmail[key]].passwordHash = hash
	return nil
}

// UpdateEmail changes the email of an account and marks it unverified.
func (a *Auth) UpdateEmail(ctx context.Context, uid, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.users.mu.Lock()
	acct, ok := a.users.byUID[uid]
	if !ok {
		a.users.mu.Unlock()
		return ErrUserNotFound
	}
	key := strings.ToLower(email)
	if other, taken := a.users.byEmail[key]; taken && other != uid {
		a.users.mu.Unlock()
		return ErrEmailInUse
	}
	if acct.email != "" {
		delete(a.users.byEmail, strings.ToLower(acct.email))
	}
	acct.email = email
	acct.emailVerified = false
	a.users.byEmail[key] = uid
	a.users.mu.Unlock()

	a.mu.Lock()
	if a.current != nil && a.current.UID == uid {
		a.current.Email = email
		a.current.EmailVerified = false
	}
	a.mu.Unlock()
	return nil
}

// UpdatePassword replaces the password of an account.
func (a *Auth) UpdatePassword(ctx context.Context, uid, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	a.users.mu.Lock()
	defer a.users.mu.Unlock()
	acct, ok := a.users.byUID[uid]
	if !ok {
		return ErrUserNotFound
	}
	acct.passwordHash = hash
	return nil
}

// SignOut clears the session and notifies listeners.
func (a *Auth) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	a.current = nil
	a.mu.Unlock()

	a.broadcast(nil)
	return nil
}

// OnAuthStateChanged registers fn and calls it with the current user.
func (a *Auth) OnAuthStateChanged(fn func(*backend.User)) (func(), error) {
	if fn == nil {
		return nil, errors.New("auth state listener is nil")
	}
	id := uuid.New().String()

	a.mu.Lock()
	a.listeners[id] = fn
	a.order = append(a.order, id)
	a.mu.Unlock()

	fn(a.CurrentUser())

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
		a.order = slices.DeleteFunc(a.order, func(other string) bool { return other == id })
	}, nil
}

// Outbox returns the reset emails sent so far.
func (a *Auth) Outbox() []ResetEmail {
	a.users.mu.Lock()
	defer a.users.mu.Unlock()
	out := make([]ResetEmail, len(a.users.outbox))
	copy(out, a.users.outbox)
	return out
}

// SetEmailVerified flips the verified flag of an account.
func (a *Auth) SetEmailVerified(uid string, verified bool) error {
	a.users.mu.Lock()
	defer a.users.mu.Unlock()
	acct, ok := a.users.byUID[uid]
	if !ok {
		return ErrUserNotFound
	}
	acct.emailVerified = verified
	return nil
}

func (a *Auth) signIn(acct *account) (*backend.Credential, error) {
	a.users.mu.Lock()
	user := &backend.User{
		UID:           acct.uid,
		Email:         acct.email,
		EmailVerified: acct.emailVerified,
		IsAnonymous:   acct.anonymous,
	}
	a.users.mu.Unlock()

	token, err := a.tokens.Issue(user.UID, user.Email, user.IsAnonymous, idTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing id token: %w", err)
	}
	user.IDToken = token

	a.mu.Lock()
	a.current = user
	a.mu.Unlock()

	snapshot := *user
	a.broadcast(&snapshot)
	return &backend.Credential{User: &snapshot}, nil
}

func (a *Auth) broadcast(user *backend.User) {
	a.mu.Lock()
	fns := make([]func(*backend.User), 0, len(a.listeners))
	for _, id := range a.order {
		if fn, ok := a.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	a.mu.Unlock()

	for _, fn := range fns {
		if user == nil {
			fn(nil)
			continue
		}
		u := *user
		fn(&u)
	}
}
