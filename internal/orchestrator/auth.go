// ABOUTME: Auth actions backed by the connection's auth capability
// ABOUTME: Failures are published as error notifications and returned

package orchestrator

import (
	"context"

	"github.com/2389/treesync/internal/backend"
	"github.com/2389/treesync/internal/notify"
	"github.com/2389/treesync/internal/syncerr"
)

// SignInWithEmailAndPassword signs in and records the user.
func (o *Orchestrator) SignInWithEmailAndPassword(ctx context.Context, email, password string) (*backend.User, error) {
	return o.signIn(ctx, func(a backend.Auth) (*backend.Credential, error) {
		return a.SignInWithEmailAndPassword(ctx, email, password)
	})
}

// CreateUserWithEmailAndPassword registers an account and records it as the
// signed-in user.
func (o *Orchestrator) CreateUserWithEmailAndPassword(ctx context.Context, email, password string) (*backend.User, error) {
	return o.signIn(ctx, func(a backend.Auth) (*backend.Credential, error) {
		return a.CreateUserWithEmailAndPassword(ctx, email, password)
	})
}

func (o *Orchestrator) signIn(ctx context.Context, fn func(backend.Auth) (*backend.Credential, error)) (*backend.User, error) {
	auth, err := o.auth(ctx)
	if err != nil {
		o.report(err)
		return nil, err
	}
	cred, err := fn(auth)
	if err != nil {
		o.report(err)
		return nil, err
	}
	o.state.Commit(notify.UserLoggedIn, cred.User)
	return cred.User, nil
}

// SendPasswordResetEmail asks the backend to mail a reset code.
func (o *Orchestrator) SendPasswordResetEmail(ctx context.Context, email string, settings *backend.ActionCodeSettings) error {
	return o.withAuth(ctx, func(a backend.Auth) error {
		return a.SendPasswordResetEmail(ctx, email, settings)
	})
}

// ConfirmPasswordReset sets a new password using a reset code.
func (o *Orchestrator) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	return o.withAuth(ctx, func(a backend.Auth) error {
		return a.ConfirmPasswordReset(ctx, code, newPassword)
	})
}

// VerifyPasswordResetCode returns the email a reset code belongs to.
func (o *Orchestrator) VerifyPasswordResetCode(ctx context.Context, code string) (string, error) {
	var email string
	err := o.withAuth(ctx, func(a backend.Auth) error {
		var err error
		email, err = a.VerifyPasswordResetCode(ctx, code)
		return err
	})
	return email, err
}

// UpdateEmail changes the signed-in user's email and records the change.
func (o *Orchestrator) UpdateEmail(ctx context.Context, email string) error {
	cu := o.state.CurrentUser()
	if cu == nil {
		err := syncerr.NotReady("updating email requires a signed-in user")
		o.report(err)
		return err
	}

	if err := o.withAuth(ctx, func(a backend.Auth) error {
		return a.UpdateEmail(ctx, cu.UID, email)
	}); err != nil {
		return err
	}

	updated := backend.User{UID: cu.UID, IsAnonymous: cu.IsAnonymous}
	if cu.FullProfile != nil {
		updated = *cu.FullProfile
	}
	updated.Email = email
	updated.EmailVerified = false
	o.state.Commit(notify.UserUpdated, &updated)
	return nil
}

// UpdatePassword changes the signed-in user's password.
func (o *Orchestrator) UpdatePassword(ctx context.Context, password string) error {
	cu := o.state.CurrentUser()
	if cu == nil {
		err := syncerr.NotReady("updating password requires a signed-in user")
		o.report(err)
		return err
	}
	return o.withAuth(ctx, func(a backend.Auth) error {
		return a.UpdatePassword(ctx, cu.UID, password)
	})
}

// SignOut ends the session.
func (o *Orchestrator) SignOut(ctx context.Context) error {
	if err := o.withAuth(ctx, func(a backend.Auth) error {
		return a.SignOut(ctx)
	}); err != nil {
		return err
	}
	o.state.Commit(notify.UserLoggedOut, nil)
	return nil
}

// withAuth runs fn against the live connection's auth capability and
// reports any failure.
func (o *Orchestrator) withAuth(ctx context.Context, fn func(backend.Auth) error) error {
	auth, err := o.auth(ctx)
	if err == nil {
		err = fn(auth)
	}
	if err != nil {
		o.report(err)
		return err
	}
	return nil
}
