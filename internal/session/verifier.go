// Package session manages who is logged in. The Authenticator checks
// credentials and builds sessions; the Store keeps the current one in the
// key-value store so a restarted front end picks it up again.
package session

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"tally/internal/core"
)

// CredentialVerifier checks and registers credentials.
// Verify returns core.ErrInvalidCredentials on a mismatch and Register returns
// core.ErrConflict when the email is already taken.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) error
	Register(ctx context.Context, email, password string) error
}

// Authenticator turns credentials into sessions. It holds no session state,
// so the HTTP server can share one across requests.
type Authenticator struct {
	verifier CredentialVerifier
}

// NewAuthenticator uses MockVerifier when v is nil.
func NewAuthenticator(v CredentialVerifier) *Authenticator {
	if v == nil {
		v = MockVerifier{}
	}
	return &Authenticator{verifier: v}
}

func (a *Authenticator) Login(ctx context.Context, email, password string) (core.Session, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return core.Session{}, err
	}
	if err := a.verifier.Verify(ctx, email, password); err != nil {
		return core.Session{}, err
	}
	return NewSession(email, ""), nil
}

// Signup registers the credentials and returns the new session. A blank name
// falls back to the email's local part.
func (a *Authenticator) Signup(ctx context.Context, email, password, name string) (core.Session, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return core.Session{}, err
	}
	if err := a.verifier.Register(ctx, email, password); err != nil {
		return core.Session{}, err
	}
	return NewSession(email, name), nil
}

// NormalizeEmail trims and lowercases email and checks it is an address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", &core.ValidationError{Field: "email", Reason: "must not be empty"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", &core.ValidationError{Field: "email", Reason: fmt.Sprintf("not an email address: %q", email)}
	}
	return email, nil
}

// NewSession builds the session for an already normalised email.
func NewSession(email, name string) core.Session {
	name = strings.TrimSpace(name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	return core.Session{ID: UserID(email), Email: email, Name: name}
}

// UserID derives a stable user id from a normalised email, so the same person
// gets the same records back on every login.
func UserID(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email)).String()
}
