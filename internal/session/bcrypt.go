package session

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"tally/internal/core"
	"tally/internal/kv"
)

const minPasswordLen = 8

// BcryptVerifier keeps a bcrypt hash per email in the key-value store.
type BcryptVerifier struct {
	kv   kv.Store
	cost int
}

var _ CredentialVerifier = (*BcryptVerifier)(nil)

// NewBcryptVerifier uses bcrypt.DefaultCost when cost is 0.
func NewBcryptVerifier(store kv.Store, cost int) *BcryptVerifier {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptVerifier{kv: store, cost: cost}
}

func (v *BcryptVerifier) Verify(ctx context.Context, email, password string) error {
	hash, ok, err := v.kv.Get(ctx, kv.CredentialsKey(email))
	if err != nil {
		return fmt.Errorf("%w: read credentials: %w", core.ErrPersistence, err)
	}
	if !ok {
		return core.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return core.ErrInvalidCredentials
	}
	return nil
}

func (v *BcryptVerifier) Register(ctx context.Context, email, password string) error {
	if len(password) < minPasswordLen {
		return &core.ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", minPasswordLen)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return &core.ValidationError{Field: "password", Reason: "must be at most 72 bytes"}
	}
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	written, err := v.kv.SetIfAbsent(ctx, kv.CredentialsKey(email), hash)
	if err != nil {
		return fmt.Errorf("%w: write credentials: %w", core.ErrPersistence, err)
	}
	if !written {
		return fmt.Errorf("%w: %s", core.ErrConflict, email)
	}
	return nil
}
