package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"tally/internal/core"
	"tally/internal/kv"
	"tally/internal/log"
)

// Store holds the single current session of a front end such as the CLI.
type Store struct {
	mu      sync.RWMutex
	kv      kv.Store
	auth    *Authenticator
	current *core.Session
	logger  *log.Logger
}

type Option func(*Store)

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open restores the persisted session, if any. A corrupt entry is logged and
// treated as no session.
func Open(ctx context.Context, store kv.Store, auth *Authenticator, opts ...Option) (*Store, error) {
	if auth == nil {
		auth = NewAuthenticator(nil)
	}
	s := &Store{
		kv:     store,
		auth:   auth,
		logger: log.Wrap(nil, log.ComponentSession),
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, ok, err := store.Get(ctx, kv.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: read session: %w", core.ErrPersistence, err)
	}
	if !ok {
		return s, nil
	}

	var sess core.Session
	if err := json.Unmarshal(raw, &sess); err != nil || sess.ID == "" || sess.Email == "" {
		s.logger.Warn("ignoring unreadable session", log.FieldKey, kv.SessionKey, log.FieldError, err)
		return s, nil
	}
	s.current = &sess
	return s, nil
}

// Current returns the logged-in session.
func (s *Store) Current() (core.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return core.Session{}, false
	}
	return *s.current, true
}

func (s *Store) Login(ctx context.Context, email, password string) (core.Session, error) {
	sess, err := s.auth.Login(ctx, email, password)
	if err != nil {
		s.logger.WarnContext(ctx, "login rejected", log.FieldOperation, log.OpLogin, log.FieldError, err)
		return core.Session{}, err
	}
	if err := s.save(ctx, sess); err != nil {
		return core.Session{}, err
	}
	s.logger.InfoContext(ctx, "logged in", log.FieldOperation, log.OpLogin, log.FieldUserID, sess.ID)
	return sess, nil
}

func (s *Store) Signup(ctx context.Context, email, password, name string) (core.Session, error) {
	sess, err := s.auth.Signup(ctx, email, password, name)
	if err != nil {
		return core.Session{}, err
	}
	if err := s.save(ctx, sess); err != nil {
		return core.Session{}, err
	}
	s.logger.InfoContext(ctx, "signed up", log.FieldOperation, log.OpSignup, log.FieldUserID, sess.ID)
	return sess, nil
}

// Logout forgets the current session. Logging out twice is fine.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, kv.SessionKey); err != nil {
		return fmt.Errorf("%w: delete session: %w", core.ErrPersistence, err)
	}
	s.current = nil
	return nil
}

func (s *Store) save(ctx context.Context, sess core.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Set(ctx, kv.SessionKey, data); err != nil {
		return fmt.Errorf("%w: write session: %w", core.ErrPersistence, err)
	}
	s.current = &sess
	return nil
}
