// Package auth is the session store: it owns the durable session record and
// keeps the gateway's active credential in step with it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/kidandcat/taskflow/internal/api"
	"github.com/kidandcat/taskflow/internal/db"
	"github.com/kidandcat/taskflow/internal/model"
)

const (
	minUsernameLen = 3
	minPasswordLen = 6
)

// Storage persists the single session record.
type Storage interface {
	SaveSession(rec db.SessionRecord) error
	LoadSession() (*db.SessionRecord, error)
	ClearSession() error
}

// Gateway is the subset of the remote API the session store calls.
type Gateway interface {
	Login(ctx context.Context, username, password string) (*api.TokenResponse, error)
	Register(ctx context.Context, username, password string) (*api.User, error)
	Me(ctx context.Context) (*api.User, error)
}

// AuthError is returned by Login, Register and Logout.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *AuthError) Unwrap() error { return e.Err }

type Store struct {
	mu      sync.Mutex // guards the commit step of login and logout
	storage Storage
	gateway Gateway
	creds   *api.Credentials
	logger  *log.Logger
}

type Option func(*Store)

func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore restores a persisted session, if any, into creds.
func NewStore(storage Storage, gateway Gateway, creds *api.Credentials, opts ...Option) *Store {
	s := &Store{storage: storage, gateway: gateway, creds: creds, logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if sess := s.session(); sess.Valid() {
		creds.Set(sess.Token)
	}
	return s
}

// session returns the stored session, or a zero Session when logged out.
func (s *Store) session() model.Session {
	rec, err := s.storage.LoadSession()
	if err != nil {
		s.logger.Printf("error loading session: %v", err)
		return model.Session{}
	}
	if rec == nil {
		return model.Session{}
	}
	return model.Session{Token: rec.Token, UserID: rec.UserID, Username: rec.Username, CreatedAt: rec.CreatedAt}
}

// ErrSuperseded means a logout or another login changed the active
// credential while a login was in flight. Nothing was stored.
var ErrSuperseded = errors.New("session changed during sign-in")

// Login authenticates, persists the session and makes its token the active
// credential. Nothing is stored unless the identity lookup also succeeds.
func (s *Store) Login(ctx context.Context, username, password string) (model.Session, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return model.Session{}, &AuthError{Op: "login", Err: api.ValidationError("username and password required")}
	}
	sess, err := s.login(ctx, s.creds.Epoch(), username, password)
	if err != nil {
		return model.Session{}, &AuthError{Op: "login", Err: err}
	}
	return sess, nil
}

// login runs the network round trips unlocked and commits only if the
// credential epoch is still the one the caller started from.
func (s *Store) login(ctx context.Context, epoch uint64, username, password string) (model.Session, error) {
	tok, err := s.gateway.Login(ctx, username, password)
	if err != nil {
		return model.Session{}, err
	}
	me, err := s.gateway.Me(api.WithToken(ctx, tok.AccessToken))
	if err != nil {
		return model.Session{}, err
	}
	sess := model.Session{
		Token:     tok.AccessToken,
		UserID:    me.ID,
		Username:  me.Username,
		CreatedAt: model.ParseTime(me.CreatedAt),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds.Epoch() != epoch {
		s.logger.Printf("auth: discarding login for %s, session changed", sess.Username)
		return model.Session{}, ErrSuperseded
	}
	rec := db.SessionRecord{Token: sess.Token, UserID: sess.UserID, Username: sess.Username, CreatedAt: sess.CreatedAt}
	if err := s.storage.SaveSession(rec); err != nil {
		return model.Session{}, fmt.Errorf("persist session: %w", err)
	}
	s.creds.Set(sess.Token)
	return sess, nil
}

// Register creates the account and then logs in with the same credentials.
func (s *Store) Register(ctx context.Context, username, password string) (model.Session, error) {
	username = strings.TrimSpace(username)
	if utf8.RuneCountInString(username) < minUsernameLen {
		return model.Session{}, &AuthError{Op: "register", Err: api.ValidationError("Username must be at least %d characters", minUsernameLen)}
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return model.Session{}, &AuthError{Op: "register", Err: api.ValidationError("Password must be at least %d characters", minPasswordLen)}
	}

	epoch := s.creds.Epoch()
	if _, err := s.gateway.Register(ctx, username, password); err != nil {
		return model.Session{}, &AuthError{Op: "register", Err: err}
	}
	sess, err := s.login(ctx, epoch, username, password)
	if err != nil {
		return model.Session{}, &AuthError{Op: "register", Err: err}
	}
	return sess, nil
}

// IsAuthenticated reads durable storage only.
func (s *Store) IsAuthenticated() bool {
	return s.session().Valid()
}

func (s *Store) CurrentUser() *model.UserBrief {
	sess := s.session()
	if !sess.Valid() {
		return nil
	}
	u := sess.User()
	return &u
}

// Logout clears the stored session and the active credential. Calling it
// while logged out is a no-op.
func (s *Store) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds.Clear()
	if err := s.storage.ClearSession(); err != nil {
		return &AuthError{Op: "logout", Err: err}
	}
	return nil
}
