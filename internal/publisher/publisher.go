// Package publisher owns the Instagram session of an account for the length
// of one run: it reuses the persisted session, logs in when needed and
// retries a post exactly once after an authentication failure.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/autopost/internal/instagram"
)

type State int

const (
	NoSession State = iota
	SessionLoaded
	SessionValid
	SessionInvalid
	LoginInProgress
	LoginFailed
)

func (s State) String() string {
	switch s {
	case NoSession:
		return "NO_SESSION"
	case SessionLoaded:
		return "SESSION_LOADED"
	case SessionValid:
		return "SESSION_VALID"
	case SessionInvalid:
		return "SESSION_INVALID"
	case LoginInProgress:
		return "LOGIN_IN_PROGRESS"
	case LoginFailed:
		return "LOGIN_FAILED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	ErrAuth                = errors.New("instagram authentication failed")
	ErrUnsupportedPlatform = errors.New("unsupported instagram platform")
)

// PostError is a post failure that is final for the image.
type PostError struct {
	Err     error
	Retried bool
}

func (e *PostError) Error() string {
	if e.Retried {
		return fmt.Sprintf("post failed after re-login: %v", e.Err)
	}
	return fmt.Sprintf("post failed: %v", e.Err)
}

func (e *PostError) Unwrap() error { return e.Err }

// SessionStore persists sessions by username. Load returns (nil, nil) when
// nothing is stored.
type SessionStore interface {
	Load(username string) (*instagram.Session, error)
	Save(s *instagram.Session) error
}

type Manager struct {
	clients map[string]instagram.Client
	store   SessionStore
	logger  *slog.Logger
}

func NewManager(store SessionStore, clients map[string]instagram.Client) *Manager {
	return &Manager{clients: clients, store: store, logger: slog.Default()}
}

// Open returns an idle Publisher for one account. Nothing touches the
// network until the first Post.
func (m *Manager) Open(platform, username, password string) (*Publisher, error) {
	client, ok := m.clients[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, platform)
	}
	return &Publisher{
		client:   client,
		store:    m.store,
		username: username,
		password: password,
		logger:   m.logger.With("username", username, "platform", platform),
	}, nil
}

// Publisher is single-use per run and not safe for concurrent use; the
// per-account run guard serializes access.
type Publisher struct {
	client   instagram.Client
	store    SessionStore
	username string
	password string
	logger   *slog.Logger

	state    State
	session  *instagram.Session
	loginErr error
	logins   int
}

func (p *Publisher) State() State { return p.state }

// Logins counts login attempts made by this publisher.
func (p *Publisher) Logins() int { return p.logins }

// Err returns the stored login error once the publisher is in LoginFailed.
func (p *Publisher) Err() error {
	if p.state == LoginFailed {
		return p.loginErr
	}
	return nil
}

// Post publishes one photo and returns the media id. An authentication
// failure triggers one re-login and one retried post.
func (p *Publisher) Post(ctx context.Context, photo instagram.Photo, caption string) (string, error) {
	if err := p.ensureSession(ctx); err != nil {
		return "", err
	}

	mediaID, err := p.client.PostPhoto(ctx, p.session, photo, caption)
	if err == nil {
		return mediaID, nil
	}
	if !instagram.IsAuthFailure(err) {
		return "", &PostError{Err: err}
	}

	p.logger.Warn("session rejected while posting, logging in again", "image", photo.Name, "error", err)
	p.state = SessionInvalid
	if err := p.login(ctx); err != nil {
		return "", err
	}

	mediaID, err = p.client.PostPhoto(ctx, p.session, photo, caption)
	if err != nil {
		if instagram.IsAuthFailure(err) {
			p.state = SessionInvalid
		}
		return "", &PostError{Err: err, Retried: true}
	}
	return mediaID, nil
}

func (p *Publisher) ensureSession(ctx context.Context) error {
	switch p.state {
	case SessionValid:
		return nil
	case LoginFailed:
		return p.loginErr
	case SessionInvalid:
		return p.login(ctx)
	}

	sess, err := p.store.Load(p.username)
	if err != nil {
		p.logger.Warn("ignoring unreadable stored session", "error", err)
		sess = nil
	}
	if sess == nil {
		return p.login(ctx)
	}

	p.session = sess
	p.state = SessionLoaded
	if err := p.client.Validate(ctx, sess); err != nil {
		p.logger.Info("stored session is no longer valid", "error", err)
		p.state = SessionInvalid
		return p.login(ctx)
	}

	p.state = SessionValid
	p.persist()
	return nil
}

func (p *Publisher) login(ctx context.Context) error {
	p.state = LoginInProgress
	p.logins++

	sess, err := p.client.Login(ctx, p.username, p.password, p.session)
	if err != nil {
		p.state = LoginFailed
		p.session = nil
		p.loginErr = fmt.Errorf("%w: %w", ErrAuth, err)
		p.logger.Error("instagram login failed", "error", err)
		return p.loginErr
	}

	p.session = sess
	p.state = SessionValid
	p.persist()
	p.logger.Info("logged in to instagram")
	return nil
}

func (p *Publisher) persist() {
	if err := p.store.Save(p.session); err != nil {
		p.logger.Warn("failed to persist instagram session", "error", err)
	}
}
