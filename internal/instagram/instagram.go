// Package instagram talks to Instagram through either the private mobile API
// (username and password) or the Graph API (long-lived access token).
package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLoginRequired means the session is no longer accepted and a fresh
	// login may fix it.
	ErrLoginRequired = errors.New("login_required")
	// ErrChallengeRequired means Instagram wants manual verification of the
	// login; retrying will not help.
	ErrChallengeRequired = errors.New("challenge_required: Instagram asks for manual verification of this login, approve it from the app and try again")
	ErrBadCredentials    = errors.New("instagram rejected the username or password")
)

// APIError carries the raw failure from either backend.
type APIError struct {
	StatusCode int
	Code       int
	Type       string
	Message    string
	kind       error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "no message"
	}
	if e.Type != "" {
		return fmt.Sprintf("instagram api error %d (%s): %s", e.StatusCode, e.Type, msg)
	}
	return fmt.Sprintf("instagram api error %d: %s", e.StatusCode, msg)
}

func (e *APIError) Unwrap() error { return e.kind }

// IsAuthFailure reports whether err carries an authentication failure
// signature that a re-login can cure.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrLoginRequired)
}

type Photo struct {
	Name     string
	Data     []byte
	MimeType string
}

type Client interface {
	// Login starts a fresh session. prev is the stale session of the same
	// username, or nil.
	Login(ctx context.Context, username, password string, prev *Session) (*Session, error)
	Validate(ctx context.Context, s *Session) error
	PostPhoto(ctx context.Context, s *Session, photo Photo, caption string) (string, error)
}

// Session is the persisted login state of one Instagram username.
type Session struct {
	Username      string            `json:"username"`
	Backend       string            `json:"backend"`
	UserID        string            `json:"user_id,omitempty"`
	Device        *Device           `json:"device,omitempty"`
	Cookies       map[string]string `json:"cookies,omitempty"`
	Authorization string            `json:"authorization,omitempty"`
	AccessToken   string            `json:"access_token,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	ValidatedAt   time.Time         `json:"validated_at,omitempty"`
}

// Device identifies the emulated phone of a mobile session. It is kept
// across logins so Instagram sees a stable device.
type Device struct {
	UUID      string `json:"uuid"`
	PhoneID   string `json:"phone_id"`
	AndroidID string `json:"android_device_id"`
}

func (s *Session) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func UnmarshalSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if s.Username == "" {
		return nil, errors.New("decoding session: missing username")
	}
	return &s, nil
}
