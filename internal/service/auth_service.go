package service

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"time"

	config "github.com/maheshrc27/autopost/configs"
	"github.com/maheshrc27/autopost/pkg/utils"
)

const sessionDuration = 24 * time.Hour

var ErrInvalidLogin = errors.New("invalid username or password")

type AuthService interface {
	// Login checks the admin credentials and returns a signed session token.
	Login(username, password string) (string, error)
	SessionDuration() time.Duration
}

type authService struct {
	cfg *config.Config
}

func NewAuthService(cfg *config.Config) AuthService {
	return &authService{
		cfg: cfg,
	}
}

func (s *authService) Login(username, password string) (string, error) {
	if s.cfg.AdminPassword == "" || s.cfg.SecretKey == "" {
		err := errors.New("admin login is disabled: ADMIN_PASSWORD and SECRET_KEY must be set")
		slog.Info(err.Error())
		return "", err
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.AdminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.AdminPassword)) == 1
	if !userOK || !passOK {
		slog.Info(ErrInvalidLogin.Error(), "username", username)
		return "", ErrInvalidLogin
	}

	token, err := utils.GenerateToken(s.cfg.SecretKey, username, sessionDuration)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	return token, nil
}

func (s *authService) SessionDuration() time.Duration {
	return sessionDuration
}
