package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/repository"
	"github.com/maheshrc27/autopost/internal/transfer"
	"github.com/maheshrc27/autopost/pkg/utils"
)

var (
	ErrAccountLimit = errors.New("maximum number of accounts reached")
	ErrValidation   = errors.New("invalid account")
)

type AccountService interface {
	CredentialStore
	Create(ctx context.Context, req *transfer.AccountRequest) (*models.Account, error)
	Update(ctx context.Context, id int64, req *transfer.AccountRequest) (*models.Account, error)
	Remove(ctx context.Context, id int64) error
	// Get returns the account without its secrets.
	Get(ctx context.Context, id int64) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
}

type accountService struct {
	a           repository.AccountRepository
	key         []byte
	maxAccounts int
}

// NewAccountService seals secrets with key when it is non-empty.
func NewAccountService(a repository.AccountRepository, key []byte, maxAccounts int) AccountService {
	return &accountService{
		a:           a,
		key:         key,
		maxAccounts: maxAccounts,
	}
}

func (s *accountService) Create(ctx context.Context, req *transfer.AccountRequest) (*models.Account, error) {
	if s.maxAccounts > 0 {
		n, err := s.a.Count(ctx)
		if err != nil {
			return nil, err
		}
		if n >= int64(s.maxAccounts) {
			err = fmt.Errorf("%w (%d)", ErrAccountLimit, s.maxAccounts)
			slog.Info(err.Error())
			return nil, err
		}
	}

	acct := &models.Account{
		MorningPost:   true,
		MorningTime:   models.DefaultMorningTime,
		AfternoonPost: true,
		AfternoonTime: models.DefaultAfternoonTime,
		EveningPost:   true,
		EveningTime:   models.DefaultEveningTime,
	}
	if err := s.apply(acct, req, true); err != nil {
		return nil, err
	}
	if err := s.checkUsername(ctx, acct); err != nil {
		return nil, err
	}

	if _, err := s.a.Create(ctx, acct); err != nil {
		return nil, fmt.Errorf("saving account: %w", err)
	}
	return redact(acct), nil
}

func (s *accountService) Update(ctx context.Context, id int64, req *transfer.AccountRequest) (*models.Account, error) {
	acct, err := s.a.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}

	if err := s.apply(acct, req, false); err != nil {
		return nil, err
	}
	if err := s.checkUsername(ctx, acct); err != nil {
		return nil, err
	}

	if err := s.a.Update(ctx, acct); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("updating account: %w", err)
	}
	return redact(acct), nil
}

func (s *accountService) Remove(ctx context.Context, id int64) error {
	if err := s.a.Remove(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	return nil
}

func (s *accountService) Get(ctx context.Context, id int64) (*models.Account, error) {
	acct, err := s.a.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}
	return redact(acct), nil
}

func (s *accountService) List(ctx context.Context) ([]*models.Account, error) {
	accounts, err := s.a.List(ctx)
	if err != nil {
		return nil, err
	}
	for i, acct := range accounts {
		accounts[i] = redact(acct)
	}
	return accounts, nil
}

// GetAccount returns the account with its secrets opened, or (nil, nil)
// when it does not exist.
func (s *accountService) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	acct, err := s.a.GetByID(ctx, id)
	if err != nil || acct == nil {
		return nil, err
	}
	if err := s.openSecrets(acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// ListAccounts returns schedule snapshots. Secrets stay sealed.
func (s *accountService) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	return s.a.List(ctx)
}

func (s *accountService) apply(acct *models.Account, req *transfer.AccountRequest, creating bool) error {
	if req == nil {
		return fmt.Errorf("%w: empty request", ErrValidation)
	}

	name := strings.TrimSpace(req.Name)
	username := strings.TrimSpace(req.InstagramUsername)
	if creating || name != "" {
		if name == "" {
			return fmt.Errorf("%w: name is required", ErrValidation)
		}
		acct.Name = name
	}
	if creating || username != "" {
		if username == "" {
			return fmt.Errorf("%w: instagram username is required", ErrValidation)
		}
		acct.InstagramUsername = username
	}
	if creating && req.InstagramPassword == "" {
		return fmt.Errorf("%w: instagram password is required", ErrValidation)
	}

	var err error
	if acct.Platform, err = pick(req.Platform, acct.Platform, models.PlatformMobile, models.PlatformMobile, models.PlatformGraph); err != nil {
		return err
	}
	if acct.StorageProvider, err = pick(req.StorageProvider, acct.StorageProvider, models.StorageDrive, models.StorageDrive, models.StorageR2); err != nil {
		return err
	}
	if acct.CaptionProvider, err = pick(req.CaptionProvider, acct.CaptionProvider, models.CaptionGemini, models.CaptionGemini, models.CaptionAnthropic); err != nil {
		return err
	}

	if req.FolderID != nil {
		acct.FolderID = strings.TrimSpace(*req.FolderID)
	}
	if req.CaptionPrompt != nil {
		acct.CaptionPrompt = strings.TrimSpace(*req.CaptionPrompt)
	}

	slots := []struct {
		enabled *bool
		value   string
		post    *bool
		time    *string
	}{
		{req.MorningPost, req.MorningTime, &acct.MorningPost, &acct.MorningTime},
		{req.AfternoonPost, req.AfternoonTime, &acct.AfternoonPost, &acct.AfternoonTime},
		{req.EveningPost, req.EveningTime, &acct.EveningPost, &acct.EveningTime},
	}
	for _, slot := range slots {
		if slot.enabled != nil {
			*slot.post = *slot.enabled
		}
		if v := strings.TrimSpace(slot.value); v != "" {
			if _, err := time.Parse("15:04", v); err != nil {
				return fmt.Errorf("%w: time %q is not HH:MM", ErrValidation, v)
			}
			*slot.time = v
		}
	}

	secrets := []struct {
		value string
		field *string
	}{
		{req.InstagramPassword, &acct.InstagramPassword},
		{strings.TrimSpace(req.StorageCredentials), &acct.StorageCredentials},
		{strings.TrimSpace(req.CaptionAPIKey), &acct.CaptionAPIKey},
	}
	for _, secret := range secrets {
		if secret.value == "" {
			continue
		}
		sealed, err := s.seal(secret.value)
		if err != nil {
			return err
		}
		*secret.field = sealed
	}
	return nil
}

// checkUsername rejects a username that another account already uses. Sessions
// are stored per username, so two accounts must never share one.
func (s *accountService) checkUsername(ctx context.Context, acct *models.Account) error {
	accounts, err := s.a.List(ctx)
	if err != nil {
		return err
	}
	for _, other := range accounts {
		if other.ID != acct.ID && strings.EqualFold(other.InstagramUsername, acct.InstagramUsername) {
			err := fmt.Errorf("%w: instagram username %q is already used by account %d", ErrValidation, acct.InstagramUsername, other.ID)
			slog.Info(err.Error())
			return err
		}
	}
	return nil
}

// pick keeps current when value is blank, falls back to def when both are
// blank, and rejects anything outside allowed.
func pick(value, current, def string, allowed ...string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		if current != "" {
			return current, nil
		}
		return def, nil
	}
	for _, a := range allowed {
		if value == a {
			return value, nil
		}
	}
	return "", fmt.Errorf("%w: %q is not one of %s", ErrValidation, value, strings.Join(allowed, ", "))
}

func (s *accountService) seal(value string) (string, error) {
	if len(s.key) == 0 {
		return value, nil
	}
	sealed, err := utils.Encrypt([]byte(value), s.key)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("encrypting secret: %w", err)
	}
	return sealed, nil
}

func (s *accountService) openSecrets(acct *models.Account) error {
	if len(s.key) == 0 {
		return nil
	}
	for _, field := range []*string{&acct.InstagramPassword, &acct.StorageCredentials, &acct.CaptionAPIKey} {
		if *field == "" {
			continue
		}
		plain, err := utils.Decrypt(*field, s.key)
		if err != nil {
			slog.Info(err.Error())
			return fmt.Errorf("%w: stored secret cannot be decrypted with SECRET_KEY", ErrConfig)
		}
		*field = plain
	}
	return nil
}

func redact(acct *models.Account) *models.Account {
	acct.InstagramPassword = ""
	acct.StorageCredentials = ""
	acct.CaptionAPIKey = ""
	return acct
}
