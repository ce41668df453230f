package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/repository"
	"github.com/maheshrc27/autopost/pkg/utils"
)

const maxApiKeys = 5

var (
	ErrApiKeyLimit    = errors.New("only 5 API keys can be created")
	ErrApiKeyNotFound = errors.New("key doesn't exist")
)

type ApiKeyService interface {
	Create(ctx context.Context, name string) (*models.ApiKey, error)
	List(ctx context.Context) ([]*models.ApiKey, error)
	Authenticate(ctx context.Context, apiKey string) (*models.ApiKey, error)
	RemoveAPIKey(ctx context.Context, keyID int64) error
}

type apiKeyService struct {
	k repository.ApiKeyRepository
}

func NewApiKeyService(k repository.ApiKeyRepository) ApiKeyService {
	return &apiKeyService{
		k: k,
	}
}

func (s *apiKeyService) Create(ctx context.Context, name string) (*models.ApiKey, error) {
	keys, err := s.k.List(ctx)
	if err != nil {
		return nil, err
	}

	if len(keys) >= maxApiKeys {
		slog.Info(ErrApiKeyLimit.Error())
		return nil, ErrApiKeyLimit
	}

	key, err := utils.GenerateAPIKey(24)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("error generating API key")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = "default"
	}
	apiKey := &models.ApiKey{
		Name:   name,
		ApiKey: key,
	}

	if _, err = s.k.Create(ctx, apiKey); err != nil {
		return nil, fmt.Errorf("error saving API key")
	}
	return apiKey, nil
}

func (s *apiKeyService) Authenticate(ctx context.Context, apiKey string) (*models.ApiKey, error) {
	if apiKey == "" {
		return nil, ErrApiKeyNotFound
	}
	key, err := s.k.GetByKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, ErrApiKeyNotFound
	}
	return key, nil
}

func (s *apiKeyService) List(ctx context.Context) ([]*models.ApiKey, error) {
	apiKeys, err := s.k.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting API keys")
	}
	return apiKeys, nil
}

func (s *apiKeyService) RemoveAPIKey(ctx context.Context, keyID int64) error {
	if keyID == 0 {
		err := errors.New("KeyID is not valid")
		slog.Info(err.Error())
		return err
	}

	if err := s.k.Remove(ctx, keyID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrApiKeyNotFound
		}
		return err
	}
	return nil
}
