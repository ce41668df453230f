// Package app wires configuration, persistence and services into one
// graph shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"
	config "github.com/maheshrc27/autopost/configs"
	"github.com/maheshrc27/autopost/internal/caption"
	"github.com/maheshrc27/autopost/internal/instagram"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/publisher"
	"github.com/maheshrc27/autopost/internal/repository"
	"github.com/maheshrc27/autopost/internal/scheduler"
	"github.com/maheshrc27/autopost/internal/service"
	"github.com/maheshrc27/autopost/internal/storage"
	"github.com/maheshrc27/autopost/pkg/utils"
)

type App struct {
	Config       *config.Config
	DB           *sqlx.DB
	Accounts     service.AccountService
	History      service.HistoryService
	ApiKeys      service.ApiKeyService
	Auth         service.AuthService
	Publications service.PublicationService
	Scheduler    *scheduler.Scheduler
}

// New opens the database, applies migrations and builds every service.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	key := cfg.EncryptionKey()
	if len(key) > 0 && !utils.ValidKey(key) {
		return nil, fmt.Errorf("SECRET_KEY must be 16, 24 or 32 bytes, got %d", len(key))
	}
	if len(key) == 0 {
		slog.Warn("SECRET_KEY is not set: secrets and sessions are stored unencrypted and session login is disabled")
	}

	db, err := repository.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	accountRepo := repository.NewAccountRepository(db)
	historyRepo := repository.NewPublicationHistoryRepository(db)
	apiKeyRepo := repository.NewApiKeyRepository(db)

	accounts := service.NewAccountService(accountRepo, key, cfg.MaxAccounts)

	captions := caption.NewGenerator(cfg.CaptionTimeout, map[string]caption.Provider{
		models.CaptionGemini:    caption.NewGeminiProvider(cfg.GeminiModel, httpClient),
		models.CaptionAnthropic: caption.NewAnthropicProvider(cfg.AnthropicModel),
	})

	var stager instagram.Stager
	if cfg.R2.BucketName != "" && cfg.R2.PublicURL != "" {
		r2Stager, err := instagram.NewR2Stager(ctx, storage.R2Config{
			AccountID: cfg.R2.AccountID,
			AccessKey: cfg.R2.AccessKey,
			SecretKey: cfg.R2.SecretKey,
			Bucket:    cfg.R2.BucketName,
		}, cfg.R2.PublicURL, httpClient)
		if err != nil {
			slog.Warn("graph staging bucket unavailable", "error", err)
		} else {
			stager = r2Stager
		}
	}

	sessions := publisher.NewManager(
		publisher.NewFileSessionStore(cfg.SessionsDir, key),
		map[string]instagram.Client{
			models.PlatformMobile: instagram.NewMobileClient(httpClient),
			models.PlatformGraph:  instagram.NewGraphClient(httpClient, stager),
		},
	)

	publications := service.NewPublicationService(
		accounts,
		historyRepo,
		storage.NewOpener(cfg.HTTPTimeout),
		captions,
		sessions,
		service.PublicationOptions{TempDir: cfg.TempDir, RunTimeout: cfg.RunTimeout},
	)

	sched := scheduler.New(accounts, publications,
		scheduler.WithLocation(cfg.Location()),
		scheduler.WithMaxConcurrent(cfg.MaxConcurrentRuns),
	)

	return &App{
		Config:       cfg,
		DB:           db,
		Accounts:     accounts,
		History:      service.NewHistoryService(historyRepo, cfg.Location()),
		ApiKeys:      service.NewApiKeyService(apiKeyRepo),
		Auth:         service.NewAuthService(cfg),
		Publications: publications,
		Scheduler:    sched,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
