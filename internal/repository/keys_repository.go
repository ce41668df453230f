package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/maheshrc27/autopost/internal/models"
)

type ApiKeyRepository interface {
	GetByKey(ctx context.Context, apiKey string) (*models.ApiKey, error)
	List(ctx context.Context) ([]*models.ApiKey, error)
	Create(ctx context.Context, apiKey *models.ApiKey) (int64, error)
	Remove(ctx context.Context, id int64) error
}

type apiKeyRepository struct {
	db *sqlx.DB
}

var _ ApiKeyRepository = (*apiKeyRepository)(nil)

func NewApiKeyRepository(db *sqlx.DB) ApiKeyRepository {
	return &apiKeyRepository{db: db}
}

func (r *apiKeyRepository) GetByKey(ctx context.Context, apiKey string) (*models.ApiKey, error) {
	var key models.ApiKey
	err := r.db.GetContext(ctx, &key, r.db.Rebind(`SELECT * FROM api_keys WHERE api_key = ?`), apiKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &key, nil
}

func (r *apiKeyRepository) List(ctx context.Context) ([]*models.ApiKey, error) {
	var keys []*models.ApiKey
	if err := r.db.SelectContext(ctx, &keys, `SELECT * FROM api_keys ORDER BY id`); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return keys, nil
}

func (r *apiKeyRepository) Create(ctx context.Context, apiKey *models.ApiKey) (int64, error) {
	var id int64
	apiKey.CreatedAt = time.Now().UTC()
	query := r.db.Rebind(`INSERT INTO api_keys (name, api_key, created_at) VALUES (?, ?, ?) RETURNING id`)
	if err := r.db.QueryRowxContext(ctx, query, apiKey.Name, apiKey.ApiKey, apiKey.CreatedAt).Scan(&id); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	apiKey.ID = id
	return id, nil
}

func (r *apiKeyRepository) Remove(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM api_keys WHERE id = ?`), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return expectAffected(result)
}
