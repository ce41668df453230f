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

type AccountRepository interface {
	Create(ctx context.Context, a *models.Account) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, a *models.Account) error
	Remove(ctx context.Context, id int64) error
}

type accountRepository struct {
	db *sqlx.DB
}

var _ AccountRepository = (*accountRepository)(nil)

func NewAccountRepository(db *sqlx.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, a *models.Account) (int64, error) {
	query := `
		INSERT INTO accounts (
			name,
			instagram_username,
			instagram_password,
			platform,
			storage_provider,
			storage_credentials,
			folder_id,
			caption_provider,
			caption_api_key,
			caption_prompt,
			morning_post,
			morning_time,
			afternoon_post,
			afternoon_time,
			evening_post,
			evening_time,
			created_at,
			updated_at
		)
		VALUES (
			:name,
			:instagram_username,
			:instagram_password,
			:platform,
			:storage_provider,
			:storage_credentials,
			:folder_id,
			:caption_provider,
			:caption_api_key,
			:caption_prompt,
			:morning_post,
			:morning_time,
			:afternoon_post,
			:afternoon_time,
			:evening_post,
			:evening_time,
			:created_at,
			:updated_at
		)
		RETURNING id
	`

	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	stmt, err := r.db.PrepareNamedContext(ctx, query)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	defer stmt.Close()

	var id int64
	if err := stmt.GetContext(ctx, &id, a); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	a.ID = id
	return id, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	var a models.Account
	err := r.db.GetContext(ctx, &a, r.db.Rebind(`SELECT * FROM accounts WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &a, nil
}

func (r *accountRepository) List(ctx context.Context) ([]*models.Account, error) {
	var accounts []*models.Account
	if err := r.db.SelectContext(ctx, &accounts, `SELECT * FROM accounts ORDER BY id`); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM accounts`); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return n, nil
}

func (r *accountRepository) Update(ctx context.Context, a *models.Account) error {
	query := `
		UPDATE accounts
		SET
			name = :name,
			instagram_username = :instagram_username,
			instagram_password = :instagram_password,
			platform = :platform,
			storage_provider = :storage_provider,
			storage_credentials = :storage_credentials,
			folder_id = :folder_id,
			caption_provider = :caption_provider,
			caption_api_key = :caption_api_key,
			caption_prompt = :caption_prompt,
			morning_post = :morning_post,
			morning_time = :morning_time,
			afternoon_post = :afternoon_post,
			afternoon_time = :afternoon_time,
			evening_post = :evening_post,
			evening_time = :evening_time,
			updated_at = :updated_at
		WHERE id = :id
	`

	a.UpdatedAt = time.Now().UTC()

	result, err := r.db.NamedExecContext(ctx, query, a)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return expectAffected(result)
}

// Remove deletes the account and its publication history in one transaction.
func (r *accountRepository) Remove(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM publication_history WHERE account_id = ?`), id); err != nil {
		slog.Info(err.Error())
		return err
	}

	result, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM accounts WHERE id = ?`), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if err := expectAffected(result); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func expectAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
