package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/maheshrc27/autopost/internal/models"
)

type PublicationHistoryRepository interface {
	Append(ctx context.Context, rec *models.PublicationRecord) error
	List(ctx context.Context, limit int) ([]*models.PublicationRecord, error)
	ListByAccountID(ctx context.Context, accountID int64, limit int) ([]*models.PublicationRecord, error)
	CountByAccountID(ctx context.Context, accountID int64) (int64, error)
	Stats(ctx context.Context, monthStart time.Time, recent int) (*models.PublicationStats, error)
}

type publicationHistoryRepository struct {
	db *sqlx.DB
}

var _ PublicationHistoryRepository = (*publicationHistoryRepository)(nil)

func NewPublicationHistoryRepository(db *sqlx.DB) PublicationHistoryRepository {
	return &publicationHistoryRepository{db: db}
}

func (r *publicationHistoryRepository) Append(ctx context.Context, rec *models.PublicationRecord) error {
	query := r.db.Rebind(`
		INSERT INTO publication_history (account_id, recorded_at, status, details, image_name)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`)

	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	rec.RecordedAt = rec.RecordedAt.UTC()

	var imageName sql.NullString
	if rec.ImageName != nil {
		imageName = sql.NullString{String: *rec.ImageName, Valid: true}
	}

	var id int64
	err := r.db.QueryRowxContext(ctx, query, rec.AccountID, rec.RecordedAt, rec.Status, rec.Details, imageName).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	rec.ID = id
	return nil
}

// List returns the newest records across all accounts.
func (r *publicationHistoryRepository) List(ctx context.Context, limit int) ([]*models.PublicationRecord, error) {
	var records []*models.PublicationRecord
	query := r.db.Rebind(`SELECT * FROM publication_history ORDER BY recorded_at DESC, id DESC LIMIT ?`)
	if err := r.db.SelectContext(ctx, &records, query, limit); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return records, nil
}

func (r *publicationHistoryRepository) ListByAccountID(ctx context.Context, accountID int64, limit int) ([]*models.PublicationRecord, error) {
	var records []*models.PublicationRecord
	query := r.db.Rebind(`
		SELECT * FROM publication_history
		WHERE account_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`)
	if err := r.db.SelectContext(ctx, &records, query, accountID, limit); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return records, nil
}

func (r *publicationHistoryRepository) CountByAccountID(ctx context.Context, accountID int64) (int64, error) {
	var n int64
	query := r.db.Rebind(`SELECT COUNT(*) FROM publication_history WHERE account_id = ?`)
	if err := r.db.GetContext(ctx, &n, query, accountID); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return n, nil
}

// Stats aggregates dashboard counters; ThisMonth counts records at or after
// monthStart.
func (r *publicationHistoryRepository) Stats(ctx context.Context, monthStart time.Time, recent int) (*models.PublicationStats, error) {
	var stats models.PublicationStats

	counters := []struct {
		dest  *int64
		query string
		args  []interface{}
	}{
		{&stats.Total, `SELECT COUNT(*) FROM publication_history`, nil},
		{&stats.Success, `SELECT COUNT(*) FROM publication_history WHERE status = ?`, []interface{}{models.PublicationStatusSuccess}},
		{&stats.Error, `SELECT COUNT(*) FROM publication_history WHERE status = ?`, []interface{}{models.PublicationStatusError}},
		{&stats.ThisMonth, `SELECT COUNT(*) FROM publication_history WHERE recorded_at >= ?`, []interface{}{monthStart.UTC()}},
	}
	for _, c := range counters {
		if err := r.db.GetContext(ctx, c.dest, r.db.Rebind(c.query), c.args...); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
	}

	latest, err := r.List(ctx, recent)
	if err != nil {
		return nil, err
	}
	stats.Recent = latest
	return &stats, nil
}
