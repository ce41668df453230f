package service

import (
	"context"
	"time"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/repository"
)

const (
	defaultHistoryLimit = 100
	recentRecords       = 5
)

type HistoryService interface {
	// List returns records newest first, for one account when accountID is
	// non-zero.
	List(ctx context.Context, accountID int64, limit int) ([]*models.PublicationRecord, error)
	Stats(ctx context.Context) (*models.PublicationStats, error)
}

type historyService struct {
	h   repository.PublicationHistoryRepository
	loc *time.Location
	now func() time.Time
}

func NewHistoryService(h repository.PublicationHistoryRepository, loc *time.Location) HistoryService {
	if loc == nil {
		loc = time.Local
	}
	return &historyService{h: h, loc: loc, now: time.Now}
}

func (s *historyService) List(ctx context.Context, accountID int64, limit int) ([]*models.PublicationRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if accountID != 0 {
		return s.h.ListByAccountID(ctx, accountID, limit)
	}
	return s.h.List(ctx, limit)
}

func (s *historyService) Stats(ctx context.Context) (*models.PublicationStats, error) {
	now := s.now().In(s.loc)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	return s.h.Stats(ctx, monthStart.UTC(), recentRecords)
}
