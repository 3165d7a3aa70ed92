package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/irrigation-advisor/internal/models"
	"github.com/kjstillabower/irrigation-advisor/internal/observability"
	"github.com/kjstillabower/irrigation-advisor/internal/store"
)

// HistoryService lists and deletes advisory history records.
type HistoryService struct {
	store store.HistoryStore
	limit int
}

func NewHistoryService(s store.HistoryStore, limit int) *HistoryService {
	if limit <= 0 {
		limit = store.DefaultHistoryLimit
	}
	return &HistoryService{store: s, limit: limit}
}

// Recent returns the user's newest records, at most the configured limit.
func (s *HistoryService) Recent(ctx context.Context, userID string) ([]models.HistoryRecord, error) {
	records, err := s.store.RecentRecords(ctx, strings.TrimSpace(userID), s.limit)
	if err != nil {
		observability.StoreErrorsTotal.WithLabelValues("recent_records").Inc()
		observability.LoggerFromContext(ctx).Error("history read failed", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("%w: recent records: %w", ErrPersistence, err)
	}
	return records, nil
}

// Delete removes a record by id. Any caller may delete any record; an unknown id succeeds.
func (s *HistoryService) Delete(ctx context.Context, id string) error {
	err := s.store.DeleteRecord(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrInvalidID):
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	observability.StoreErrorsTotal.WithLabelValues("delete_record").Inc()
	observability.LoggerFromContext(ctx).Error("history delete failed", zap.String("id", id), zap.Error(err))
	return fmt.Errorf("%w: delete record: %w", ErrPersistence, err)
}
