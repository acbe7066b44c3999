package services

import (
	"context"
	"fmt"
	"strings"

	"dealtracker/models"
	"dealtracker/storage"
	"dealtracker/utils"
)

const (
	defaultDealLimit = 20
	maxDealLimit     = 100
	categoryLimit    = 20
)

// InsightService answers read queries over the deal cache
type InsightService struct {
	store  storage.DealQueries
	logger *utils.Logger
}

// NewInsightService creates a new InsightService
func NewInsightService(store storage.DealQueries, logger *utils.Logger) *InsightService {
	return &InsightService{store: store, logger: logger}
}

// Deals returns a page of active deals; unknown sort columns fall back to fetched_at
func (s *InsightService) Deals(ctx context.Context, f models.DealFilter) ([]models.Deal, int, error) {
	if f.Limit == 0 {
		f.Limit = defaultDealLimit
	}
	if f.Limit < 0 || f.Limit > maxDealLimit {
		return nil, 0, fmt.Errorf("limit must be between 1 and %d: %w", maxDealLimit, models.ErrInvalidInput)
	}
	if f.Offset < 0 {
		return nil, 0, fmt.Errorf("offset must not be negative: %w", models.ErrInvalidInput)
	}
	if f.MinDiscount < 0 || f.MinDiscount > 100 {
		return nil, 0, fmt.Errorf("min discount must be between 0 and 100: %w", models.ErrInvalidInput)
	}
	f.Category = strings.TrimSpace(f.Category)
	return s.store.ListDeals(ctx, f)
}

func (s *InsightService) Deal(ctx context.Context, id int64) (*models.Deal, error) {
	return s.store.GetDeal(ctx, id)
}

func (s *InsightService) Stats(ctx context.Context) (*models.DealStats, error) {
	st, err := s.store.DealStats(ctx)
	if err != nil {
		return nil, err
	}
	if st.TotalDeals == 0 {
		s.logger.Debug("Deal cache is empty")
	}
	return st, nil
}

// Categories returns the top categories by active deal count
func (s *InsightService) Categories(ctx context.Context) ([]models.CategoryCount, error) {
	return s.store.Categories(ctx, categoryLimit)
}
