package store

import (
	"context"

	"github.com/seantiz/ember/internal/model"
)

// ResetStats holds aggregate recovery statistics.
type ResetStats struct {
	Total          int            `json:"total"`
	CountByEngine  map[string]int `json:"count_by_engine"`
	CountByOutcome map[string]int `json:"count_by_outcome"`
	AvgDurationMS  float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for reset history.
type Store interface {
	CreateResetEvent(ctx context.Context, ev *model.ResetEvent) error
	GetResetEvent(ctx context.Context, id string) (*model.ResetEvent, error)
	ListResetEvents(ctx context.Context, limit, offset int) ([]*model.ResetEvent, int, error)
	GetResetStats(ctx context.Context) (*ResetStats, error)
	Close() error
}
