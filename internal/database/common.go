package database

import (
	"context"
	"fmt"
	"sort"

	"github.com/tasklane/tasklane/internal/config"
	"github.com/tasklane/tasklane/internal/model"
)

// NewDatabase opens the backend selected in the configuration.
func NewDatabase(ctx context.Context, cfg *config.DatabaseConfig) (Database, error) {
	switch cfg.Type {
	case model.DatabaseTypeBadger, "":
		return NewBadgerDB(false, cfg.Dir)
	case model.DatabaseTypePostgres:
		return NewPostgresDB(ctx, PostgresOptions{
			URL:          cfg.URL,
			MaxOpenConns: cfg.MaxOpenConns,
			MaxIdleConns: cfg.MaxIdleConns,
			MaxIdleTime:  cfg.MaxIdleTime,
		})
	}
	return nil, fmt.Errorf("unsupported database type: %q", cfg.Type)
}

// SortTasks orders tasks ascending by order. Ties, which are possible
// after a reorder, fall back to creation time and then ID so listings
// are stable.
func SortTasks(tasks []*model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
