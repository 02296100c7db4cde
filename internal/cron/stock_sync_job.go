package cron

import (
	"context"
	"fmt"

	"github.com/adesolafarms/farmstore-backend/pkg/logger"
)

type stockSyncer interface {
	SyncStock(ctx context.Context) (int64, error)
}

// StockSyncJobParams configures the periodic stock cache refresh.
type StockSyncJobParams struct {
	Logger    *logger.Logger
	Inventory stockSyncer
}

// NewStockSyncJob constructs the job that overwrites the local stock cache
// from the farm inventory listing.
func NewStockSyncJob(params StockSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	return &stockSyncJob{
		logg:      params.Logger,
		inventory: params.Inventory,
	}, nil
}

type stockSyncJob struct {
	logg      *logger.Logger
	inventory stockSyncer
}

func (j *stockSyncJob) Name() string { return "stock-sync" }

func (j *stockSyncJob) Run(ctx context.Context) error {
	matched, err := j.inventory.SyncStock(ctx)
	if err != nil {
		return fmt.Errorf("stock sync: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "products_updated", matched)
	j.logg.Info(logCtx, "stock cache refreshed from farm inventory")
	return nil
}
