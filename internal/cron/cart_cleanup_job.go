package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/adesolafarms/farmstore-backend/pkg/logger"
)

const defaultCartIdleTTL = 30 * 24 * time.Hour

type idleCartDeleter interface {
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CartCleanupJobParams configures the idle cart sweep.
type CartCleanupJobParams struct {
	Logger     *logger.Logger
	Repository idleCartDeleter
	IdleTTL    time.Duration
}

// NewCartCleanupJob constructs the job that removes carts nobody has touched
// for the configured idle window.
func NewCartCleanupJob(params CartCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	idleTTL := params.IdleTTL
	if idleTTL <= 0 {
		idleTTL = defaultCartIdleTTL
	}
	return &cartCleanupJob{
		logg:    params.Logger,
		repo:    params.Repository,
		idleTTL: idleTTL,
		now:     time.Now,
	}, nil
}

type cartCleanupJob struct {
	logg    *logger.Logger
	repo    idleCartDeleter
	idleTTL time.Duration
	now     func() time.Time
}

func (j *cartCleanupJob) Name() string { return "cart-cleanup" }

func (j *cartCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.idleTTL)
	deleted, err := j.repo.DeleteIdleBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cart cleanup: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":        cutoff,
		"carts_deleted": deleted,
	})
	j.logg.Info(logCtx, "idle cart cleanup complete")
	return nil
}
