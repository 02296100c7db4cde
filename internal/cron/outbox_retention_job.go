package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/adesolafarms/farmstore-backend/pkg/logger"
)

const defaultOutboxKeepFor = 7 * 24 * time.Hour

type outboxRetentionRepo interface {
	DeletePublishedBefore(cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configures the published-event sweep.
type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxRetentionRepo
	KeepFor    time.Duration
}

// NewOutboxRetentionJob constructs the job that deletes outbox rows already
// delivered to Pub/Sub once they age past the retention window.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	keepFor := params.KeepFor
	if keepFor <= 0 {
		keepFor = defaultOutboxKeepFor
	}
	return &outboxRetentionJob{
		logg:    params.Logger,
		repo:    params.Repository,
		keepFor: keepFor,
		now:     time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg    *logger.Logger
	repo    outboxRetentionRepo
	keepFor time.Duration
	now     func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.keepFor)
	deleted, err := j.repo.DeletePublishedBefore(cutoff)
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}
