package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adesolafarms/farmstore-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test"})
}

type fakeStockSyncer struct {
	matched int64
	err     error
	calls   int
}

func (f *fakeStockSyncer) SyncStock(context.Context) (int64, error) {
	f.calls++
	return f.matched, f.err
}

func TestStockSyncJobRefreshesCache(t *testing.T) {
	syncer := &fakeStockSyncer{matched: 12}
	job, err := NewStockSyncJob(StockSyncJobParams{Logger: testLogger(), Inventory: syncer})
	if err != nil {
		t.Fatalf("NewStockSyncJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if syncer.calls != 1 {
		t.Fatalf("expected one sync, got %d", syncer.calls)
	}
}

func TestStockSyncJobPropagatesError(t *testing.T) {
	job, err := NewStockSyncJob(StockSyncJobParams{
		Logger:    testLogger(),
		Inventory: &fakeStockSyncer{err: errors.New("farm api down")},
	})
	if err != nil {
		t.Fatalf("NewStockSyncJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type fakeIdleCartDeleter struct {
	lastCutoff time.Time
	deleted    int64
	err        error
	calls      int
}

func (f *fakeIdleCartDeleter) DeleteIdleBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.lastCutoff = cutoff
	return f.deleted, f.err
}

func TestCartCleanupJobUsesIdleCutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	repo := &fakeIdleCartDeleter{deleted: 4}
	jobIface, err := NewCartCleanupJob(CartCleanupJobParams{
		Logger:     testLogger(),
		Repository: repo,
		IdleTTL:    48 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewCartCleanupJob: %v", err)
	}
	job := jobIface.(*cartCleanupJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expected := now.Add(-48 * time.Hour)
	if !repo.lastCutoff.Equal(expected) {
		t.Fatalf("expected cutoff %s, got %s", expected, repo.lastCutoff)
	}
}

func TestCartCleanupJobDefaultsIdleWindow(t *testing.T) {
	jobIface, err := NewCartCleanupJob(CartCleanupJobParams{
		Logger:     testLogger(),
		Repository: &fakeIdleCartDeleter{},
	})
	if err != nil {
		t.Fatalf("NewCartCleanupJob: %v", err)
	}
	if jobIface.(*cartCleanupJob).idleTTL != defaultCartIdleTTL {
		t.Fatalf("expected default idle window, got %s", jobIface.(*cartCleanupJob).idleTTL)
	}
}

type fakeOutboxRetentionRepo struct {
	lastCutoff time.Time
	calls      int
	err        error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(cutoff time.Time) (int64, error) {
	f.calls++
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

func TestOutboxRetentionJobDeletesPublishedRows(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{}
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		Repository: repo,
		KeepFor:    72 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job := jobIface.(*outboxRetentionJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expected := now.Add(-72 * time.Hour)
	if !repo.lastCutoff.Equal(expected) {
		t.Fatalf("expected cutoff %s, got %s", expected, repo.lastCutoff)
	}
	if repo.calls != 1 {
		t.Fatalf("expected repo called once, got %d", repo.calls)
	}
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		Repository: &fakeOutboxRetentionRepo{err: errors.New("boom")},
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	if err := jobIface.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
