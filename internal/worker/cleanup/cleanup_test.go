package cleanup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/opalizer/internal/model"
)

// mockDeadLetterRepo はrepository.DeadLetterRepositoryのモック実装。
type mockDeadLetterRepo struct {
	deleteOlderThanFn func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *mockDeadLetterRepo) Create(ctx context.Context, dl *model.DeadLetter) error {
	return nil
}

func (m *mockDeadLetterRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.deleteOlderThanFn != nil {
		return m.deleteOlderThanFn(ctx, cutoff)
	}
	return 0, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestCleanupJob_Run_UsesMaxAgeCutoff(t *testing.T) {
	var gotCutoff time.Time
	repo := &mockDeadLetterRepo{
		deleteOlderThanFn: func(ctx context.Context, cutoff time.Time) (int64, error) {
			gotCutoff = cutoff
			return 3, nil
		},
	}

	job := NewCleanupJob(repo, testLogger(), 48*time.Hour)

	before := time.Now().Add(-48 * time.Hour)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	after := time.Now().Add(-48 * time.Hour)

	if gotCutoff.Before(before) || gotCutoff.After(after) {
		t.Errorf("cutoff = %v, want roughly now-48h", gotCutoff)
	}
}

func TestCleanupJob_Run_PropagatesError(t *testing.T) {
	repo := &mockDeadLetterRepo{
		deleteOlderThanFn: func(ctx context.Context, cutoff time.Time) (int64, error) {
			return 0, errors.New("db down")
		},
	}

	job := NewCleanupJob(repo, testLogger(), time.Hour)

	if err := job.Run(context.Background()); err == nil {
		t.Error("Run() should propagate repository errors")
	}
}

func TestNewCleanupJob_DefaultMaxAge(t *testing.T) {
	job := NewCleanupJob(&mockDeadLetterRepo{}, testLogger(), 0)

	if job.MaxAge != 14*24*time.Hour {
		t.Errorf("MaxAge = %v, want 14 days", job.MaxAge)
	}
}

func TestCleanupJob_Start_StopsOnContextCancel(t *testing.T) {
	job := NewCleanupJob(&mockDeadLetterRepo{}, testLogger(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start() should return when the context is cancelled")
	}
}
