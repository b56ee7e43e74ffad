// Package cleanup はデッドレターの保持期間管理ジョブを提供する。
// 保持期間を超過したデッドレターを定期バッチで削除する。
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/opalizer/internal/repository"
)

// CleanupJob は保持期間を超過したデッドレターの自動削除ジョブ。
// 冪等であり、削除対象がない場合でもエラーにならない。
type CleanupJob struct {
	deadLetters repository.DeadLetterRepository
	logger      *slog.Logger
	MaxAge      time.Duration // デッドレターの保持期間
}

// NewCleanupJob は新しいCleanupJobを生成する。
// maxAgeが0以下の場合はデフォルトの14日を使用する。
func NewCleanupJob(deadLetters repository.DeadLetterRepository, logger *slog.Logger, maxAge time.Duration) *CleanupJob {
	if maxAge <= 0 {
		maxAge = 14 * 24 * time.Hour
	}
	return &CleanupJob{
		deadLetters: deadLetters,
		logger:      logger,
		MaxAge:      maxAge,
	}
}

// Run は保持期間を超過したデッドレターを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.deadLetters.DeleteOlderThan(ctx, time.Now().Add(-j.MaxAge))
	if err != nil {
		j.logger.Error("デッドレタークリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return err
	}

	j.logger.Info("デッドレタークリーンアップが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Duration("max_age", j.MaxAge),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は指定間隔でRunを繰り返し実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("デッドレタークリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				// 次のティックで再試行する
				continue
			}
		}
	}
}
