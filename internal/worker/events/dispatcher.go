// Package events はビーコンイベントのバックグラウンド処理を提供する。
// レスポンス経路から切り離された有界キューとワーカープール、
// 失敗イベントのデッドレター捕捉を含む。
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/opalizer/internal/metrics"
	"github.com/hitoshi/opalizer/internal/model"
	"github.com/hitoshi/opalizer/internal/repository"
)

// Processor はイベント帰属処理の実行インターフェース。
// event.Serviceの部分集合として定義する。
type Processor interface {
	ProcessEvent(ctx context.Context, tenant *model.Tenant, payload *model.BeaconPayload) error
	ProcessImpression(ctx context.Context, tenant *model.Tenant, payload *model.BeaconPayload) error
}

// Task はディスパッチャーが処理する1件のビーコンイベント。
type Task struct {
	Tenant  *model.Tenant
	Payload *model.BeaconPayload
}

// Dispatcher は有界キューと固定数のワーカーでイベントを処理する。
// エンキューはレスポンス生成をブロックせず、処理の失敗はクライアントに
// 影響しない。ただし失敗が黙って失われることもない: ワーカーの処理失敗と
// キュー溢れによる拒否は、どちらもデッドレターとして記録される。
type Dispatcher struct {
	processor   Processor
	deadLetters repository.DeadLetterRepository
	metrics     metrics.MetricsCollector
	logger      *slog.Logger

	queue    chan *Task
	workers  int
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDispatcher はDispatcherを生成する。
// queueSizeが0以下の場合は1024、workersが0以下の場合は8を使用する。
func NewDispatcher(
	processor Processor,
	deadLetters repository.DeadLetterRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	queueSize int,
	workers int,
) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 8
	}
	return &Dispatcher{
		processor:   processor,
		deadLetters: deadLetters,
		metrics:     collector,
		logger:      logger,
		queue:       make(chan *Task, queueSize),
		workers:     workers,
	}
}

// Start はワーカープールを起動する。コンテキストのキャンセルまたは
// Stop()でワーカーは停止する。
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("イベントディスパッチャーを開始しました",
		slog.Int("workers", d.workers),
		slog.Int("queue_size", cap(d.queue)),
	)

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Stop はキューを閉じ、残りのタスクの処理完了を待つ。
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
	d.logger.Info("イベントディスパッチャーを停止しました")
}

// Enqueue はタスクをキューに追加する。キューが満杯の場合はブロックせずに
// 拒否し、タスクをデッドレターとして記録してfalseを返す。
func (d *Dispatcher) Enqueue(task *Task) bool {
	d.metrics.RecordEventReceived()

	select {
	case d.queue <- task:
		return true
	default:
		d.logger.Warn("イベントキューが満杯のため受け入れを拒否しました",
			slog.String("tenant_id", task.Tenant.ID),
		)
		d.capture(task, "event queue full")
		return false
	}
}

// QueueDepth は現在キューに滞留しているタスク数を返す。テストおよびメトリクス用。
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

// worker はキューからタスクを取り出して処理する。
// イベント帰属とインプレッション加算は独立に実行され、
// 片方の失敗がもう片方を妨げない。失敗はそれぞれ捕捉される。
func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case task, ok := <-d.queue:
			if !ok {
				return
			}
			d.process(ctx, task)
		}
	}
}

// drain はコンテキスト取り消し後にキューへ残ったタスクを回収し、
// デッドレターとして記録する。処理されないまま消えるタスクを作らない。
func (d *Dispatcher) drain() {
	for {
		select {
		case task, ok := <-d.queue:
			if !ok {
				return
			}
			d.capture(task, "dispatcher stopped before processing")
		default:
			return
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, task *Task) {
	if err := d.processor.ProcessEvent(ctx, task.Tenant, task.Payload); err != nil {
		d.logger.Error("イベント処理に失敗しました",
			slog.String("tenant_id", task.Tenant.ID),
			slog.String("error", err.Error()),
		)
		d.capture(task, err.Error())
	}

	if err := d.processor.ProcessImpression(ctx, task.Tenant, task.Payload); err != nil {
		d.logger.Error("インプレッション処理に失敗しました",
			slog.String("tenant_id", task.Tenant.ID),
			slog.String("error", err.Error()),
		)
		d.capture(task, err.Error())
	}
}

// capture は失敗タスクをデッドレターとして記録する。
// リクエストコンテキストのキャンセルと無関係に書き込むため、
// 独立したコンテキストを使用する。記録自体の失敗はログに残すしかない。
func (d *Dispatcher) capture(task *Task, reason string) {
	d.metrics.RecordEventDeadLettered()

	payload, err := json.Marshal(task.Payload)
	if err != nil {
		d.logger.Error("デッドレターのペイロード変換に失敗しました",
			slog.String("error", err.Error()),
		)
		payload = []byte("{}")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dl := &model.DeadLetter{
		ID:           uuid.New().String(),
		TenantSchema: task.Tenant.SchemaName,
		Payload:      payload,
		Reason:       reason,
		CreatedAt:    time.Now().UTC(),
	}
	if err := d.deadLetters.Create(ctx, dl); err != nil {
		d.logger.Error("デッドレターの記録に失敗しました",
			slog.String("tenant_id", task.Tenant.ID),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
	}
}
