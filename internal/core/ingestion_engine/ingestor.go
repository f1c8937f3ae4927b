package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Ingestor runs one ingestion for a storage key.
type Ingestor interface {
	Ingest(ctx context.Context, key string) ([]models.Segment, error)
}

var _ Ingestor = (*DocumentIngestor)(nil)

var (
	ErrQueueFull    = errors.New("ingestion queue is full")
	ErrQueueStopped = errors.New("ingestion queue is not running")
)

// Queue runs ingestions in the background. Keys wait in a bounded backlog
// and are handed to an ants worker pool; every transition is recorded in
// the status store. Failed runs are not retried.
type Queue struct {
	ingestor Ingestor
	status   core.StatusStore
	pool     *ants.Pool
	jobs     chan string
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewQueue builds a queue with numWorkers concurrent ingestions and room
// for backlog waiting keys.
func NewQueue(ingestor Ingestor, status core.StatusStore, numWorkers, backlog int, logger *zap.Logger) (*Queue, error) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if backlog < 1 {
		backlog = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := ants.NewPool(numWorkers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Queue{
		ingestor: ingestor,
		status:   status,
		pool:     pool,
		jobs:     make(chan string, backlog),
		logger:   logger,
	}, nil
}

// Start dispatches queued keys to the pool until ctx is done or Release is
// called. Keys still waiting at that point are recorded as failed.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	ctx, q.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	q.done = done
	q.running = true

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				q.logger.Info("ingestion queue shutting down")
				// Enqueue checks running under the same lock, so once it is
				// false the backlog only shrinks.
				q.mu.Lock()
				q.running = false
				q.mu.Unlock()
				q.drain(ctx)
				return
			case key := <-q.jobs:
				if ctx.Err() != nil {
					q.stopped(ctx, key)
					continue
				}
				// Submit blocks while every worker is busy.
				if err := q.pool.Submit(func() { q.process(ctx, key) }); err != nil {
					q.logger.Error("submit ingestion", zap.String("file_key", key), zap.Error(err))
					q.setStatus(context.WithoutCancel(ctx), key, models.StatusFailed, err.Error())
				}
			}
		}
	}()
}

// Enqueue records key as queued and schedules it. It never blocks; a full
// backlog returns ErrQueueFull.
func (q *Queue) Enqueue(ctx context.Context, key string) error {
	if !q.isRunning() {
		return ErrQueueStopped
	}

	if err := q.status.SetStatus(ctx, key, models.StatusQueued, ""); err != nil {
		return fmt.Errorf("record queued status: %w", err)
	}

	q.mu.Lock()
	var err error
	switch {
	case !q.running:
		err = ErrQueueStopped
	default:
		select {
		case q.jobs <- key:
		default:
			err = ErrQueueFull
		}
	}
	q.mu.Unlock()

	if err != nil {
		q.setStatus(ctx, key, models.StatusFailed, err.Error())
		return err
	}
	q.logger.Debug("ingestion queued", zap.String("file_key", key))
	return nil
}

func (q *Queue) isRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Release stops dispatching, fails the keys left in the backlog and waits
// up to timeout for running ingestions.
func (q *Queue) Release(timeout time.Duration) error {
	q.mu.Lock()
	cancel, done := q.cancel, q.done
	q.running = false
	q.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return q.pool.ReleaseTimeout(timeout)
}

// drain fails every key still waiting in the backlog.
func (q *Queue) drain(ctx context.Context) {
	for {
		select {
		case key := <-q.jobs:
			q.stopped(ctx, key)
		default:
			return
		}
	}
}

func (q *Queue) stopped(ctx context.Context, key string) {
	q.logger.Warn("ingestion dropped on shutdown", zap.String("file_key", key))
	q.setStatus(context.WithoutCancel(ctx), key, models.StatusFailed, ErrQueueStopped.Error())
}

func (q *Queue) process(ctx context.Context, key string) {
	if ctx.Err() != nil {
		q.stopped(ctx, key)
		return
	}

	statusCtx := context.WithoutCancel(ctx)
	log := q.logger.With(zap.String("file_key", key))
	log.Info("processing document")

	q.setStatus(statusCtx, key, models.StatusProcessing, "")

	segments, err := q.ingestor.Ingest(ctx, key)
	if err != nil {
		log.Error("ingestion failed", zap.Bool("retryable", core.IsRetryable(err)), zap.Error(err))
		q.setStatus(statusCtx, key, models.StatusFailed, err.Error())
		return
	}

	q.setStatus(statusCtx, key, models.StatusReady, "")
	log.Info("document ready", zap.Int("first_page_segments", len(segments)))
}

func (q *Queue) setStatus(ctx context.Context, key string, status models.IngestStatus, detail string) {
	if err := q.status.SetStatus(ctx, key, status, detail); err != nil {
		q.logger.Warn("update ingestion status",
			zap.String("file_key", key),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}
