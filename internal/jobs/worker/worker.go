package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/karibu-backend/internal/observability"
	"github.com/yungbote/karibu-backend/internal/platform/ctxutil"
	"github.com/yungbote/karibu-backend/internal/platform/envutil"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

const (
	DefaultConcurrency = 4
	DefaultQueueSize   = 256
	DefaultMaxOverflow = 32
)

var (
	// ErrPoolClosed is returned by Submit after Close.
	ErrPoolClosed = errors.New("worker pool closed")
	// ErrPoolSaturated is returned when the queue and every overflow slot are taken.
	ErrPoolSaturated = errors.New("worker pool saturated")
)

// Task is one unit of background work.
type Task func(ctx context.Context) error

type Config struct {
	Concurrency int
	QueueSize   int
	// MaxOverflow bounds the extra goroutines started while the queue is full.
	MaxOverflow int
}

func ConfigFromEnv() Config {
	return Config{
		Concurrency: envutil.Int("WORKER_CONCURRENCY", DefaultConcurrency),
		QueueSize:   envutil.Int("WORKER_QUEUE_SIZE", DefaultQueueSize),
		MaxOverflow: envutil.Int("WORKER_MAX_OVERFLOW", DefaultMaxOverflow),
	}
}

type job struct {
	kind string
	ctx  context.Context
	run  Task
}

// Pool runs fire-and-forget tasks on a fixed set of goroutines. Submit never
// blocks the caller: when the queue is full the task gets its own goroutine,
// up to MaxOverflow of them, and past that Submit returns ErrPoolSaturated.
type Pool struct {
	log           *logger.Logger
	queue         chan job
	overflowSlots chan struct{}

	mu     sync.RWMutex
	closed bool

	workers  sync.WaitGroup
	overflow sync.WaitGroup
}

func NewPool(baseLog *logger.Logger, cfg Config) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.MaxOverflow <= 0 {
		cfg.MaxOverflow = DefaultMaxOverflow
	}
	p := &Pool{
		log:           baseLog.With("component", "WorkerPool"),
		queue:         make(chan job, cfg.QueueSize),
		overflowSlots: make(chan struct{}, cfg.MaxOverflow),
	}
	p.log.Info("Starting worker pool",
		"concurrency", cfg.Concurrency,
		"queue_size", cfg.QueueSize,
		"max_overflow", cfg.MaxOverflow,
	)
	for i := 0; i < cfg.Concurrency; i++ {
		p.workers.Add(1)
		go p.runLoop(i + 1)
	}
	return p
}

// Submit schedules task. The task runs on a context that keeps the values of
// ctx but not its cancellation.
func (p *Pool) Submit(ctx context.Context, kind string, task Task) error {
	if task == nil {
		return fmt.Errorf("nil task")
	}
	j := job{kind: kind, ctx: ctxutil.Detached(ctx), run: task}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- j:
		observability.Current().SetWorkerQueueDepth(len(p.queue))
		return nil
	default:
	}

	select {
	case p.overflowSlots <- struct{}{}:
	default:
		p.log.Error("Worker pool saturated; task rejected",
			"kind", kind,
			"queue_size", cap(p.queue),
			"max_overflow", cap(p.overflowSlots),
		)
		return ErrPoolSaturated
	}
	p.log.Warn("Worker queue full; running task on its own goroutine", "kind", kind, "queue_size", cap(p.queue))
	p.overflow.Add(1)
	go func() {
		defer func() {
			<-p.overflowSlots
			p.overflow.Done()
		}()
		p.execute(0, j)
	}()
	return nil
}

// Close stops accepting tasks, drains the queue and waits for running tasks.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.workers.Wait()
	p.overflow.Wait()
	p.log.Info("Worker pool stopped")
}

func (p *Pool) runLoop(workerID int) {
	defer p.workers.Done()
	for j := range p.queue {
		observability.Current().SetWorkerQueueDepth(len(p.queue))
		p.execute(workerID, j)
	}
}

func (p *Pool) execute(workerID int, j job) {
	start := time.Now()
	status := "ok"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			p.log.Error("Worker task panic",
				"worker_id", workerID,
				"kind", j.kind,
				"panic", fmt.Sprint(r),
			)
		}
		observability.Current().ObserveWorkerTask(j.kind, status, time.Since(start))
	}()

	if err := j.run(j.ctx); err != nil {
		status = "error"
		p.log.Warn("Worker task failed", "worker_id", workerID, "kind", j.kind, "error", err)
	}
}
