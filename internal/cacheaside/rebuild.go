package cacheaside

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Job is a unit of background rebuild work.
type Job func(ctx context.Context)

// RebuildPool executes cache rebuilds on a fixed number of workers so
// foreground read latency is decoupled from database latency. The
// queue is bounded; Submit never blocks the caller.
type RebuildPool struct {
	jobs    chan Job
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	dropped atomic.Int64
}

// NewRebuildPool creates and starts a pool.
func NewRebuildPool(workers, queueSize int) *RebuildPool {
	if workers <= 0 {
		workers = 10
	}
	if queueSize <= 0 {
		queueSize = 1000
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &RebuildPool{
		jobs:   make(chan Job, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}

	return p
}

// Submit enqueues a job without blocking. Returns false if the queue
// is full or the pool is stopped; the caller is responsible for any
// cleanup the job would have done, such as releasing a lock.
func (p *RebuildPool) Submit(job Job) bool {
	select {
	case <-p.ctx.Done():
		return false
	default:
	}

	select {
	case p.jobs <- job:
		return true
	default:
		p.dropped.Add(1)
		slog.Warn("rebuild queue full, dropping job",
			"dropped_total", p.dropped.Load(),
		)
		return false
	}
}

// Dropped returns the number of jobs rejected because the queue was
// full.
func (p *RebuildPool) Dropped() int64 {
	return p.dropped.Load()
}

// Stop shuts the pool down and waits for in-flight jobs to finish.
// Queued but unstarted jobs are discarded; staleness self-heals on the
// next read.
func (p *RebuildPool) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *RebuildPool) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-p.jobs:
			p.safeRun(job)
		}
	}
}

// safeRun keeps a panicking job from taking its worker down. The
// job's own defers (lock release included) have already run by the
// time the panic reaches here.
func (p *RebuildPool) safeRun(job Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("rebuild job panicked", "panic", r)
		}
	}()
	job(p.ctx)
}
