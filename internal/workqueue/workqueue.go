// Package workqueue runs jobs serially per key while letting distinct
// keys proceed concurrently. The bus handlers use one key per
// (map, robot) pair, so a robot's events apply in arrival order without
// robots blocking each other.
package workqueue

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"
)

// Pool is a set of lazily created per-key serial queues.
type Pool struct {
	queues   *xsync.Map[string, *queue]
	capacity int
	log      zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type queue struct {
	jobs chan func()
}

// New creates a pool whose per-key queues buffer up to capacity jobs.
func New(capacity int, logger zerolog.Logger) *Pool {
	return &Pool{
		queues:   xsync.NewMap[string, *queue](),
		capacity: capacity,
		log:      logger.With().Str("component", "workqueue").Logger(),
	}
}

// Submit enqueues a job on key's serial queue, starting the queue on
// first use. Returns false when the pool is closed or the queue is full;
// a full queue drops the job rather than blocking the caller.
func (p *Pool) Submit(key string, job func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	q, _ := p.queues.LoadOrCompute(key, func() (*queue, bool) {
		q := &queue{jobs: make(chan func(), p.capacity)}
		p.wg.Add(1)
		go p.run(key, q)
		return q, false
	})

	select {
	case q.jobs <- job:
		return true
	default:
		p.log.Warn().Str("key", key).Msg("queue full, job dropped")
		return false
	}
}

func (p *Pool) run(key string, q *queue) {
	defer p.wg.Done()
	for job := range q.jobs {
		p.runJob(key, job)
	}
}

// runJob isolates panics so one bad event cannot take the queue down.
func (p *Pool) runJob(key string, job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Str("key", key).Any("panic", r).Msg("job panicked")
		}
	}()
	job()
}

// Close stops accepting jobs and waits for every queue to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.queues.Range(func(_ string, q *queue) bool {
		close(q.jobs)
		return true
	})
	p.mu.Unlock()

	p.wg.Wait()
}
