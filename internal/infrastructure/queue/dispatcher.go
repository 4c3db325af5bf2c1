package queue

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/servimarket/portal/internal/core/domain"
	"github.com/servimarket/portal/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
	writeTimeout   = 5 * time.Second
)

// Dispatcher records onboarding commits off the request path. Events are
// sharded by user so one vendor's commits are written in order.
type Dispatcher struct {
	workers []chan domain.StepCommitted
	repo    ports.AuditRepository
	log     zerolog.Logger
	wg      sync.WaitGroup

	mu      sync.Mutex
	dropped int
}

var _ ports.AuditSink = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, repo ports.AuditRepository, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan domain.StepCommitted, numWorkers),
		repo:    repo,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.StepCommitted, channelBuffer)
	}
	return d
}

// Start launches the workers. They drain their queue and exit once ctx is
// cancelled; Wait blocks until all of them are gone.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Wait blocks until every worker has stopped.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Enqueue hands event to the worker owning its user. It never blocks: when
// that worker's queue is full the event is dropped and counted.
func (d *Dispatcher) Enqueue(event domain.StepCommitted) {
	select {
	case d.workers[d.shardIndex(event.UserID)] <- event:
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		d.log.Warn().Str("user_id", event.UserID).Str("step", string(event.Step)).Msg("audit queue full, commit not recorded")
	}
}

// Pending returns the number of queued events across all workers.
func (d *Dispatcher) Pending() int {
	n := 0
	for _, ch := range d.workers {
		n += len(ch)
	}
	return n
}

// Dropped returns how many events were discarded because a queue was full.
func (d *Dispatcher) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

func (d *Dispatcher) shardIndex(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.StepCommitted) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			d.drain(id, ch)
			return
		case event := <-ch:
			d.record(ctx, id, event)
		}
	}
}

// drain writes what is still queued with a fresh context so a shutdown does
// not lose acknowledged commits.
func (d *Dispatcher) drain(id int, ch <-chan domain.StepCommitted) {
	for {
		select {
		case event := <-ch:
			d.record(context.Background(), id, event)
		default:
			return
		}
	}
}

func (d *Dispatcher) record(ctx context.Context, id int, event domain.StepCommitted) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := d.repo.InsertCommit(ctx, event); err != nil {
		d.log.Error().Err(err).
			Str("user_id", event.UserID).
			Str("step", string(event.Step)).
			Int("worker_id", id).
			Msg("audit write failed")
	}
}
