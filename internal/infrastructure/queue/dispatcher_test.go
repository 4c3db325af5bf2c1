package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/servimarket/portal/internal/core/domain"
)

type stubAuditRepo struct {
	mu     sync.Mutex
	events []domain.StepCommitted
	err    error
	block  chan struct{}
}

func (r *stubAuditRepo) InsertCommit(_ context.Context, ev domain.StepCommitted) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *stubAuditRepo) recorded() []domain.StepCommitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.StepCommitted(nil), r.events...)
}

func TestDispatcher_PreservesPerUserOrder(t *testing.T) {
	repo := &stubAuditRepo{}
	d := NewDispatcher(3, repo, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	for _, step := range domain.Steps() {
		d.Enqueue(domain.StepCommitted{UserID: "v1", Step: step})
	}
	cancel()
	d.Wait()

	got := repo.recorded()
	if len(got) != len(domain.Steps()) {
		t.Fatalf("expected %d records, got %d", len(domain.Steps()), len(got))
	}
	for i, ev := range got {
		if ev.Step != domain.Steps()[i] {
			t.Fatalf("record %d out of order: %s", i, ev.Step)
		}
	}
}

func TestDispatcher_ShardIsStable(t *testing.T) {
	d := NewDispatcher(8, &stubAuditRepo{}, zerolog.Nop())
	first := d.shardIndex("vendor-42")
	for i := 0; i < 10; i++ {
		if d.shardIndex("vendor-42") != first {
			t.Fatalf("shard index changed between calls")
		}
	}
	if first < 0 || first >= 8 {
		t.Fatalf("shard index out of range: %d", first)
	}
}

func TestDispatcher_FullQueueDrops(t *testing.T) {
	d := NewDispatcher(1, &stubAuditRepo{}, zerolog.Nop())
	// Not started: nothing consumes the queue.
	for i := 0; i < channelBuffer+3; i++ {
		d.Enqueue(domain.StepCommitted{UserID: "v1", Step: domain.StepPersonal})
	}
	if d.Pending() != channelBuffer {
		t.Fatalf("expected %d pending, got %d", channelBuffer, d.Pending())
	}
	if d.Dropped() != 3 {
		t.Fatalf("expected 3 dropped, got %d", d.Dropped())
	}
}

func TestDispatcher_WriteErrorDoesNotStopWorker(t *testing.T) {
	repo := &stubAuditRepo{err: errors.New("mongo down")}
	d := NewDispatcher(1, repo, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	d.Enqueue(domain.StepCommitted{UserID: "v1", Step: domain.StepPersonal})
	d.Enqueue(domain.StepCommitted{UserID: "v1", Step: domain.StepBusiness})

	deadline := time.Now().Add(time.Second)
	for len(repo.recorded()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	d.Wait()
	if len(repo.recorded()) != 2 {
		t.Fatalf("worker should keep going after a failed write")
	}
}
