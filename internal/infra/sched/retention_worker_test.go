package sched

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stellium-ask/internal/domain"
	"stellium-ask/internal/domain/model"
	"stellium-ask/internal/domain/ports/repository"
	"stellium-ask/internal/infra/worker"
)

type fakeRepo struct {
	mu       sync.Mutex
	cleaned  int64
	days     int
	cleanErr error
	calls    int
}

var _ repository.ConversationRepository = (*fakeRepo)(nil)

func (f *fakeRepo) Save(context.Context, any, *model.Conversation) error { return nil }

func (f *fakeRepo) SaveMessage(context.Context, any, string, *model.Message) error { return nil }

func (f *fakeRepo) DeleteMessage(context.Context, any, string, string) error { return nil }

func (f *fakeRepo) FindBySubject(context.Context, any, string, model.ContentType, string) (*model.Conversation, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeRepo) History(context.Context, any, model.ContentType, string, int) ([]model.Message, error) {
	return nil, nil
}

func (f *fakeRepo) CleanupOld(_ context.Context, days int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.days = days
	return f.cleaned, f.cleanErr
}

type fakeRegistry struct {
	mu      sync.Mutex
	evicted int
	horizon time.Duration
	calls   int
}

func (f *fakeRegistry) EvictIdle(_ context.Context, olderThan time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.horizon = olderThan
	return f.evicted
}

func TestSweepEvictsRegistryAndCleansStorage(t *testing.T) {
	log := zerolog.Nop()
	repo := &fakeRepo{cleaned: 3}
	reg := &fakeRegistry{evicted: 2}
	w := NewRetentionWorker(time.Minute, 30, repo, reg, worker.NewPool(1, &log), &log)

	if err := w.sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if repo.calls != 1 || repo.days != 30 {
		t.Errorf("cleanup calls=%d days=%d", repo.calls, repo.days)
	}
	if reg.calls != 1 || reg.horizon != time.Minute {
		t.Errorf("evict calls=%d horizon=%v", reg.calls, reg.horizon)
	}
}

func TestSweepToleratesNilRegistry(t *testing.T) {
	log := zerolog.Nop()
	repo := &fakeRepo{}
	w := NewRetentionWorker(time.Minute, 30, repo, nil, worker.NewPool(1, &log), &log)
	if err := w.sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
}

func TestSweepReportsCleanupFailure(t *testing.T) {
	log := zerolog.Nop()
	repo := &fakeRepo{cleanErr: errors.New("db down")}
	w := NewRetentionWorker(time.Minute, 30, repo, &fakeRegistry{}, worker.NewPool(1, &log), &log)
	if err := w.sweep(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	log := zerolog.Nop()
	pool := worker.NewPool(1, &log)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	defer pool.Stop()

	w := NewRetentionWorker(50*time.Millisecond, 30, &fakeRepo{}, &fakeRegistry{}, pool, &log)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
