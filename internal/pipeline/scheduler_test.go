package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

type fakeStarter struct {
	mu       sync.Mutex
	calls    int
	triggers []domain.Trigger
	err      error
}

func (s *fakeStarter) Start(_ context.Context, kind domain.RunKind, _ domain.Limits, by domain.Trigger) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.triggers = append(s.triggers, by)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Run{RunID: "run_tick", Kind: kind}, nil
}

func (s *fakeStarter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestSchedulerTicksUntilCancelled(t *testing.T) {
	starter := &fakeStarter{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewScheduler(starter, domain.RunKindFull, 10*time.Millisecond, nil).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return starter.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	starter.mu.Lock()
	defer starter.mu.Unlock()
	for _, by := range starter.triggers {
		assert.Equal(t, domain.TriggerCron, by)
	}
}

func TestSchedulerSkipsOnConflict(t *testing.T) {
	starter := &fakeStarter{err: &ConflictError{ActiveRunID: "run_busy"}}
	s := NewScheduler(starter, domain.RunKindFull, time.Minute, nil)
	s.tick(context.Background())
	starter.err = errors.New("db locked")
	s.tick(context.Background())
	assert.Equal(t, 2, starter.count())
}

func TestSchedulerDisabled(t *testing.T) {
	starter := &fakeStarter{}
	NewScheduler(starter, domain.RunKindFull, 0, nil).Run(context.Background())
	assert.Equal(t, 0, starter.count())
}
