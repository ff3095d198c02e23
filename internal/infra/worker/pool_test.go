package worker

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestPool_RunsTasksAndDrainsOnStop(t *testing.T) {
	p := NewPool(2, 16, testLogger())
	p.Start(context.Background())

	var done atomic.Int32
	for i := 0; i < 10; i++ {
		if err := p.Submit(func(ctx context.Context) error {
			done.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	p.Stop()
	if done.Load() != 10 {
		t.Fatalf("ran %d tasks, want 10", done.Load())
	}
	p.Stop() // idempotent
}

func TestPool_SubmitFailsWhenFull(t *testing.T) {
	p := NewPool(1, 1, testLogger())
	// not started: the single slot fills and the next submit is rejected
	if err := p.Submit(func(context.Context) error { return nil }); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := p.Submit(func(context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if err := p.Submit(nil); err == nil {
		t.Fatal("nil task should be rejected")
	}
}

func TestPool_SurvivesPanicsAndErrors(t *testing.T) {
	p := NewPool(1, 4, testLogger())
	p.Start(context.Background())
	defer p.Stop()

	ran := make(chan struct{})
	_ = p.Submit(func(context.Context) error { panic("boom") })
	_ = p.Submit(func(context.Context) error { return errors.New("failed") })
	_ = p.Submit(func(context.Context) error { close(ran); return nil })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking task")
	}
}
