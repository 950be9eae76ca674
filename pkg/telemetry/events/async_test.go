package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAsyncEmitter_DeliversAndDrains(t *testing.T) {
	var got atomic.Int64
	sink := EmitterFunc(func(context.Context, Event) error {
		got.Add(1)
		return nil
	})

	a := NewAsyncEmitter(sink, AsyncConfig{BufferSize: 100}, nil, nil)
	for i := 0; i < 50; i++ {
		if err := a.Emit(context.Background(), Event{Type: TypeEvaluation}); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
	}

	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got.Load() != 50 || a.Written() != 50 {
		t.Errorf("delivered = %d, written = %d, want 50", got.Load(), a.Written())
	}
}

func TestAsyncEmitter_NeverBlocks(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	sink := EmitterFunc(func(ctx context.Context, _ Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})

	a := NewAsyncEmitter(sink, AsyncConfig{BufferSize: 2, WriteTimeout: time.Minute}, nil, nil)

	// First event occupies the worker.
	if err := a.Emit(context.Background(), Event{}); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	<-started

	done := make(chan struct{})
	var full int
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			if errors.Is(a.Emit(context.Background(), Event{}), ErrBufferFull) {
				full++
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit() blocked on a stalled sink")
	}

	if full != 8 {
		t.Errorf("ErrBufferFull returned %d times, want 8", full)
	}
	if a.Dropped() != 8 {
		t.Errorf("Dropped() = %d, want 8", a.Dropped())
	}

	close(release)
	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if a.Written() != 3 {
		t.Errorf("Written() = %d, want 3", a.Written())
	}
}

func TestAsyncEmitter_FailuresAndPanics(t *testing.T) {
	var n atomic.Int64
	sink := EmitterFunc(func(context.Context, Event) error {
		switch n.Add(1) {
		case 1:
			return errors.New("sink down")
		case 2:
			panic("sink exploded")
		}
		return nil
	})

	a := NewAsyncEmitter(sink, AsyncConfig{}, nil, nil)
	for i := 0; i < 3; i++ {
		_ = a.Emit(context.Background(), Event{})
	}
	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if a.Failed() != 2 || a.Written() != 1 {
		t.Errorf("Failed() = %d, Written() = %d, want 2 and 1", a.Failed(), a.Written())
	}
}

func TestAsyncEmitter_WriteTimeout(t *testing.T) {
	sink := EmitterFunc(func(ctx context.Context, _ Event) error {
		<-ctx.Done()
		return ctx.Err()
	})

	a := NewAsyncEmitter(sink, AsyncConfig{WriteTimeout: 10 * time.Millisecond}, nil, nil)
	_ = a.Emit(context.Background(), Event{})
	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if a.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1 timed-out write", a.Failed())
	}
}

func TestAsyncEmitter_CallerCancellationDoesNotAbortWrite(t *testing.T) {
	var gotErr error
	var mu sync.Mutex
	sink := EmitterFunc(func(ctx context.Context, _ Event) error {
		mu.Lock()
		defer mu.Unlock()
		gotErr = ctx.Err()
		return nil
	})

	a := NewAsyncEmitter(sink, AsyncConfig{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	_ = a.Emit(ctx, Event{})
	cancel()
	_ = a.Close(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if gotErr != nil {
		t.Errorf("sink saw ctx.Err() = %v, want nil", gotErr)
	}
}

func TestAsyncEmitter_EmitAfterClose(t *testing.T) {
	closer := &closingEmitter{}
	a := NewAsyncEmitter(closer, AsyncConfig{}, nil, nil)

	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if !closer.closed {
		t.Error("Close() must close the wrapped emitter")
	}
	if err := a.Emit(context.Background(), Event{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Emit() after Close = %v, want ErrClosed", err)
	}
}
