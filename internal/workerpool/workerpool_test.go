package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitReturnsResult(t *testing.T) {
	p := New(2)
	defer p.Close()

	v, err := p.Submit(context.Background(), func() (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if v.(int) != 42 {
		t.Fatalf("got %v, want 42", v)
	}
}

func TestSubmitPropagatesError(t *testing.T) {
	p := New(2)
	defer p.Close()

	wantErr := errors.New("boom")
	_, err := p.Submit(context.Background(), func() (any, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}

func TestWorkRunsOffCallerGoroutine(t *testing.T) {
	p := New(1)
	defer p.Close()

	callerGoroutine := make(chan bool, 1)
	_, err := p.Submit(context.Background(), func() (any, error) {
		callerGoroutine <- false
		return nil, nil
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ran := <-callerGoroutine; ran {
		t.Fatalf("expected work to run on a worker goroutine")
	}
}

func TestSubmitRespectsContextCancellation(t *testing.T) {
	p := New(1)
	defer p.Close()

	block := make(chan struct{})
	defer close(block)
	// Occupy the pool's single worker so the next submission queues.
	go p.Submit(context.Background(), func() (any, error) {
		<-block
		return nil, nil
	})
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Submit(ctx, func() (any, error) {
		return nil, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
}

func TestSubmitAfterCloseReturnsErrClosed(t *testing.T) {
	p := New(2)
	p.Close()

	_, err := p.Submit(context.Background(), func() (any, error) {
		return nil, nil
	})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}

func TestConcurrentSubmissionsAllComplete(t *testing.T) {
	p := New(4)
	defer p.Close()

	const n = 50
	var wg sync.WaitGroup
	var completed atomic.Int64
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := p.Submit(context.Background(), func() (any, error) {
				return i, nil
			})
			if err != nil {
				t.Errorf("submit %d: %v", i, err)
				return
			}
			if v.(int) != i {
				t.Errorf("got %v, want %d", v, i)
				return
			}
			completed.Add(1)
		}(i)
	}
	wg.Wait()
	if completed.Load() != n {
		t.Fatalf("completed %d of %d", completed.Load(), n)
	}
}
