package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func runDispatcher(t *testing.T) (*Dispatcher, context.CancelFunc) {
	t.Helper()
	d := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = d.Run(ctx) }()
	return d, cancel
}

func TestSubmitDeliversValueOnce(t *testing.T) {
	d, cancel := runDispatcher(t)
	defer cancel()

	var successes, failures atomic.Int32
	task := d.Submit(func() (any, error) {
		return 42, nil
	}, func(value any, err error) {
		if err != nil {
			failures.Add(1)
			return
		}
		successes.Add(1)
		if value.(int) != 42 {
			t.Errorf("unexpected value %v", value)
		}
	})

	value, err := task.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if value.(int) != 42 {
		t.Fatalf("unexpected value %v", value)
	}
	if successes.Load() != 1 || failures.Load() != 0 {
		t.Fatalf("expected exactly one success callback, got %d/%d", successes.Load(), failures.Load())
	}
}

func TestSubmitDeliversFailureOnce(t *testing.T) {
	d, cancel := runDispatcher(t)
	defer cancel()

	boom := errors.New("boom")
	var successes, failures atomic.Int32
	task := d.Submit(func() (any, error) {
		return nil, boom
	}, func(value any, err error) {
		if err == nil {
			successes.Add(1)
			return
		}
		failures.Add(1)
	})

	if _, err := task.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if failures.Load() != 1 || successes.Load() != 0 {
		t.Fatalf("expected exactly one failure callback, got %d/%d", failures.Load(), successes.Load())
	}
}

func TestCallbacksRunOnDeliveryLoop(t *testing.T) {
	d, cancel := runDispatcher(t)
	defer cancel()

	// Concurrent tasks mutate unprotected state from their callbacks. This
	// only passes under -race if delivery is confined to one goroutine.
	counter := 0
	tasks := make([]*Task, 0, 16)
	for i := 0; i < 16; i++ {
		tasks = append(tasks, d.Submit(func() (any, error) {
			return nil, nil
		}, func(any, error) {
			counter++
		}))
	}

	for _, task := range tasks {
		if _, err := task.Wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	if counter != 16 {
		t.Fatalf("expected 16 deliveries, got %d", counter)
	}
}

func TestNilCallbackStillResolves(t *testing.T) {
	d, cancel := runDispatcher(t)
	defer cancel()

	task := d.Submit(func() (any, error) {
		return "ok", nil
	}, nil)

	ctx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	value, err := task.Wait(ctx)
	if err != nil || value.(string) != "ok" {
		t.Fatalf("unexpected outcome %v %v", value, err)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	d := New(nil) // loop never started, task never resolves

	task := d.Submit(func() (any, error) {
		return nil, nil
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := task.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}
