package mapping

import (
	"context"
	"testing"
	"time"
)

func TestDispatchFuture_CompleteThenWait(t *testing.T) {
	f := newDispatchFuture[int]()
	f.Complete(42)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, ok := f.wait(ctx, 10*time.Millisecond)
	if !ok || got != 42 {
		t.Fatalf("wait() = (%v, %v); expected (42, true)", got, ok)
	}
}

func TestDispatchFuture_CompleteIsOnceOnly(t *testing.T) {
	f := newDispatchFuture[int]()
	f.Complete(1)
	f.Complete(2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, ok := f.wait(ctx, 10*time.Millisecond)
	if !ok || got != 1 {
		t.Fatalf("wait() = (%v, %v); expected (1, true), first Complete should win", got, ok)
	}
}

func TestDispatchFuture_WaitTimesOutOnCancel(t *testing.T) {
	f := newDispatchFuture[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, ok := f.wait(ctx, 5*time.Millisecond)
	if ok {
		t.Fatal("expected wait() to report false after context cancellation with no completion")
	}
}
