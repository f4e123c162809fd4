package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTask_PollsImmediately(t *testing.T) {
	var calls atomic.Int32
	task := Start(context.Background(), time.Hour, func(ctx context.Context) {
		calls.Add(1)
	})
	defer task.Cancel()

	deadline := time.Now().Add(time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestTask_TicksUntilStopped(t *testing.T) {
	var calls atomic.Int32
	task := Start(context.Background(), 10*time.Millisecond, func(ctx context.Context) {
		calls.Add(1)
	})

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if calls.Load() < 3 {
		t.Fatalf("calls = %d, want >= 3", calls.Load())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := task.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != after {
		t.Errorf("poll ran after Stop returned")
	}
}

func TestTask_CancelThenDone(t *testing.T) {
	started := make(chan struct{})
	task := Start(context.Background(), time.Hour, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})

	<-started
	task.Cancel()
	task.Cancel() // idempotent

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Cancel")
	}
}

func TestTask_ParentContextCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := Start(ctx, time.Hour, func(context.Context) {})
	cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not exit on parent cancel")
	}
}

func TestTask_StopTimesOut(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	task := Start(context.Background(), time.Hour, func(context.Context) {
		close(started)
		<-release
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := task.Stop(ctx); err != context.DeadlineExceeded {
		t.Errorf("Stop err = %v, want deadline exceeded", err)
	}
	close(release)
	<-task.Done()
}
