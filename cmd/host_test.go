package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BioHazard786/warphost/internal/failure"
	"github.com/BioHazard786/warphost/internal/testutil"
)

const wait = 2 * time.Second

// blockingView runs until its context ends and reports that it was stopped.
func blockingView(stopped chan<- struct{}) func(context.Context) error {
	return func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return nil
	}
}

func serveAsync(ctx context.Context, exited <-chan struct{}, runErr <-chan error, view func(context.Context) error) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- serve(ctx, exited, runErr, view) }()
	return errc
}

func TestServeStopsViewWhenRunFails(t *testing.T) {
	runErr := make(chan error, 1)
	stopped := make(chan struct{})
	errc := serveAsync(context.Background(), make(chan struct{}), runErr, blockingView(stopped))

	boom := errors.New("boom")
	runErr <- boom

	err := testutil.RequireReceive(t, errc, wait)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want run error", err)
	}
	var ferr *failure.Error
	if !errors.As(err, &ferr) || ferr.Op != "run host" {
		t.Errorf("err = %#v", err)
	}
	testutil.RequireClosed(t, stopped, wait, "view not stopped")
}

func TestServeStopsViewWhenWorkerExits(t *testing.T) {
	exited := make(chan struct{})
	stopped := make(chan struct{})
	errc := serveAsync(context.Background(), exited, make(chan error), blockingView(stopped))

	close(exited)
	if err := testutil.RequireReceive(t, errc, wait); err != nil {
		t.Fatalf("err = %v", err)
	}
	testutil.RequireClosed(t, stopped, wait, "view not stopped")
}

func TestServeReturnsWhenViewQuits(t *testing.T) {
	errc := serveAsync(context.Background(), make(chan struct{}), make(chan error), func(context.Context) error {
		return nil
	})
	if err := testutil.RequireReceive(t, errc, wait); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestServeWithoutViewWaitsForContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	errc := serveAsync(ctx, make(chan struct{}), runErr, nil)

	testutil.RequireNoReceive(t, errc, 50*time.Millisecond)
	cancel()
	if err := testutil.RequireReceive(t, errc, wait); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestServeIgnoresCancelledRun(t *testing.T) {
	runErr := make(chan error, 1)
	runErr <- context.Canceled
	errc := serveAsync(context.Background(), make(chan struct{}), runErr, nil)
	if err := testutil.RequireReceive(t, errc, wait); err != nil {
		t.Fatalf("err = %v", err)
	}
}
