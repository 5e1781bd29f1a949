package host

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BioHazard786/warphost/internal/testutil"
)

func TestRoomIDResolvesImmediatelyOnceSet(t *testing.T) {
	r := newRoomID()
	r.set("ABCD")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	id, err := r.wait(ctx)
	if err != nil || id != "ABCD" {
		t.Fatalf("wait = %q, %v", id, err)
	}
}

func TestRoomIDReleasesWaiters(t *testing.T) {
	r := newRoomID()
	got := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			id, _ := r.wait(context.Background())
			got <- id
		}()
	}

	testutil.RequireNoReceive(t, got, 50*time.Millisecond)
	r.set("WXYZ")
	for i := 0; i < 2; i++ {
		if id := testutil.RequireReceive(t, got, time.Second); id != "WXYZ" {
			t.Errorf("waiter %d got %q", i, id)
		}
	}
}

func TestRoomIDResetBlocksUntilNextID(t *testing.T) {
	r := newRoomID()
	r.set("OLD1")
	r.reset()
	if r.peek() != "" {
		t.Fatalf("peek after reset = %q", r.peek())
	}

	got := make(chan string, 1)
	go func() {
		id, _ := r.wait(context.Background())
		got <- id
	}()
	testutil.RequireNoReceive(t, got, 50*time.Millisecond)

	r.set("NEW2")
	if id := testutil.RequireReceive(t, got, time.Second); id != "NEW2" {
		t.Errorf("got %q, want NEW2", id)
	}

	r.set("NEW3")
	if r.peek() != "NEW3" {
		t.Errorf("latest value = %q", r.peek())
	}
}

func TestRoomIDIgnoresEmpty(t *testing.T) {
	r := newRoomID()
	r.set("")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := r.wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
