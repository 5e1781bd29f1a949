package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAfterFuncFiresOnlyAtDeadline(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	c.AfterFunc(5*time.Second, func() { fired++ })

	c.Advance(4 * time.Second)
	if fired != 0 {
		t.Fatalf("fired = %d after 4s, want 0", fired)
	}
	c.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("fired = %d after 5s, want 1", fired)
	}
	c.Advance(time.Minute)
	if fired != 1 {
		t.Fatalf("fired = %d after another minute, want 1", fired)
	}
}

func TestFakeTimerStop(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("Stop() = false on pending timer")
	}
	if timer.Stop() {
		t.Fatal("second Stop() = true")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if n := c.PendingCount(); n != 0 {
		t.Fatalf("PendingCount() = %d, want 0", n)
	}
}

func TestFakeCallbackCanRearm(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	var arm func()
	arm = func() {
		c.AfterFunc(100*time.Millisecond, func() {
			fired++
			if fired < 3 {
				arm()
			}
		})
	}
	arm()

	for range 3 {
		c.Advance(100 * time.Millisecond)
	}
	if fired != 3 {
		t.Fatalf("fired = %d, want 3", fired)
	}
}

func TestFakeTickerDeliversPerInterval(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(20 * time.Second)
	defer ticker.Stop()

	c.Advance(20 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("no tick after one interval")
	}
	c.Advance(10 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("tick before the second interval")
	default:
	}
}

func TestFakeAfter(t *testing.T) {
	c := Fake(epoch)
	ch := c.After(time.Second)
	c.WaitForTimers(1)
	c.Advance(time.Second)
	select {
	case got := <-ch:
		if !got.Equal(epoch.Add(time.Second)) {
			t.Fatalf("After delivered %v", got)
		}
	default:
		t.Fatal("After did not fire")
	}
}
