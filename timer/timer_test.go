package timer

import (
	"testing"
	"time"
)

func TestScheduleOneShot(t *testing.T) {
	m := NewManager()
	defer m.Stop()

	fired := make(chan struct{}, 1)
	m.Schedule(10*time.Millisecond, 0, func() {
		fired <- struct{}{}
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("One-shot task did not fire")
	}

	// One-shot means exactly once.
	select {
	case <-fired:
		t.Fatal("One-shot task fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduleInterval(t *testing.T) {
	m := NewManager()
	defer m.Stop()

	fired := make(chan struct{}, 16)
	id := m.Schedule(5*time.Millisecond, 5*time.Millisecond, func() {
		fired <- struct{}{}
	})

	for i := 0; i < 3; i++ {
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatalf("Interval task fired only %d times", i)
		}
	}
	m.Cancel(id)
}

func TestCancelPreventsFiring(t *testing.T) {
	m := NewManager()
	defer m.Stop()

	fired := make(chan struct{}, 1)
	id := m.Schedule(50*time.Millisecond, 0, func() {
		fired <- struct{}{}
	})
	m.Cancel(id)

	select {
	case <-fired:
		t.Fatal("Cancelled task fired anyway")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestEarlierTaskPreemptsWait(t *testing.T) {
	m := NewManager()
	defer m.Stop()

	order := make(chan string, 2)
	m.Schedule(200*time.Millisecond, 0, func() { order <- "late" })
	// Scheduled second but due first; the run loop must wake up for it.
	m.Schedule(10*time.Millisecond, 0, func() { order <- "early" })

	select {
	case first := <-order:
		if first != "early" {
			t.Fatalf("Expected the earlier task first, got %q", first)
		}
	case <-time.After(time.Second):
		t.Fatal("No task fired")
	}
}

func TestStopDropsPending(t *testing.T) {
	m := NewManager()
	fired := make(chan struct{}, 1)
	m.Schedule(50*time.Millisecond, 0, func() {
		fired <- struct{}{}
	})
	m.Stop()

	select {
	case <-fired:
		t.Fatal("Task fired after Stop")
	case <-time.After(150 * time.Millisecond):
	}
}
