package push

import (
	"errors"
	"testing"
	"time"
)

func TestRefreshController_StartTwiceIsInvariantViolation(t *testing.T) {
	conn := newFakeConnection("IDLE")
	folder := &fakeFolder{name: "Folder", isOpen: true, conn: conn, events: []UntaggedResponse{{Kind: KindContinuation}}}
	receiver := &fakeReceiver{}
	wake := &fakeWakeLock{}
	c := NewRefreshController(folder, receiver, fakeConfig{displayCount: 5, idleRefreshMinutes: 10}, wake)

	if err := c.Start(); err != nil {
		t.Fatalf("first Start() returned error: %v", err)
	}
	if err := c.Start(); !errors.Is(err, ErrInvariant) {
		t.Fatalf("second Start() = %v, want ErrInvariant", err)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() returned error: %v", err)
	}
}

func TestRefreshController_StopTwiceIsInvariantViolation(t *testing.T) {
	conn := newFakeConnection("IDLE")
	folder := &fakeFolder{name: "Folder", isOpen: true, conn: conn, events: []UntaggedResponse{{Kind: KindContinuation}}}
	receiver := &fakeReceiver{}
	wake := &fakeWakeLock{}
	c := NewRefreshController(folder, receiver, fakeConfig{displayCount: 5, idleRefreshMinutes: 10}, wake)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("first Stop() returned error: %v", err)
	}
	if err := c.Stop(); !errors.Is(err, ErrInvariant) {
		t.Fatalf("second Stop() = %v, want ErrInvariant", err)
	}
}

func TestRefreshController_RefreshNoopWhenNotStarted(t *testing.T) {
	conn := newFakeConnection("IDLE")
	folder := &fakeFolder{name: "Folder", isOpen: true, conn: conn}
	receiver := &fakeReceiver{}
	wake := &fakeWakeLock{}
	c := NewRefreshController(folder, receiver, fakeConfig{displayCount: 5, idleRefreshMinutes: 10}, wake)

	// Must not panic or block: the worker was never started.
	c.Refresh()

	if wake.acquired != 0 {
		t.Fatalf("Refresh() on an unstarted controller touched the wake lock")
	}
}

// A refresh issued while the worker is mid-IDLE ends that IDLE with
// exactly one DONE and causes the worker to re-issue IDLE afterward.
func TestRefreshController_RefreshWhileIdlingReIdles(t *testing.T) {
	conn := newFakeConnection("IDLE")
	idleStarted := make(chan struct{})
	proceed := make(chan struct{})
	secondIdleStarted := make(chan struct{})

	var commandCount int
	folder := &fakeFolder{
		name:   "Folder",
		isOpen: true,
		conn:   conn,
	}
	folder.onExecute = func(handler func(UntaggedResponse)) {
		commandCount++
		n := commandCount
		handler(UntaggedResponse{Kind: KindContinuation})
		switch n {
		case 1:
			close(idleStarted)
			<-proceed
		case 2:
			close(secondIdleStarted)
		}
	}

	receiver := &fakeReceiver{}
	wake := &fakeWakeLock{}
	c := NewRefreshController(folder, receiver, fakeConfig{displayCount: 5, idleRefreshMinutes: 10}, wake)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}

	select {
	case <-idleStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the first IDLE to start")
	}

	c.Refresh()
	close(proceed)

	select {
	case <-secondIdleStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the worker to re-issue IDLE after refresh")
	}

	// Checked before Stop, which may itself end the current IDLE with
	// its own DONE.
	if got := conn.doneCount(); got != 1 {
		t.Fatalf("DONE sent %d times, want exactly 1", got)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() returned error: %v", err)
	}
}
