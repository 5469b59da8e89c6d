package push

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// DefaultWakeLockTimeout bounds the window the main loop holds the
// wake lock for setup work (open folder, check capability, compute
// the cursor). PUSH_WAKE_LOCK_TIMEOUT in spec §6 is host-provided;
// this is the value used when the host does not override it.
const DefaultWakeLockTimeout = 30 * time.Second

// briefWakeLockTimeout bounds the short wake-lock poke taken while
// handling a single buffered untagged response.
const briefWakeLockTimeout = 5 * time.Second

// PushLoop is the worker described in spec §4.4: it opens/reopens the
// folder, decides whether to poll, arms IDLE, waits, drains buffered
// responses, decides whether to request a host sync, and implements
// the backoff/failure ladder.
type PushLoop struct {
	folder   Folder
	receiver PushReceiver
	config   StoreConfig
	wakeLock WakeLock

	stop   *atomic.Bool
	idling *atomic.Bool

	buffer *UntaggedBuffer

	sessionMu sync.Mutex
	session   *IdleSession

	needsPoll        bool
	lastUidNext      int64
	delayTime        time.Duration
	idleFailureCount int
	wakeLockHeld     bool
}

// NewPushLoop constructs a worker for folder. stop and idling are
// shared with the owning RefreshController so refresh()/stop() can
// observe and drive this loop's state from another goroutine.
func NewPushLoop(folder Folder, receiver PushReceiver, config StoreConfig, wakeLock WakeLock, stop, idling *atomic.Bool) *PushLoop {
	return &PushLoop{
		folder:      folder,
		receiver:    receiver,
		config:      config,
		wakeLock:    wakeLock,
		stop:        stop,
		idling:      idling,
		buffer:      &UntaggedBuffer{},
		lastUidNext: -1,
		delayTime:   NormalDelayTime,
	}
}

// Run drives iterations until stop is observed. Terminal cleanup
// (mark push inactive, close folder, release wake lock) always runs,
// including when an iteration panics the failure ladder into stop.
func (l *PushLoop) Run() {
	defer l.terminalCleanup()

	for !l.stop.Load() {
		l.runIteration()
	}
}

func (l *PushLoop) terminalCleanup() {
	l.receiver.SetPushActive(l.folder.Name(), false)

	var errs error
	if err := l.folder.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("close folder: %w", err))
	}
	if errs != nil {
		slog.Debug("push: error during terminal cleanup", "folder", l.folder.Name(), "error", errs)
	}

	if l.wakeLockHeld {
		l.wakeLock.Release()
		l.wakeLockHeld = false
	}
}

func (l *PushLoop) runIteration() {
	_ = l.wakeLock.Acquire(DefaultWakeLockTimeout)
	l.wakeLockHeld = true
	defer func() {
		if l.wakeLockHeld {
			l.wakeLock.Release()
			l.wakeLockHeld = false
		}
	}()

	if l.stop.Load() {
		return
	}

	state := ParsePushState(l.receiver.GetPushState(l.folder.Name()))
	oldUidNext := state.UidNext
	if l.lastUidNext > oldUidNext {
		oldUidNext = l.lastUidNext
	}

	openedNew, err := l.ensureFolderOpen()
	if err != nil {
		l.handleFailure(err)
		return
	}

	session := NewIdleSession(l.folder.Connection())
	hasIdle, err := session.HasIdleCapability()
	if err != nil {
		l.handleFailure(err)
		return
	}
	if !hasIdle {
		l.receiver.PushError(fmt.Sprintf("Push disabled for %s: server does not support IDLE", l.folder.Name()), ErrUnsupported)
		l.stop.Store(true)
		return
	}

	if l.config.PushPollOnConnect() && (openedNew || l.needsPoll) {
		l.receiver.SyncFolder(l.folder.Name())
		l.needsPoll = false
	}

	newUidNext := l.computeNewUidNext()
	if newUidNext > l.lastUidNext {
		l.lastUidNext = newUidNext
	}

	su := startUid(oldUidNext, newUidNext, l.config.DisplayCount())
	if newUidNext > su {
		l.receiver.SyncFolder(l.folder.Name())
		return
	}

	l.doIdle(session)
}

// ensureFolderOpen opens the folder if it isn't already, reporting
// whether it was (re)opened this call.
func (l *PushLoop) ensureFolderOpen() (openedNew bool, err error) {
	if l.folder.IsOpen() {
		return false, nil
	}
	if err := l.folder.Open(ReadWrite); err != nil {
		return false, err
	}
	return true, nil
}

// computeNewUidNext implements the UIDNEXT fallback chain from §3.
func (l *PushLoop) computeNewUidNext() int64 {
	uidNext, ok := l.folder.UidNext()
	highest, highestOK := l.folder.HighestUid()
	return deriveNewUidNext(uidNext, ok, highest, highestOK)
}

func (l *PushLoop) setSession(s *IdleSession) {
	l.sessionMu.Lock()
	l.session = s
	l.sessionMu.Unlock()
}

// currentSession returns the session backing an outstanding IDLE, or
// nil when not idling. Used by RefreshController.Refresh.
func (l *PushLoop) currentSession() *IdleSession {
	l.sessionMu.Lock()
	defer l.sessionMu.Unlock()
	return l.session
}

func (l *PushLoop) doIdle(session *IdleSession) {
	l.setSession(session)
	defer l.setSession(nil)
	defer session.StopAcceptingDone()

	l.receiver.SetPushActive(l.folder.Name(), true)

	messageCount := l.folder.MessageCount()
	qresync := l.folder.SupportsQresync()

	timeout := time.Duration(l.config.IdleRefreshMinutes())*time.Minute + IdleReadTimeoutIncrement
	if err := session.SetReadTimeout(timeout); err != nil {
		l.handleFailure(err)
		return
	}

	l.idling.Store(true)
	err := l.folder.ExecuteCommand("IDLE", func(r UntaggedResponse) {
		l.handleUntagged(session, r, messageCount, qresync)
	})
	l.idling.Store(false)

	// Preserve the documented quirk (spec §9): even though the
	// in-callback drain short-circuits once stop is observed, a final
	// drain still flushes whatever is left in the buffer.
	l.drainAndApply(session, messageCount, qresync, false)

	if err != nil {
		l.handleFailure(err)
		return
	}

	l.delayTime = NormalDelayTime
	l.idleFailureCount = 0
}

func (l *PushLoop) handleUntagged(session *IdleSession, r UntaggedResponse, messageCount int64, qresync bool) {
	if l.stop.Load() {
		_ = session.StopIdle()
		return
	}

	class := Classify(r)

	if class == ClassBuffer {
		_ = l.wakeLock.Acquire(briefWakeLockTimeout)
		defer l.wakeLock.Release()
	}

	switch class {
	case ClassBuffer:
		l.buffer.Append(r)

	case ClassIdleAccepted:
		// startAcceptingDone cannot fail here: the connection is
		// known attached (this callback only runs while ExecuteCommand
		// holds it).
		_ = session.StartAcceptingDone()
		if l.wakeLockHeld {
			l.wakeLock.Release()
			l.wakeLockHeld = false
		}

	case ClassIgnore:
	}

	if !session.MoreResponsesAvailable() {
		l.drainAndApply(session, messageCount, qresync, true)
	}
}

// drainAndApply drains the buffer and applies the sync decision for
// each response in arrival order, short-circuiting on the first sync
// trigger. stopOnTrigger controls whether a trigger ends the
// outstanding IDLE (true from within the callback; false when called
// after ExecuteCommand has already returned).
func (l *PushLoop) drainAndApply(session *IdleSession, messageCount int64, qresync bool, stopOnTrigger bool) {
	responses := l.buffer.Drain()
	name := l.folder.Name()

	for _, r := range responses {
		outcome := DecideSync(r, messageCount, l.config.DisplayCount(), qresync)

		if outcome.FlagChange != nil {
			l.receiver.MessageFlagsChanged(name, *outcome.FlagChange)
		}
		if outcome.HasModSeq {
			l.receiver.HighestModSeqChanged(name, outcome.ModSeq)
		}
		if outcome.Sync {
			l.receiver.SyncFolder(name)
			if stopOnTrigger {
				_ = session.StopIdle()
			}
			return
		}
	}
}

// handleFailure handles an error from an iteration (spec §4.4/§7): an
// ErrAuth error is fatal and stops the loop; any other error is logged
// and dropped once stop is set, and otherwise goes through the backoff
// ladder.
func (l *PushLoop) handleFailure(err error) {
	name := l.folder.Name()

	if errors.Is(err, ErrAuth) {
		if !l.wakeLockHeld {
			_ = l.wakeLock.Acquire(DefaultWakeLockTimeout)
			l.wakeLockHeld = true
		}
		_ = l.folder.Close()
		l.receiver.AuthenticationFailed()
		l.stop.Store(true)
		return
	}

	if l.stop.Load() {
		slog.Info("push: error observed after stop, dropping", "folder", name, "error", err)
		return
	}

	if !l.wakeLockHeld {
		_ = l.wakeLock.Acquire(DefaultWakeLockTimeout)
		l.wakeLockHeld = true
	}
	l.buffer.Drain()
	l.receiver.SetPushActive(name, false)
	_ = l.folder.Close()
	l.receiver.PushError(fmt.Sprintf("Push error for %s", name), err)

	l.receiver.Sleep(l.wakeLock, l.delayTime)
	l.delayTime *= 2
	if l.delayTime > MaxDelayTime {
		l.delayTime = MaxDelayTime
	}

	l.idleFailureCount++
	if l.idleFailureCount > IdleFailureCountLimit {
		l.receiver.PushError(fmt.Sprintf("Push disabled for %s after %d consecutive errors", name, l.idleFailureCount), nil)
		l.stop.Store(true)
	}
}
