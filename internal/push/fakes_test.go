package push

import (
	"context"
	"sync"
	"time"
)

// fakeConnection is a minimal Connection double. It never blocks and
// never reports more buffered responses, so every handled response in
// a test is immediately eligible for draining.
type fakeConnection struct {
	mu sync.Mutex

	capabilities map[string]bool
	readTimeout  time.Duration
	closed       bool

	continuations    []string
	sendContinuation func(text string) error
}

func newFakeConnection(caps ...string) *fakeConnection {
	m := make(map[string]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return &fakeConnection{capabilities: m}
}

func (c *fakeConnection) HasCapability(name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities[name], nil
}

func (c *fakeConnection) SetReadTimeout(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readTimeout = d
	return nil
}

func (c *fakeConnection) SendContinuation(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.continuations = append(c.continuations, text)
	if c.sendContinuation != nil {
		return c.sendContinuation(text)
	}
	return nil
}

func (c *fakeConnection) MoreResponsesAvailable() bool { return false }

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConnection) doneCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.continuations {
		if s == "DONE" {
			n++
		}
	}
	return n
}

// fakeFolder is a minimal Folder double. events is replayed verbatim
// to the handler passed to ExecuteCommand, one call per scripted
// response; executeErr is returned once the replay finishes.
type fakeFolder struct {
	mu sync.Mutex

	name   string
	isOpen bool
	openErr error

	uidNext      int64
	uidNextOK    bool
	highestUid   int64
	highestUidOK bool
	messageCount int64
	qresync      bool

	conn *fakeConnection

	events     []UntaggedResponse
	executeErr error

	executedCommands []string
	openCount        int
	closeCount       int

	// onExecute lets a test react mid-replay, e.g. to call Refresh()
	// once the "+ idling" continuation has been delivered.
	onExecute func(handler func(UntaggedResponse))
}

func (f *fakeFolder) Name() string { return f.name }

func (f *fakeFolder) Open(mode OpenMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.isOpen = true
	f.openCount++
	return nil
}

func (f *fakeFolder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isOpen = false
	f.closeCount++
	return nil
}

func (f *fakeFolder) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isOpen
}

func (f *fakeFolder) UidNext() (int64, bool)    { return f.uidNext, f.uidNextOK }
func (f *fakeFolder) HighestUid() (int64, bool) { return f.highestUid, f.highestUidOK }
func (f *fakeFolder) MessageCount() int64       { return f.messageCount }
func (f *fakeFolder) SupportsQresync() bool     { return f.qresync }
func (f *fakeFolder) Connection() Connection    { return f.conn }

func (f *fakeFolder) ExecuteCommand(name string, handler func(UntaggedResponse)) error {
	f.mu.Lock()
	f.executedCommands = append(f.executedCommands, name)
	events := f.events
	onExecute := f.onExecute
	f.mu.Unlock()

	if onExecute != nil {
		onExecute(handler)
		return f.executeErr
	}

	for _, e := range events {
		handler(e)
	}
	return f.executeErr
}

// fakeReceiver records every call a PushReceiver can receive.
type fakeReceiver struct {
	mu sync.Mutex

	syncCalls        []string
	flagChanges      []FlagUpdate
	modSeqChanges    []int64
	pushActiveCalls  []bool
	pushErrors       []string
	pushErrorCauses  []error
	authFailedCalls  int
	sleepCalls       []time.Duration
	pushState        string

	// onSyncFolder, when set, is invoked synchronously from SyncFolder
	// so a test can inspect state (e.g. a wake lock) at the exact
	// moment the host-signaling work happens.
	onSyncFolder func()
}

func (r *fakeReceiver) SyncFolder(folder string) {
	r.mu.Lock()
	r.syncCalls = append(r.syncCalls, folder)
	hook := r.onSyncFolder
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (r *fakeReceiver) MessageFlagsChanged(folder string, update FlagUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flagChanges = append(r.flagChanges, update)
}

func (r *fakeReceiver) HighestModSeqChanged(folder string, modseq int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modSeqChanges = append(r.modSeqChanges, modseq)
}

func (r *fakeReceiver) SetPushActive(folder string, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushActiveCalls = append(r.pushActiveCalls, active)
}

func (r *fakeReceiver) PushError(message string, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushErrors = append(r.pushErrors, message)
	r.pushErrorCauses = append(r.pushErrorCauses, cause)
}

func (r *fakeReceiver) AuthenticationFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authFailedCalls++
}

func (r *fakeReceiver) Sleep(wakeLock WakeLock, d time.Duration) {
	r.mu.Lock()
	r.sleepCalls = append(r.sleepCalls, d)
	r.mu.Unlock()
}

func (r *fakeReceiver) GetPushState(folder string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pushState
}

func (r *fakeReceiver) GetContext() context.Context { return context.Background() }

func (r *fakeReceiver) syncCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.syncCalls)
}

// fakeWakeLock counts acquire/release calls so tests can assert the
// balance invariant from spec §8.
type fakeWakeLock struct {
	mu        sync.Mutex
	acquired  int
	released  int
}

func (w *fakeWakeLock) Acquire(timeout time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.acquired++
	return nil
}

func (w *fakeWakeLock) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.released++
}

func (w *fakeWakeLock) balanced() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.acquired == w.released
}

func (w *fakeWakeLock) held() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.acquired > w.released
}

// fakeConfig is a static StoreConfig double.
type fakeConfig struct {
	displayCount       int
	idleRefreshMinutes int
	pushPollOnConnect  bool
}

func (c fakeConfig) DisplayCount() int       { return c.displayCount }
func (c fakeConfig) IdleRefreshMinutes() int { return c.idleRefreshMinutes }
func (c fakeConfig) PushPollOnConnect() bool { return c.pushPollOnConnect }
