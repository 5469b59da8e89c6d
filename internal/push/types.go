// Package push implements the IMAP IDLE push engine core: the IDLE
// lifecycle state machine, the untagged-response classifier, the
// retry/backoff loop, and the external start/refresh/stop controller
// described for a single mailbox folder.
//
// The package never dials a socket itself. It is driven entirely
// through the Connection, Folder, PushReceiver and StoreConfig
// collaborator interfaces below; internal/imapclient supplies a real
// implementation backed by github.com/emersion/go-imap.
package push

import (
	"context"
	"time"
)

// OpenMode selects how a Folder is opened.
type OpenMode int

const (
	ReadOnly OpenMode = iota
	ReadWrite
)

// Connection is the narrow surface the core needs from an open folder
// connection. Authentication, TLS and capability negotiation happen
// before a Connection reaches this package.
type Connection interface {
	// HasCapability reports whether the server advertised name.
	HasCapability(name string) (bool, error)

	// SetReadTimeout adjusts the socket read timeout used while an
	// IDLE (or any blocking command) is outstanding.
	SetReadTimeout(d time.Duration) error

	// SendContinuation writes a continuation line (namely "DONE") to
	// the wire.
	SendContinuation(text string) error

	// MoreResponsesAvailable is a non-blocking check for whether the
	// next untagged response is already buffered on the socket.
	MoreResponsesAvailable() bool

	// Close tears down the connection.
	Close() error
}

// UntaggedKind classifies an already-parsed untagged server response.
type UntaggedKind int

const (
	KindIgnore UntaggedKind = iota
	KindContinuation
	KindExists
	KindExpunge
	KindFetch
	KindVanished
)

// UntaggedResponse is an already-parsed untagged IMAP response. The
// wire codec that produces these is assumed to exist (spec §1); this
// package only classifies and reacts to them.
type UntaggedResponse struct {
	Kind UntaggedKind

	// SeqNum is the message sequence number for EXISTS/EXPUNGE/FETCH.
	SeqNum uint32

	// FetchUID, FetchFlags and FetchModSeq are populated for
	// KindFetch when the server included the corresponding attribute.
	FetchUID    string
	FetchFlags  []string
	FetchModSeq int64
	HasModSeq   bool

	// VanishedUIDs holds the UID set from a QRESYNC VANISHED response,
	// logged for debugging but not otherwise consumed by the core.
	VanishedUIDs string
}

// Folder is the narrow surface the core needs from a selected mailbox.
type Folder interface {
	Name() string
	Open(mode OpenMode) error
	Close() error
	IsOpen() bool

	// UidNext and HighestUid report the corresponding mailbox status
	// attributes as cached from the last SELECT/untagged status
	// update; ok is false when the server never reported the
	// attribute.
	UidNext() (value int64, ok bool)
	HighestUid() (value int64, ok bool)
	MessageCount() int64

	// ExecuteCommand issues name (only "IDLE" is used by this
	// package) and calls handler once per untagged response received
	// while the command is outstanding. It returns once the command
	// completes, whether by server-initiated completion, a DONE
	// reply, or an error.
	ExecuteCommand(name string, handler func(UntaggedResponse)) error

	// SupportsQresync reports whether the underlying connection
	// negotiated QRESYNC, enabling flag-change-only FETCH handling.
	SupportsQresync() bool

	// Connection exposes the capability/timeout/drain surface for the
	// currently open connection backing this folder.
	Connection() Connection
}

// FlagUpdate is delivered to PushReceiver.MessageFlagsChanged when a
// QRESYNC FETCH carries flag changes that can be applied without a
// full re-sync.
type FlagUpdate struct {
	UID   string
	Flags []string
}

// WakeLock is the opaque power-management collaborator. Acquire/
// Release calls are always balanced by the core, including on every
// exception path.
type WakeLock interface {
	Acquire(timeout time.Duration) error
	Release()
}

// PushReceiver is the host-side collaborator that receives sync
// requests and error reports.
type PushReceiver interface {
	SyncFolder(folder string)
	MessageFlagsChanged(folder string, update FlagUpdate)
	HighestModSeqChanged(folder string, modseq int64)
	SetPushActive(folder string, active bool)
	PushError(message string, cause error)
	AuthenticationFailed()

	// Sleep blocks for d, giving the host a chance to decide how
	// sleeping interacts with the wake lock. wakeLock may be nil.
	Sleep(wakeLock WakeLock, d time.Duration)

	GetPushState(folder string) string
	GetContext() context.Context
}

// StoreConfig exposes the per-account tunables the core reads every
// iteration.
type StoreConfig interface {
	DisplayCount() int
	IdleRefreshMinutes() int
	PushPollOnConnect() bool
}

const (
	// IdleReadTimeoutIncrement is the grace window added on top of
	// the server's own IDLE refresh interval (spec §6).
	IdleReadTimeoutIncrement = 5 * time.Minute

	// IdleFailureCountLimit is the number of consecutive non-auth
	// failures tolerated before the pusher disables itself.
	IdleFailureCountLimit = 10

	// MaxDelayTime caps the exponential backoff between retries.
	MaxDelayTime = 5 * time.Minute

	// NormalDelayTime is the initial (and post-success-reset) backoff.
	NormalDelayTime = 5 * time.Second
)
