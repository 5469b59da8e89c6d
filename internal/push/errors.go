package push

import "errors"

// Error kinds from spec §7. None of these are swallowed silently except
// where the design explicitly says so (errors observed after stop).
var (
	// ErrTransport covers socket read/write/close failures and timeouts.
	ErrTransport = errors.New("push: transport error")

	// ErrProtocol covers malformed or unexpected server responses.
	ErrProtocol = errors.New("push: protocol error")

	// ErrUnsupported means the server lacks the IDLE capability. Fatal
	// for the folder's pusher.
	ErrUnsupported = errors.New("push: IDLE not supported by server")

	// ErrAuth means authentication was rejected while (re)opening the
	// folder. Fatal for the folder's pusher.
	ErrAuth = errors.New("push: authentication failed")

	// ErrInvariant means the public API was misused (double start,
	// double stop, startAcceptingDone with no connection attached).
	// Always surfaced synchronously to the caller, never swallowed.
	ErrInvariant = errors.New("push: invariant violation")
)
