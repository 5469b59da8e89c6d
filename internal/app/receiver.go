// Package app wires internal/push's collaborator interfaces to a real
// host: structured logging, persisted cursor state, and config reload.
// It is the one place that knows about both internal/push and
// internal/imapclient.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/cvogel/imappush/internal/imapclient"
	"github.com/cvogel/imappush/internal/push"
)

// Receiver implements push.PushReceiver. Body fetch/delivery is out of
// scope (spec.md §1 non-goals); SyncFolder's job here is limited to
// what the core actually hands off at a sync trigger: persist the
// folder's current UIDNEXT and let an external mail-processing system
// (not part of this engine) pick up from there.
type Receiver struct {
	folder *imapclient.Folder
	store  *push.StateStore
	ctx    context.Context
}

// NewReceiver builds a Receiver for folder, persisting cursor state
// through store.
func NewReceiver(ctx context.Context, folder *imapclient.Folder, store *push.StateStore) *Receiver {
	return &Receiver{folder: folder, store: store, ctx: ctx}
}

func (r *Receiver) SyncFolder(folder string) {
	uidNext, ok := r.folder.UidNext()
	if !ok {
		slog.Warn("push: sync requested but UIDNEXT unknown", "folder", folder)
		return
	}

	if err := r.store.Save(push.PushState{UidNext: uidNext}); err != nil {
		slog.Error("push: failed to persist cursor after sync", "folder", folder, "error", err)
		return
	}
	slog.Info("push: sync requested", "folder", folder, "uidNext", uidNext)
}

func (r *Receiver) MessageFlagsChanged(folder string, update push.FlagUpdate) {
	slog.Debug("push: flags changed", "folder", folder, "uid", update.UID, "flags", update.Flags)
}

func (r *Receiver) HighestModSeqChanged(folder string, modseq int64) {
	slog.Debug("push: highest modseq changed", "folder", folder, "modseq", modseq)
}

func (r *Receiver) SetPushActive(folder string, active bool) {
	slog.Info("push: active state changed", "folder", folder, "active", active)
}

func (r *Receiver) PushError(message string, cause error) {
	if cause != nil {
		slog.Error("push: "+message, "error", cause)
		return
	}
	slog.Warn("push: " + message)
}

func (r *Receiver) AuthenticationFailed() {
	slog.Error("push: authentication failed, worker stopped")
}

func (r *Receiver) Sleep(wakeLock push.WakeLock, d time.Duration) {
	if wakeLock != nil {
		wakeLock.Release()
	}
	select {
	case <-time.After(d):
	case <-r.ctx.Done():
	}
	if wakeLock != nil {
		_ = wakeLock.Acquire(d)
	}
}

func (r *Receiver) GetPushState(folder string) string {
	state, err := r.store.Load()
	if err != nil {
		slog.Warn("push: failed to load cursor, treating as unknown", "folder", folder, "error", err)
		return ""
	}
	return state.String()
}

func (r *Receiver) GetContext() context.Context { return r.ctx }
