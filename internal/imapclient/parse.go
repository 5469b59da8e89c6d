package imapclient

import (
	"strconv"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/cvogel/imappush/internal/push"
)

// translateUpdate maps one go-imap client.Update into the already-
// parsed push.UntaggedResponse shape internal/push classifies. ok is
// false for update kinds the core has no use for (StatusUpdate is the
// only one go-imap emits that this loop ignores outright).
func translateUpdate(u client.Update, f *Folder) (push.UntaggedResponse, bool) {
	switch v := u.(type) {
	case *client.MailboxUpdate:
		f.applyMailboxStatus(v.Mailbox)
		return push.UntaggedResponse{Kind: push.KindExists, SeqNum: v.Mailbox.Messages}, true

	case *client.ExpungeUpdate:
		return push.UntaggedResponse{Kind: push.KindExpunge, SeqNum: v.SeqNum}, true

	case *client.MessageUpdate:
		return messageUpdateToResponse(v), true

	default:
		return push.UntaggedResponse{}, false
	}
}

func (f *Folder) applyMailboxStatus(status *imap.MailboxStatus) {
	if status == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == nil {
		f.status = status
		return
	}
	if status.Messages != 0 {
		f.status.Messages = status.Messages
	}
	if status.UidNext != 0 {
		f.status.UidNext = status.UidNext
	}
}

// messageUpdateToResponse builds a KindFetch response out of a
// MessageUpdate. go-imap v1 has no first-class CONDSTORE/QRESYNC
// extension, so MODSEQ is read best-effort out of the raw fetch items
// map the server populated; absent it, HasModSeq stays false and
// internal/push falls back to treating the FETCH as a full sync
// trigger (see DecideSync's non-QRESYNC branch).
func messageUpdateToResponse(v *client.MessageUpdate) push.UntaggedResponse {
	msg := v.Message
	r := push.UntaggedResponse{
		Kind:   push.KindFetch,
		SeqNum: msg.SeqNum,
	}

	if msg.Uid != 0 {
		r.FetchUID = strconv.FormatUint(uint64(msg.Uid), 10)
	}
	if msg.Flags != nil {
		r.FetchFlags = msg.Flags
	}

	if raw, ok := msg.Items[imap.FetchItem("MODSEQ")]; ok {
		if modseq, ok := extractModSeq(raw); ok {
			r.HasModSeq = true
			r.FetchModSeq = modseq
		}
	}

	return r
}

func extractModSeq(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case uint64:
		return int64(v), true
	case int64:
		return v, true
	case []interface{}:
		if len(v) != 1 {
			return 0, false
		}
		return extractModSeq(v[0])
	default:
		return 0, false
	}
}

