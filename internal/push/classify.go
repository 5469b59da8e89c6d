package push

// Classification is the result of routing an already-parsed untagged
// response (spec §4.3).
type Classification int

const (
	ClassIgnore Classification = iota
	ClassBuffer
	ClassIdleAccepted
)

// Classify maps an untagged response to ignore/buffer/idle-accepted.
// Flag-update-only vs. trigger-sync is decided later, on drain, by
// DecideSync — classification only determines whether a response is
// worth holding onto at all.
func Classify(r UntaggedResponse) Classification {
	switch r.Kind {
	case KindContinuation:
		return ClassIdleAccepted
	case KindExists, KindExpunge, KindFetch, KindVanished:
		return ClassBuffer
	default:
		return ClassIgnore
	}
}

// smallestSeqNum is the lowest sequence number the host is expected to
// still display, given the configured display window.
func smallestSeqNum(messageCount int64, displayCount int) int64 {
	n := messageCount - int64(displayCount) + 1
	if n < 1 {
		return 1
	}
	return n
}

// startUid computes the cursor floor below which no sync is needed
// (spec §3). oldUidNext must already be clamped against the last
// observed UIDNEXT by the caller (cursor monotonicity).
func startUid(oldUidNext, newUidNext int64, displayCount int) int64 {
	floor := oldUidNext
	if alt := newUidNext - int64(displayCount); alt > floor {
		floor = alt
	}
	if floor < 1 {
		floor = 1
	}
	return floor
}

// deriveNewUidNext implements the UIDNEXT fallback chain from spec §3:
// prefer the server-reported UIDNEXT, fall back to highestUid+1, and
// finally -1 when nothing is known.
func deriveNewUidNext(serverUidNext int64, serverKnown bool, highestUid int64, highestKnown bool) int64 {
	if serverKnown {
		return serverUidNext
	}
	if highestKnown {
		return highestUid + 1
	}
	return -1
}

// SyncOutcome is the result of interpreting one buffered response
// against the current mailbox state (spec §4.3 "sync decision").
type SyncOutcome struct {
	Sync       bool
	FlagChange *FlagUpdate
	ModSeq     int64
	HasModSeq  bool
}

// DecideSync interprets a single buffered response. messageCount and
// displayCount determine the display window; qresync indicates
// whether the connection negotiated QRESYNC (enabling flag-only FETCH
// handling instead of a full sync).
func DecideSync(r UntaggedResponse, messageCount int64, displayCount int, qresync bool) SyncOutcome {
	switch r.Kind {
	case KindExpunge:
		return SyncOutcome{Sync: r.SeqNum >= uint32SeqFloor(smallestSeqNum(messageCount, displayCount))}

	case KindFetch:
		if r.SeqNum < uint32SeqFloor(smallestSeqNum(messageCount, displayCount)) {
			return SyncOutcome{}
		}
		if qresync {
			return SyncOutcome{
				FlagChange: &FlagUpdate{UID: r.FetchUID, Flags: r.FetchFlags},
				ModSeq:     r.FetchModSeq,
				HasModSeq:  r.HasModSeq,
			}
		}
		return SyncOutcome{Sync: true}

	case KindExists:
		return SyncOutcome{Sync: true}

	case KindVanished:
		return SyncOutcome{Sync: true}

	default:
		return SyncOutcome{}
	}
}

// uint32SeqFloor clamps a signed sequence-number floor into the
// unsigned range FETCH/EXPUNGE sequence numbers are expressed in.
func uint32SeqFloor(n int64) uint32 {
	if n < 0 {
		return 0
	}
	return uint32(n)
}
