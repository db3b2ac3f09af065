package fcm

import "github.com/pkg/errors"

// ErrBlockNotFound is returned when a NewBlock message names a blkid the
// L2 store has never recorded.
var ErrBlockNotFound = errors.New("fcm: block not found")

// ErrBadCredential is returned when a header's signature fails the
// active credential rule.
var ErrBadCredential = errors.New("fcm: header credential check failed")

// ErrBlockMarkedInvalid is returned when a NewBlock message names a
// blkid the store already marked Invalid.
var ErrBlockMarkedInvalid = errors.New("fcm: block already marked invalid")

// ErrStaterootMismatch aborts an entire tip-update batch when a block's
// post-STF state root does not match the root embedded in its header.
var ErrStaterootMismatch = errors.New("fcm: computed state root does not match header")

// ErrEngineConnection wraps a transient engine failure; the caller
// should treat the triggering message as indeterminate and retry it.
var ErrEngineConnection = errors.New("fcm: engine connection error")

// ErrStaleFinalization is returned when OnClientState reports a declared
// finalized epoch that is not strictly newer than one already queued or
// applied.
var ErrStaleFinalization = errors.New("fcm: stale or non-monotonic finalized epoch")

// errUnknownTipUpdateKind guards the TipUpdateKind switch in applyTipUpdate;
// it should be unreachable given forkchoice.ComputeTipUpdate's contract.
var errUnknownTipUpdateKind = errors.New("fcm: unknown tip update kind")
