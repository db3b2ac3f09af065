package chaintsn

import "github.com/pkg/errors"

// InvalidStateTsnError wraps any state-transition failure with a
// human-readable reason, per SPEC_FULL.md 4.7/7. It does not carry the
// offending block's id. ProcessBlock reports the sentinel errors below by
// their message only, so errors.Is does not match them through this type.
// Callers must not persist anything produced before this error.
type InvalidStateTsnError struct {
	Reason string
}

func (e *InvalidStateTsnError) Error() string {
	return "invalid state transition: " + e.Reason
}

func invalidTsn(reason string) error {
	return &InvalidStateTsnError{Reason: reason}
}

// ErrParentMismatch is returned when a header's declared parent does not
// match the state cache's prior tip.
var ErrParentMismatch = errors.New("chaintsn: header parent does not match cache tip")

// ErrL1SegmentGap is returned when the L1 segment's new manifests are not
// a strict, contiguous extension of the cache's L1 view.
var ErrL1SegmentGap = errors.New("chaintsn: l1 segment is not a strict extension")

// ErrTooManyDeposits is returned when an exec update claims to consume
// more deposits than the configured per-block maximum.
var ErrTooManyDeposits = errors.New("chaintsn: exec update exceeds max_deposits_in_block")

// ErrInsufficientDeposits is returned when an exec update claims to
// consume more deposits than are actually pending.
var ErrInsufficientDeposits = errors.New("chaintsn: exec update claims more deposits than are pending")
