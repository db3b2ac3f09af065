// Package engine defines the opaque execution-engine contract the FCM
// drives: payload submission, asynchronous payload preparation, and
// head/safe/finalized pointer updates, per SPEC_FULL.md 4.9. Engine
// internals are out of scope (spec.md 1); only this interface and a
// reference in-process Mock are specified here.
package engine

import (
	"context"

	"github.com/pkg/errors"

	"github.com/btcrollup/node/primitives"
)

// Status is the engine's verdict on a submitted payload.
type Status int

const (
	StatusValid Status = iota
	StatusSyncing
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusSyncing:
		return "syncing"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// BuildStatus is the asynchronous-build state of a prepare_payload job.
type BuildStatus int

const (
	BuildBuilding BuildStatus = iota
	BuildReady
)

// PayloadJobID names an in-progress prepare_payload job.
type PayloadJobID string

// PayloadEnv is the environment handed to prepare_payload: the parent
// block's execution context plus the deposits the resulting payload
// should credit.
type PayloadEnv struct {
	ParentBlkid primitives.L2BlockId
	Timestamp   uint64
	Deposits    []primitives.DepositEntry
}

// ErrConnection marks a transient, recoverable failure talking to the
// engine (network blip, engine still syncing its own view). Callers
// should retry the message rather than mark the block Invalid.
var ErrConnection = errors.New("engine: connection error")

// Ctl is the execution engine contract. Every method is idempotent by
// blkid/job id where applicable, matching an engine driven by repeated
// polling rather than exactly-once delivery.
type Ctl interface {
	// SubmitPayload hands a fully-formed execution payload to the
	// engine for validation, returning Valid/Syncing/Invalid.
	SubmitPayload(ctx context.Context, blkid primitives.L2BlockId, payload []byte) (Status, error)

	// PreparePayload asks the engine to begin building a payload over
	// env asynchronously, returning a job id to poll.
	PreparePayload(ctx context.Context, env PayloadEnv) (PayloadJobID, error)

	// GetPayloadStatus polls a prepare_payload job.
	GetPayloadStatus(ctx context.Context, job PayloadJobID) (BuildStatus, []byte, error)

	UpdateHeadBlock(ctx context.Context, blkid primitives.L2BlockId) error
	UpdateSafeBlock(ctx context.Context, blkid primitives.L2BlockId) error
	UpdateFinalizedBlock(ctx context.Context, blkid primitives.L2BlockId) error

	CheckBlockExists(ctx context.Context, blkid primitives.L2BlockId) (bool, error)
}
