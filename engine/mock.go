package engine

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/btcrollup/node/primitives"
)

var log = logrus.WithField("prefix", "engine")

// Mock is an in-process reference Ctl implementation for tests and the
// devnet CLI path: it accepts every payload as Valid unless pre-seeded
// otherwise, and tracks head/safe/finalized pointers for assertions.
type Mock struct {
	mu sync.Mutex

	// Invalidated marks blkids that SubmitPayload should report Invalid
	// for, so tests can exercise the FCM's rejection path.
	Invalidated map[primitives.L2BlockId]bool

	Head      primitives.L2BlockId
	Safe      primitives.L2BlockId
	Finalized primitives.L2BlockId

	known map[primitives.L2BlockId]bool

	jobs       map[PayloadJobID]payloadJob
	nextJobIdx uint64
}

type payloadJob struct {
	status  BuildStatus
	payload []byte
}

// NewMock returns an empty Mock engine.
func NewMock() *Mock {
	return &Mock{
		Invalidated: make(map[primitives.L2BlockId]bool),
		known:       make(map[primitives.L2BlockId]bool),
		jobs:        make(map[PayloadJobID]payloadJob),
	}
}

func (m *Mock) SubmitPayload(_ context.Context, blkid primitives.L2BlockId, _ []byte) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Invalidated[blkid] {
		log.WithField("blkid", blkid.String()).Warn("mock engine: rejecting seeded-invalid payload")
		return StatusInvalid, nil
	}
	m.known[blkid] = true
	return StatusValid, nil
}

func (m *Mock) PreparePayload(_ context.Context, env PayloadEnv) (PayloadJobID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextJobIdx++
	job := PayloadJobID(intToHex(m.nextJobIdx))
	m.jobs[job] = payloadJob{status: BuildReady, payload: env.ParentBlkid[:]}
	return job, nil
}

func (m *Mock) GetPayloadStatus(_ context.Context, job PayloadJobID) (BuildStatus, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[job]
	if !ok {
		return BuildBuilding, nil, nil
	}
	return j.status, j.payload, nil
}

func (m *Mock) UpdateHeadBlock(_ context.Context, blkid primitives.L2BlockId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Head = blkid
	return nil
}

func (m *Mock) UpdateSafeBlock(_ context.Context, blkid primitives.L2BlockId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Safe = blkid
	return nil
}

func (m *Mock) UpdateFinalizedBlock(_ context.Context, blkid primitives.L2BlockId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Finalized = blkid
	return nil
}

func (m *Mock) CheckBlockExists(_ context.Context, blkid primitives.L2BlockId) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.known[blkid], nil
}

func intToHex(v uint64) string {
	const hexDigits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = hexDigits[v%16]
		v /= 16
	}
	return string(buf[i:])
}
