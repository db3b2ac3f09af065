package primitives

// SyncState is the CSM's view of the canonical L2 chain: the genesis
// block, the current tip and the most recently finalized block as
// declared by CSM-observed checkpoints.
type SyncState struct {
	GenesisBlkid   L2BlockId
	Tip            L2BlockCommitment
	FinalizedBlkid L2BlockId
}

// InternalState is the CSM's per-L1-height bookkeeping snapshot: the L1
// block the state was computed as of, and the most recently observed
// checkpoint (if any) as of that height.
type InternalState struct {
	Blkid          L1BlockId
	LastCheckpoint *L1Checkpoint
}

// ClientState is the full output of the client state machine: whether the
// chain has reached genesis, the sync state once it has, a bounded window
// of recent per-height internal states, and the most recently declared
// finalized epoch.
type ClientState struct {
	ChainActive        bool
	Sync               *SyncState
	InternalStates     map[uint64]InternalState
	DeclaredFinalEpoch *EpochCommitment
	Retention          uint64
}

// NewClientState returns the pre-genesis client state: inactive, no sync
// state, empty history.
func NewClientState(retention uint64) *ClientState {
	return &ClientState{
		ChainActive:    false,
		InternalStates: make(map[uint64]InternalState),
		Retention:      retention,
	}
}

// NextExpL1Block returns the height the CSM next expects an L1Block event
// for: one past the highest internal-state height it has recorded, or 0
// if it has none.
func (s *ClientState) NextExpL1Block() uint64 {
	if len(s.InternalStates) == 0 {
		return 0
	}
	var max uint64
	first := true
	for h := range s.InternalStates {
		if first || h > max {
			max = h
			first = false
		}
	}
	return max + 1
}

// GetInternalState returns the recorded internal state at height, if any.
func (s *ClientState) GetInternalState(height uint64) (InternalState, bool) {
	st, ok := s.InternalStates[height]
	return st, ok
}

// deepestL1Height returns the lowest height currently retained, or
// (0, false) if none are retained.
func (s *ClientState) deepestL1Height() (uint64, bool) {
	if len(s.InternalStates) == 0 {
		return 0, false
	}
	var min uint64
	first := true
	for h := range s.InternalStates {
		if first || h < min {
			min = h
			first = false
		}
	}
	return min, true
}

// pruneBefore discards recorded internal states strictly below height.
func (s *ClientState) pruneBefore(height uint64) {
	for h := range s.InternalStates {
		if h < height {
			delete(s.InternalStates, h)
		}
	}
}

// StateMut accumulates writes to a ClientState plus the side-effect
// actions produced while processing a single sync event, so the CSM's
// transition function can be expressed as a sequence of straight-line
// mutations instead of threading return values through every helper.
type StateMut struct {
	state   *ClientState
	actions []SyncAction
}

// NewStateMut wraps state for mutation during one event's processing.
func NewStateMut(state *ClientState) *StateMut {
	return &StateMut{state: state}
}

// State returns the state being mutated.
func (m *StateMut) State() *ClientState {
	return m.state
}

// PushAction records a side-effect action to be returned alongside the
// state writes once processing completes.
func (m *StateMut) PushAction(a SyncAction) {
	m.actions = append(m.actions, a)
}

// Finish returns the final state and the accumulated actions.
func (m *StateMut) Finish() (*ClientState, []SyncAction) {
	return m.state, m.actions
}

// RecordInternalState stores height's internal state and, if the retention
// window has a bound, prunes anything older than Retention heights back.
func (m *StateMut) RecordInternalState(height uint64, st InternalState) {
	m.state.InternalStates[height] = st
	if m.state.Retention > 0 && height >= m.state.Retention {
		m.state.pruneBefore(height - m.state.Retention + 1)
	}
}
