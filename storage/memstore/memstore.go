// Package memstore is an in-memory reference implementation of the
// storage interfaces, used by unit tests where a durable bbolt database
// would just be friction. The datatool CLI does not use it.
package memstore

import (
	"sort"
	"sync"

	"github.com/btcrollup/node/primitives"
	"github.com/btcrollup/node/storage"
)

// ChainstateStore is a mutex-guarded map-backed storage.ChainstateStore.
type ChainstateStore struct {
	mu      sync.RWMutex
	entries map[uint64]storage.WriteBatchEntry
	lastIdx *uint64
}

// NewChainstateStore returns an empty chainstate store.
func NewChainstateStore() *ChainstateStore {
	return &ChainstateStore{entries: make(map[uint64]storage.WriteBatchEntry)}
}

func (s *ChainstateStore) PutWriteBatch(slot uint64, entry storage.WriteBatchEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[slot] = entry
	if s.lastIdx == nil || slot > *s.lastIdx {
		v := slot
		s.lastIdx = &v
	}
	return nil
}

func (s *ChainstateStore) GetToplevel(slot uint64) (*primitives.Chainstate, primitives.L2BlockId, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[slot]
	if !ok {
		return nil, primitives.L2BlockId{}, storage.ErrNotFound
	}
	return e.Chainstate, e.Blkid, nil
}

func (s *ChainstateStore) GetLastWriteIdx() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastIdx == nil {
		return 0, storage.ErrNotBootstrapped
	}
	return *s.lastIdx, nil
}

func (s *ChainstateStore) RollbackWritesTo(slot uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if k > slot {
			delete(s.entries, k)
		}
	}
	if len(s.entries) == 0 {
		s.lastIdx = nil
		return nil
	}
	var max uint64
	first := true
	for k := range s.entries {
		if first || k > max {
			max = k
			first = false
		}
	}
	s.lastIdx = &max
	return nil
}

func (s *ChainstateStore) PurgeBefore(slot uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if k < slot {
			delete(s.entries, k)
		}
	}
	return nil
}

// CheckpointStore is a mutex-guarded map-backed storage.CheckpointStore.
type CheckpointStore struct {
	mu        sync.RWMutex
	entries   map[uint64]*primitives.CheckpointEntry
	summaries map[uint64]primitives.EpochSummary
}

// NewCheckpointStore returns an empty checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		entries:   make(map[uint64]*primitives.CheckpointEntry),
		summaries: make(map[uint64]primitives.EpochSummary),
	}
}

func (s *CheckpointStore) Get(epoch uint64) (*primitives.CheckpointEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[epoch]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return e, nil
}

func (s *CheckpointStore) Put(epoch uint64, entry *primitives.CheckpointEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[epoch] = entry
	return nil
}

func (s *CheckpointStore) GetLastIdx() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return 0, storage.ErrNotFound
	}
	keys := make([]uint64, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys[len(keys)-1], nil
}

func (s *CheckpointStore) InsertEpochSummary(summary primitives.EpochSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[summary.Epoch] = summary
	return nil
}

func (s *CheckpointStore) GetEpochSummary(epoch uint64) (*primitives.EpochSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.summaries[epoch]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &sum, nil
}

// L1Store is a mutex-guarded map-backed storage.L1Store.
type L1Store struct {
	mu        sync.RWMutex
	byHeight  map[uint64]primitives.L1BlockManifest
	byBlkid   map[primitives.L1BlockId]primitives.L1BlockManifest
}

// NewL1Store returns an empty L1 store.
func NewL1Store() *L1Store {
	return &L1Store{
		byHeight: make(map[uint64]primitives.L1BlockManifest),
		byBlkid:  make(map[primitives.L1BlockId]primitives.L1BlockManifest),
	}
}

func (s *L1Store) PutManifest(m primitives.L1BlockManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byHeight[m.Height] = m
	s.byBlkid[m.Blkid] = m
	return nil
}

func (s *L1Store) GetManifest(height uint64) (*primitives.L1BlockManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byHeight[height]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &m, nil
}

func (s *L1Store) GetManifestByBlkid(blkid primitives.L1BlockId) (*primitives.L1BlockManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byBlkid[blkid]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &m, nil
}

// L2Store is a mutex-guarded map-backed storage.L2Store.
type L2Store struct {
	mu         sync.RWMutex
	bundles    map[primitives.L2BlockId]primitives.L2BlockBundle
	atHeight   map[uint64][]primitives.L2BlockId
	status     map[primitives.L2BlockId]storage.BlockStatus
}

// NewL2Store returns an empty L2 store.
func NewL2Store() *L2Store {
	return &L2Store{
		bundles:  make(map[primitives.L2BlockId]primitives.L2BlockBundle),
		atHeight: make(map[uint64][]primitives.L2BlockId),
		status:   make(map[primitives.L2BlockId]storage.BlockStatus),
	}
}

func (s *L2Store) PutBlock(blkid primitives.L2BlockId, bundle primitives.L2BlockBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bundles[blkid]; !exists {
		slot := bundle.Header.Header.Slot
		s.atHeight[slot] = append(s.atHeight[slot], blkid)
	}
	s.bundles[blkid] = bundle
	if _, ok := s.status[blkid]; !ok {
		s.status[blkid] = storage.StatusUnchecked
	}
	return nil
}

func (s *L2Store) GetBlock(blkid primitives.L2BlockId) (*primitives.L2BlockBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bundles[blkid]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &b, nil
}

func (s *L2Store) GetBlocksAtHeight(slot uint64) ([]primitives.L2BlockId, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]primitives.L2BlockId(nil), s.atHeight[slot]...), nil
}

func (s *L2Store) SetStatus(blkid primitives.L2BlockId, status storage.BlockStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[blkid] = status
	return nil
}

func (s *L2Store) GetStatus(blkid primitives.L2BlockId) (storage.BlockStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.status[blkid]
	if !ok {
		return storage.StatusUnchecked, storage.ErrNotFound
	}
	return st, nil
}

// ClientStateStore is a mutex-guarded map-backed storage.ClientStateStore.
type ClientStateStore struct {
	mu      sync.RWMutex
	states  map[uint64]*primitives.ClientState
	actions map[uint64][]primitives.SyncAction
	lastIdx *uint64
}

// NewClientStateStore returns an empty client state store.
func NewClientStateStore() *ClientStateStore {
	return &ClientStateStore{
		states:  make(map[uint64]*primitives.ClientState),
		actions: make(map[uint64][]primitives.SyncAction),
	}
}

func (s *ClientStateStore) PutUpdate(idx uint64, state *primitives.ClientState, actions []primitives.SyncAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[idx] = state
	s.actions[idx] = actions
	if s.lastIdx == nil || idx > *s.lastIdx {
		v := idx
		s.lastIdx = &v
	}
	return nil
}

func (s *ClientStateStore) GetState(idx uint64) (*primitives.ClientState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[idx]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return st, nil
}

func (s *ClientStateStore) GetActions(idx uint64) ([]primitives.SyncAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[idx]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return a, nil
}

func (s *ClientStateStore) GetLastIdx() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastIdx == nil {
		return 0, storage.ErrNotFound
	}
	return *s.lastIdx, nil
}

// EventContext adapts the memstore triple (L1Store, L2Store,
// ChainstateStore) into a storage.EventContext for CSM tests.
type EventContext struct {
	L1     *L1Store
	L2     *L2Store
	Chain  *ChainstateStore
}

func (c *EventContext) GetL1Manifest(height uint64) (*primitives.L1BlockManifest, error) {
	return c.L1.GetManifest(height)
}

func (c *EventContext) GetL2Bundle(blkid primitives.L2BlockId) (*primitives.L2BlockBundle, error) {
	return c.L2.GetBlock(blkid)
}

func (c *EventContext) GetToplevelChainstate(slot uint64) (*primitives.Chainstate, error) {
	cs, _, err := c.Chain.GetToplevel(slot)
	return cs, err
}
