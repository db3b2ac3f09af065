// Package boltstore is a bbolt-backed implementation of the storage
// interfaces, mirroring the bucket-per-collection layout and
// ristretto/prombbolt wiring of the teacher's beacon-chain/db/kv store.
package boltstore

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prysmaticlabs/prombbolt"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/btcrollup/node/primitives"
	"github.com/btcrollup/node/storage"
)

var log = logrus.WithField("prefix", "boltstore")

var (
	chainstateBucket   = []byte("chainstate")
	chainstateBlkid    = []byte("chainstate-blkid")
	checkpointBucket   = []byte("checkpoints")
	epochSummaryBucket = []byte("epoch-summaries")
	l1ManifestBucket   = []byte("l1-manifests")
	l1ByBlkidBucket    = []byte("l1-manifests-by-blkid")
	l2BundleBucket     = []byte("l2-bundles")
	l2AtHeightBucket   = []byte("l2-blocks-at-height")
	l2StatusBucket     = []byte("l2-status")
)

const blockCacheSize = 1 << 20 // ~1M L2 bundles worth of cache slots, cost-weighted by payload size

// Store is the shared bbolt handle backing all storage.* implementations.
// Each of the four interfaces is exposed as a thin view over the same
// underlying database, matching the teacher's single-Store-many-views
// layout.
type Store struct {
	db           *bolt.DB
	databasePath string
	blockCache   *ristretto.Cache
}

// Open creates or opens the bbolt database at dirPath/rollup.db, creates
// all required buckets, and registers its Prometheus collector.
func Open(dirPath string) (*Store, error) {
	if err := os.MkdirAll(dirPath, 0700); err != nil {
		return nil, errors.Wrap(err, "boltstore: creating data directory")
	}
	datafile := filepath.Join(dirPath, "rollup.db")
	db, err := bolt.Open(datafile, 0600, &bolt.Options{Timeout: 1 * time.Second, InitialMmapSize: 10e6})
	if err != nil {
		return nil, errors.Wrap(err, "boltstore: opening database")
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: blockCacheSize,
		MaxCost:     1 << 28,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "boltstore: creating block cache")
	}

	s := &Store{db: db, databasePath: datafile, blockCache: cache}

	if err := db.Update(func(tx *bolt.Tx) error {
		return createBuckets(tx,
			chainstateBucket, chainstateBlkid, checkpointBucket, epochSummaryBucket,
			l1ManifestBucket, l1ByBlkidBucket, l2BundleBucket, l2AtHeightBucket, l2StatusBucket,
		)
	}); err != nil {
		return nil, errors.Wrap(err, "boltstore: creating buckets")
	}

	if err := prometheus.Register(createBoltCollector(s.db)); err != nil {
		log.WithError(err).Warn("bolt collector already registered")
	}

	return s, nil
}

func createBuckets(tx *bolt.Tx, buckets ...[]byte) error {
	for _, b := range buckets {
		if _, err := tx.CreateBucketIfNotExists(b); err != nil {
			return err
		}
	}
	return nil
}

func createBoltCollector(db *bolt.DB) prometheus.Collector {
	return prombbolt.New("rollup_boltdb", db)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DatabasePath returns the path to the underlying bbolt file.
func (s *Store) DatabasePath() string {
	return s.databasePath
}

func u64key(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func parseU64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// Chainstate returns a storage.ChainstateStore view over s.
func (s *Store) Chainstate() storage.ChainstateStore { return (*chainstateView)(s) }

// Checkpoint returns a storage.CheckpointStore view over s.
func (s *Store) Checkpoint() storage.CheckpointStore { return (*checkpointView)(s) }

// L1 returns a storage.L1Store view over s.
func (s *Store) L1() storage.L1Store { return (*l1View)(s) }

// L2 returns a storage.L2Store view over s.
func (s *Store) L2() storage.L2Store { return (*l2View)(s) }

type chainstateView Store

type chainstateRecord struct {
	Chainstate *primitives.Chainstate
	Blkid      primitives.L2BlockId
}

func (v *chainstateView) PutWriteBatch(slot uint64, entry storage.WriteBatchEntry) error {
	db := v.db
	return db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(chainstateRecord{Chainstate: entry.Chainstate, Blkid: entry.Blkid})
		if err != nil {
			return err
		}
		if err := tx.Bucket(chainstateBucket).Put(u64key(slot), data); err != nil {
			return err
		}
		return tx.Bucket(chainstateBlkid).Put([]byte("last"), u64key(slot))
	})
}

func (v *chainstateView) GetToplevel(slot uint64) (*primitives.Chainstate, primitives.L2BlockId, error) {
	db := v.db
	var rec chainstateRecord
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(chainstateBucket).Get(u64key(slot))
		if data == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, primitives.L2BlockId{}, err
	}
	return rec.Chainstate, rec.Blkid, nil
}

func (v *chainstateView) GetLastWriteIdx() (uint64, error) {
	db := v.db
	var idx uint64
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(chainstateBlkid).Get([]byte("last"))
		if data == nil {
			return storage.ErrNotBootstrapped
		}
		idx = parseU64(data)
		return nil
	})
	return idx, err
}

func (v *chainstateView) RollbackWritesTo(slot uint64) error {
	db := v.db
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(chainstateBucket)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if parseU64(k) > slot {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return tx.Bucket(chainstateBlkid).Put([]byte("last"), u64key(slot))
	})
}

func (v *chainstateView) PurgeBefore(slot uint64) error {
	db := v.db
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(chainstateBucket)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if parseU64(k) < slot {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

type checkpointView Store

func (v *checkpointView) Get(epoch uint64) (*primitives.CheckpointEntry, error) {
	db := v.db
	var e primitives.CheckpointEntry
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(checkpointBucket).Get(u64key(epoch))
		if data == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(data, &e)
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (v *checkpointView) Put(epoch uint64, entry *primitives.CheckpointEntry) error {
	db := v.db
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(checkpointBucket).Put(u64key(epoch), data)
	})
}

func (v *checkpointView) GetLastIdx() (uint64, error) {
	db := v.db
	var idx uint64
	err := db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(checkpointBucket).Cursor()
		k, _ := c.Last()
		if k == nil {
			return storage.ErrNotFound
		}
		idx = parseU64(k)
		return nil
	})
	return idx, err
}

func (v *checkpointView) InsertEpochSummary(summary primitives.EpochSummary) error {
	db := v.db
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(epochSummaryBucket).Put(u64key(summary.Epoch), data)
	})
}

func (v *checkpointView) GetEpochSummary(epoch uint64) (*primitives.EpochSummary, error) {
	db := v.db
	var sum primitives.EpochSummary
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(epochSummaryBucket).Get(u64key(epoch))
		if data == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(data, &sum)
	})
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

type l1View Store

func (v *l1View) PutManifest(m primitives.L1BlockManifest) error {
	db := v.db
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(l1ManifestBucket).Put(u64key(m.Height), data); err != nil {
			return err
		}
		return tx.Bucket(l1ByBlkidBucket).Put(m.Blkid[:], u64key(m.Height))
	})
}

func (v *l1View) GetManifest(height uint64) (*primitives.L1BlockManifest, error) {
	db := v.db
	var m primitives.L1BlockManifest
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(l1ManifestBucket).Get(u64key(height))
		if data == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(data, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (v *l1View) GetManifestByBlkid(blkid primitives.L1BlockId) (*primitives.L1BlockManifest, error) {
	db := v.db
	var height uint64
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(l1ByBlkidBucket).Get(blkid[:])
		if data == nil {
			return storage.ErrNotFound
		}
		height = parseU64(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v.GetManifest(height)
}

type l2View Store

func (v *l2View) cacheKey(blkid primitives.L2BlockId) string {
	return "bundle:" + blkid.String()
}

func (v *l2View) PutBlock(blkid primitives.L2BlockId, bundle primitives.L2BlockBundle) error {
	db := v.db
	data, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		existing := tx.Bucket(l2BundleBucket).Get(blkid[:])
		if existing == nil {
			slot := bundle.Header.Header.Slot
			b := tx.Bucket(l2AtHeightBucket)
			var ids [][32]byte
			if raw := b.Get(u64key(slot)); raw != nil {
				if err := json.Unmarshal(raw, &ids); err != nil {
					return err
				}
			}
			ids = append(ids, blkid)
			raw, err := json.Marshal(ids)
			if err != nil {
				return err
			}
			if err := b.Put(u64key(slot), raw); err != nil {
				return err
			}
			if err := tx.Bucket(l2StatusBucket).Put(blkid[:], []byte{byte(storage.StatusUnchecked)}); err != nil {
				return err
			}
		}
		return tx.Bucket(l2BundleBucket).Put(blkid[:], data)
	})
	if err == nil {
		cache := (*Store)(v).blockCache
		cache.Set(v.cacheKey(blkid), bundle, int64(len(data)))
	}
	return err
}

func (v *l2View) GetBlock(blkid primitives.L2BlockId) (*primitives.L2BlockBundle, error) {
	if cached, ok := (*Store)(v).blockCache.Get(v.cacheKey(blkid)); ok {
		b := cached.(primitives.L2BlockBundle)
		return &b, nil
	}
	db := v.db
	var b primitives.L2BlockBundle
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(l2BundleBucket).Get(blkid[:])
		if data == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(data, &b)
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (v *l2View) GetBlocksAtHeight(slot uint64) ([]primitives.L2BlockId, error) {
	db := v.db
	var ids [][32]byte
	err := db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(l2AtHeightBucket).Get(u64key(slot))
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &ids)
	})
	if err != nil {
		return nil, err
	}
	out := make([]primitives.L2BlockId, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out, nil
}

func (v *l2View) SetStatus(blkid primitives.L2BlockId, status storage.BlockStatus) error {
	db := v.db
	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(l2StatusBucket).Put(blkid[:], []byte{byte(status)})
	})
}

func (v *l2View) GetStatus(blkid primitives.L2BlockId) (storage.BlockStatus, error) {
	db := v.db
	var status storage.BlockStatus
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(l2StatusBucket).Get(blkid[:])
		if data == nil {
			return storage.ErrNotFound
		}
		status = storage.BlockStatus(data[0])
		return nil
	})
	return status, err
}
