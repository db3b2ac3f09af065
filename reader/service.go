package reader

import (
	"bytes"
	"context"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"

	"github.com/btcrollup/node/params"
	"github.com/btcrollup/node/primitives"
)

// ErrNoPivot is returned when a reorg search exhausts the reader's
// sliding window without finding a common ancestor with the new chain.
var ErrNoPivot = errors.New("reader: no pivot found within window")

// L1Client is the narrow slice of Bitcoin RPC the reader needs. The
// concrete client (connection pooling, auth, retry policy) is out of
// scope per spec.md 1; this interface is the only contract the reader
// core depends on.
type L1Client interface {
	GetBestBlockHeight(ctx context.Context) (uint64, error)
	GetBlockHash(ctx context.Context, height uint64) (primitives.L1BlockId, error)
	GetBlock(ctx context.Context, blkid primitives.L1BlockId) (*wire.MsgBlock, error)
}

// Sink receives the events and manifests the reader produces. The only
// implementation in this repository is the in-memory fake in the tests.
type Sink interface {
	PutManifest(m primitives.L1BlockManifest) error
	EmitEvent(ctx context.Context, ev primitives.SyncEvent) error
}

// windowEntry is one recently-seen (height, blkid) pair, used to detect
// reorgs without re-fetching from the client.
type windowEntry struct {
	height uint64
	blkid  primitives.L1BlockId
}

// Service is the L1 reader task: it polls client at PollInterval,
// fast-paths when the tip hasn't moved, detects reorgs by walking its
// sliding window back to find a pivot, and otherwise fetches and
// processes missing heights forward.
type Service struct {
	client L1Client
	sink   Sink
	params *params.RollupParams

	PollInterval time.Duration
	WindowSize   int

	window    []windowEntry
	curEpoch  uint64
}

// NewService constructs a reader whose first poll scans forward from
// p.HorizonL1Height.
func NewService(client L1Client, sink Sink, p *params.RollupParams) *Service {
	return &Service{
		client:       client,
		sink:         sink,
		params:       p,
		PollInterval: 10 * time.Second,
		WindowSize:   2 * int(p.L1ReorgSafeDepth+1),
	}
}

// Run is the reader's blocking poll loop; it returns when ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	log.Info("l1 reader starting")
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	if err := s.pollOnce(ctx); err != nil {
		log.WithError(err).Error("initial poll failed")
	}
	for {
		select {
		case <-ctx.Done():
			log.Info("l1 reader shutting down")
			return nil
		case <-ticker.C:
			if err := s.pollOnce(ctx); err != nil {
				log.WithError(err).Warn("poll failed, will retry next interval")
			}
		}
	}
}

// pollOnce runs one poll cycle: fast-path if the tip is unchanged,
// otherwise detect-and-handle a reorg or advance forward emitting
// L1Block events for each newly observed height.
func (s *Service) pollOnce(ctx context.Context) error {
	tipHeight, err := s.client.GetBestBlockHeight(ctx)
	if err != nil {
		return errors.Wrap(err, "reader: get best height")
	}

	if len(s.window) > 0 && s.window[len(s.window)-1].height == tipHeight {
		tipHash, err := s.client.GetBlockHash(ctx, tipHeight)
		if err != nil {
			return err
		}
		if tipHash == s.window[len(s.window)-1].blkid {
			return nil // fast path: tip unchanged
		}
	}

	if len(s.window) > 0 {
		pivot, err := s.findPivot(ctx)
		if err != nil {
			return err
		}
		if pivot.height < s.window[len(s.window)-1].height {
			s.truncateWindowTo(pivot.height)
			if err := s.sink.EmitEvent(ctx, primitives.NewL1RevertEvent(
				primitives.L1BlockCommitment{Height: pivot.height, Blkid: pivot.blkid})); err != nil {
				return err
			}
		}
	}

	start := s.params.HorizonL1Height
	if len(s.window) > 0 {
		start = s.window[len(s.window)-1].height + 1
	}

	for h := start; h <= tipHeight; h++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		blkid, err := s.client.GetBlockHash(ctx, h)
		if err != nil {
			return errors.Wrapf(err, "reader: get block hash at height %d", h)
		}
		block, err := s.client.GetBlock(ctx, blkid)
		if err != nil {
			return errors.Wrapf(err, "reader: get block at height %d", h)
		}
		manifest := s.buildManifest(h, blkid, block)
		if err := s.sink.PutManifest(manifest); err != nil {
			return err
		}
		if err := s.sink.EmitEvent(ctx, primitives.NewL1BlockEvent(primitives.L1BlockCommitment{Height: h, Blkid: blkid})); err != nil {
			return err
		}
		s.pushWindow(windowEntry{height: h, blkid: blkid})
	}
	return nil
}

// findPivot walks the reader's sliding window back from its tip,
// re-checking each height's hash against the client until one matches,
// i.e. the most recent shared ancestor.
func (s *Service) findPivot(ctx context.Context) (windowEntry, error) {
	for i := len(s.window) - 1; i >= 0; i-- {
		entry := s.window[i]
		hash, err := s.client.GetBlockHash(ctx, entry.height)
		if err != nil {
			return windowEntry{}, err
		}
		if hash == entry.blkid {
			return entry, nil
		}
	}
	return windowEntry{}, ErrNoPivot
}

func (s *Service) truncateWindowTo(height uint64) {
	i := 0
	for ; i < len(s.window); i++ {
		if s.window[i].height > height {
			break
		}
	}
	s.window = s.window[:i]
}

func (s *Service) pushWindow(e windowEntry) {
	s.window = append(s.window, e)
	if len(s.window) > s.WindowSize {
		s.window = s.window[len(s.window)-s.WindowSize:]
	}
}

// buildManifest extracts the manifest for one L1 block and tags it with
// the reader's current epoch view. A Checkpoint operation found in this
// block declares its own batch epoch finished, so it advances the
// reader's epoch counter for every subsequent block (per spec.md 4.4.1's
// epoch-contiguity rule: the next checkpoint is expected at epoch+1).
func (s *Service) buildManifest(height uint64, blkid primitives.L1BlockId, block *wire.MsgBlock) primitives.L1BlockManifest {
	var headerBuf bytes.Buffer
	_ = block.Header.Serialize(&headerBuf)

	epoch := s.curEpoch
	txs := make([]primitives.L1Tx, 0, len(block.Transactions))
	for i, tx := range block.Transactions {
		ops := ExtractProtocolOps(tx, s.params)
		if len(ops) == 0 {
			continue
		}
		var txBuf bytes.Buffer
		_ = tx.Serialize(&txBuf)
		txs = append(txs, primitives.L1Tx{
			Proof:       primitives.TxProof{Position: uint32(i)},
			RawTx:       txBuf.Bytes(),
			ProtocolOps: ops,
		})
		for _, op := range ops {
			if op.Kind == primitives.OpCheckpoint && op.Checkpoint != nil {
				if next := op.Checkpoint.BatchInfo.Epoch + 1; next > s.curEpoch {
					s.curEpoch = next
				}
			}
		}
	}

	return primitives.L1BlockManifest{
		HeaderBytes: headerBuf.Bytes(),
		Height:      height,
		Blkid:       blkid,
		Txs:         txs,
		Epoch:       epoch,
	}
}
