package fcm

import (
	"context"

	"github.com/btcrollup/node/primitives"
)

// Service wraps a Manager in the single-threaded task-loop idiom used
// throughout this node (SPEC_FULL.md 5 "FCM Task"): it consumes
// NewBlock messages and ClientState updates off channels. It does not
// itself wait for genesis: the Manager it wraps is built from the genesis
// block, so a Service can only be created once genesis is known.
type Service struct {
	mgr *Manager

	newBlockCh    chan primitives.L2BlockId
	clientStateCh chan *primitives.ClientState
}

// NewService wraps mgr in a Service. mgr must already be constructed
// with NewManager once genesis is known — the FCM task only starts
// running once the CSM has emitted L2Genesis.
func NewService(mgr *Manager) *Service {
	return &Service{
		mgr:           mgr,
		newBlockCh:    make(chan primitives.L2BlockId, 256),
		clientStateCh: make(chan *primitives.ClientState, 16),
	}
}

// SubmitNewBlock enqueues a NewBlock message. Safe to call before Run
// starts; the channel buffers up to 256 pending blocks.
func (s *Service) SubmitNewBlock(blkid primitives.L2BlockId) {
	s.newBlockCh <- blkid
}

// SubmitClientState enqueues a ClientState update from the CSM.
func (s *Service) SubmitClientState(cs *primitives.ClientState) {
	select {
	case s.clientStateCh <- cs:
	default:
		// A watch-channel semantics: drop the oldest pending update in
		// favor of the newest, matching a Go broadcast/watch channel
		// rather than a queue.
		select {
		case <-s.clientStateCh:
		default:
		}
		s.clientStateCh <- cs
	}
}

// Run is the FCM task's main loop. It returns nil when ctx is cancelled;
// an error from handling a single message is logged and the loop goes on.
func (s *Service) Run(ctx context.Context) error {
	log.Info("fcm service starting")
	for {
		select {
		case <-ctx.Done():
			log.Info("fcm service shutting down")
			return nil
		case blkid := <-s.newBlockCh:
			if err := s.mgr.ProcessNewBlock(ctx, blkid); err != nil {
				log.WithField("blkid", blkid.String()).WithError(err).Error("new block processing failed")
			}
		case cs := <-s.clientStateCh:
			if err := s.mgr.OnClientState(ctx, cs); err != nil {
				log.WithError(err).Warn("client state update rejected")
			}
		}
	}
}
