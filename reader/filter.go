// Package reader implements the L1 reader: it polls an L1Client for new
// Bitcoin blocks, detects reorgs by walking a sliding window of recently
// seen block hashes, extracts rollup protocol operations from witness
// data, and emits L1Block/L1Revert sync events for the CSM to consume,
// per SPEC_FULL.md 4.11/4.12.
package reader

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"

	"github.com/btcrollup/node/params"
	"github.com/btcrollup/node/primitives"
)

var log = logrus.WithField("prefix", "reader")

// tagCheckpoint etc. are the single-byte operation tags framed after the
// rollup_name prefix in a witness push, mirroring tx-parser/filter.rs's
// tag-framed encoding.
const (
	tagCheckpoint    byte = 0x01
	tagDepositReq    byte = 0x02
	tagDeposit       byte = 0x03
	tagDaBlob        byte = 0x04
)

// ExtractProtocolOps scans every input's witness stack of tx for pushes
// tag-framed as `rollup_name || tag || payload`, parsing each into a
// ProtocolOperation. Non-matching pushes (ordinary signatures, unrelated
// envelopes) are silently skipped — the rollup_name prefix is the only
// filter.
func ExtractProtocolOps(tx *wire.MsgTx, p *params.RollupParams) []primitives.ProtocolOperation {
	prefix := []byte(p.RollupName)
	var ops []primitives.ProtocolOperation
	for _, in := range tx.TxIn {
		for _, push := range in.Witness {
			if len(push) < len(prefix)+1 || !bytes.HasPrefix(push, prefix) {
				continue
			}
			rest := push[len(prefix):]
			tag, payload := rest[0], rest[1:]
			op, ok := parseOp(tag, payload)
			if ok {
				ops = append(ops, op)
			}
		}
	}
	return ops
}

func parseOp(tag byte, payload []byte) (primitives.ProtocolOperation, bool) {
	switch tag {
	case tagCheckpoint:
		ckpt, err := decodeCheckpoint(payload)
		if err != nil {
			log.WithError(err).Warn("dropping malformed checkpoint envelope")
			return primitives.ProtocolOperation{}, false
		}
		return primitives.ProtocolOperation{Kind: primitives.OpCheckpoint, Checkpoint: ckpt}, true

	case tagDepositReq:
		req, err := decodeDepositRequest(payload)
		if err != nil {
			log.WithError(err).Warn("dropping malformed deposit-request envelope")
			return primitives.ProtocolOperation{}, false
		}
		return primitives.ProtocolOperation{Kind: primitives.OpDepositRequest, DepositReq: req}, true

	case tagDeposit:
		dep, err := decodeDeposit(payload)
		if err != nil {
			log.WithError(err).Warn("dropping malformed deposit envelope")
			return primitives.ProtocolOperation{}, false
		}
		return primitives.ProtocolOperation{Kind: primitives.OpDeposit, Deposit: dep}, true

	case tagDaBlob:
		return primitives.ProtocolOperation{Kind: primitives.OpDaBlob, DaBlob: append([]byte(nil), payload...)}, true

	default:
		return primitives.ProtocolOperation{}, false
	}
}

// decodeCheckpoint parses the fixed-layout checkpoint envelope: integers
// are 8-byte little-endian, and an 8-byte little-endian length prefixes
// each variable-length field, matching the rest of this
// module's "length-prefixed, fixed field order" wire convention
// (SPEC_FULL.md 3).
func decodeCheckpoint(b []byte) (*primitives.SignedCheckpoint, error) {
	r := bytes.NewReader(b)
	epoch, err := readU64(r)
	if err != nil {
		return nil, err
	}
	l1Start, err := readCommitmentL1(r)
	if err != nil {
		return nil, err
	}
	l1End, err := readCommitmentL1(r)
	if err != nil {
		return nil, err
	}
	l2Start, err := readCommitmentL2(r)
	if err != nil {
		return nil, err
	}
	l2End, err := readCommitmentL2(r)
	if err != nil {
		return nil, err
	}
	var prevRoot, newRoot [32]byte
	if _, err := readFull(r, prevRoot[:]); err != nil {
		return nil, err
	}
	if _, err := readFull(r, newRoot[:]); err != nil {
		return nil, err
	}
	chainstateBytes, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	proofBytes, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	sig, err := readBytes(r)
	if err != nil {
		return nil, err
	}

	return &primitives.SignedCheckpoint{
		BatchInfo: primitives.BatchInfo{
			Epoch:   epoch,
			L1Range: primitives.L1Range{Start: l1Start, End: l1End},
			L2Range: primitives.L2Range{Start: l2Start, End: l2End},
		},
		BatchTransition: primitives.BatchTransition{PrevStateRoot: prevRoot, NewStateRoot: newRoot},
		Sidecar:         primitives.Sidecar{ChainstateBytes: chainstateBytes},
		ProofBytes:      proofBytes,
		Signature:       sig,
	}, nil
}

func decodeDepositRequest(b []byte) (*primitives.DepositRequest, error) {
	r := bytes.NewReader(b)
	idx, err := readU64(r)
	if err != nil {
		return nil, err
	}
	amt, err := readU64(r)
	if err != nil {
		return nil, err
	}
	dest, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	var outpoint [36]byte
	if _, err := readFull(r, outpoint[:]); err != nil {
		return nil, err
	}
	return &primitives.DepositRequest{Index: idx, Amount: amt, DestAddr: dest, DepositOutpoint: outpoint}, nil
}

func decodeDeposit(b []byte) (*primitives.Deposit, error) {
	r := bytes.NewReader(b)
	idx, err := readU64(r)
	if err != nil {
		return nil, err
	}
	amt, err := readU64(r)
	if err != nil {
		return nil, err
	}
	dest, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	return &primitives.Deposit{Index: idx, Amount: amt, DestAddr: dest}, nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readU64(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := readFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	return io.ReadFull(r, buf)
}

func readCommitmentL1(r *bytes.Reader) (primitives.L1BlockCommitment, error) {
	h, err := readU64(r)
	if err != nil {
		return primitives.L1BlockCommitment{}, err
	}
	var id primitives.L1BlockId
	if _, err := readFull(r, id[:]); err != nil {
		return primitives.L1BlockCommitment{}, err
	}
	return primitives.L1BlockCommitment{Height: h, Blkid: id}, nil
}

func readCommitmentL2(r *bytes.Reader) (primitives.L2BlockCommitment, error) {
	s, err := readU64(r)
	if err != nil {
		return primitives.L2BlockCommitment{}, err
	}
	var id primitives.L2BlockId
	if _, err := readFull(r, id[:]); err != nil {
		return primitives.L2BlockCommitment{}, err
	}
	return primitives.L2BlockCommitment{Slot: s, Blkid: id}, nil
}
