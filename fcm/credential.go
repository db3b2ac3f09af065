package fcm

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/btcrollup/node/params"
	"github.com/btcrollup/node/primitives"
)

// verifyCredential checks a header's signature against the rollup's
// active credential rule. The genesis block (slot 0) carries no
// signature to check.
func verifyCredential(p *params.RollupParams, signed primitives.SignedL2BlockHeader) error {
	if signed.Header.Slot == 0 {
		return nil
	}
	if p.CredRule.Kind == params.CredUnchecked {
		return nil
	}
	pk, err := schnorr.ParsePubKey(p.CredRule.Pubkey)
	if err != nil {
		return ErrBadCredential
	}
	sig, err := schnorr.ParseSignature(signed.Signature)
	if err != nil {
		return ErrBadCredential
	}
	digest := headerSigningHash(signed.Header)
	if !sig.Verify(digest[:], pk) {
		return ErrBadCredential
	}
	return nil
}

func headerSigningHash(h primitives.L2BlockHeader) [32]byte {
	blkid := h.Hash()
	hasher := sha256.New()
	_, _ = hasher.Write([]byte("strata/l2header-cred/v1"))
	_, _ = hasher.Write(blkid[:])
	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out
}
