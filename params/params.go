// Package params defines the rollup's network configuration: the fixed
// parameters every CSM/FCM instance in a given deployment must agree on,
// plus credential rules and proof-publication policy.
package params

import "encoding/json"

// CredRuleKind tags the variant carried by a CredRule.
type CredRuleKind int

const (
	// CredUnchecked accepts any block header signature unconditionally.
	// Only suitable for devnets.
	CredUnchecked CredRuleKind = iota
	// CredSchnorrKey requires a valid Schnorr signature from a fixed
	// sequencer public key.
	CredSchnorrKey
)

// CredRule is the block-credential validation policy in effect for a
// rollup deployment.
type CredRule struct {
	Kind   CredRuleKind
	Pubkey []byte `json:"pubkey,omitempty"`
}

// ProofPublishModeKind tags the variant carried by a ProofPublishMode.
type ProofPublishModeKind int

const (
	// ProofStrict requires every checkpoint to carry a verifying proof.
	ProofStrict ProofPublishModeKind = iota
	// ProofTimeout accepts a blank proof once TimeoutMillis have elapsed
	// since the checkpoint's L1 inclusion.
	ProofTimeout
)

// ProofPublishMode governs how long the checkpoint verifier will wait for
// a proof before accepting a checkpoint on trust.
type ProofPublishMode struct {
	Kind         ProofPublishModeKind
	TimeoutMillis uint64 `json:"timeout_millis,omitempty"`
}

// OperatorEntry is one registered bridge operator's public key material.
type OperatorEntry struct {
	Index  uint32 `json:"index"`
	Pubkey []byte `json:"pubkey"`
}

// RollupParams is the full set of network-wide constants a node needs to
// interpret the L1 chain and validate the L2 chain. It is a plain
// JSON-serializable struct emitted by `cmd/datatool genparams` and loaded
// verbatim by every other binary.
type RollupParams struct {
	RollupName string `json:"rollup_name"`

	BlockTimeMs uint64 `json:"block_time_ms"`
	EpochSlots  uint64 `json:"epoch_slots"`

	GenesisL1Height uint64 `json:"genesis_l1_height"`
	HorizonL1Height uint64 `json:"horizon_l1_height"`

	L1ReorgSafeDepth  uint64 `json:"l1_reorg_safe_depth"`
	MaxDepositsInBlock uint32 `json:"max_deposits_in_block"`

	CredRule CredRule `json:"cred_rule"`

	RollupVk         []byte           `json:"rollup_vk"`
	ProofPublishMode ProofPublishMode `json:"proof_publish_mode"`

	Operators    []OperatorEntry `json:"operators"`
	DepositSats  uint64          `json:"deposit_sats"`

	// ClientStateRetention bounds how many L1 heights of InternalState
	// the CSM keeps around.
	ClientStateRetention uint64 `json:"client_state_retention"`
}

// Validate checks internal consistency the CSM/FCM rely on without
// touching any external state.
func (p *RollupParams) Validate() error {
	if p.RollupName == "" {
		return errParam("rollup_name must not be empty")
	}
	if p.HorizonL1Height > p.GenesisL1Height {
		return errParam("horizon_l1_height must be <= genesis_l1_height")
	}
	if p.EpochSlots == 0 {
		return errParam("epoch_slots must be > 0")
	}
	if p.CredRule.Kind == CredSchnorrKey && len(p.CredRule.Pubkey) != 32 {
		return errParam("cred_rule schnorr pubkey must be 32 bytes")
	}
	return nil
}

type paramError string

func (e paramError) Error() string { return string(e) }

func errParam(msg string) error { return paramError("invalid rollup params: " + msg) }

// MarshalIndented renders p as pretty-printed JSON, matching the format
// emitted by `cmd/datatool genparams`.
func (p *RollupParams) MarshalIndented() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}
