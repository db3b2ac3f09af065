// Package primitives defines the core wire and in-memory data model shared
// by the client state machine and the fork choice manager: L1 block
// commitments and manifests, L2 block identifiers and bundles, chainstate,
// checkpoints, and the client-state tracking structures built on top of
// them.
package primitives
