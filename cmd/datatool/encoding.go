package main

import "github.com/btcsuite/btcutil/base58"

// Version bytes for the base58check-encoded key material this tool
// prints, distinct from Bitcoin's own address/WIF version bytes so a
// rollup key is never mistaken for a Bitcoin address.
const (
	versionPub  = 0x7a
	versionPriv = 0x7b
)

func b58PubKey(raw []byte) string {
	return base58.CheckEncode(raw, versionPub)
}

func b58PrivKey(raw []byte) string {
	return base58.CheckEncode(raw, versionPriv)
}
