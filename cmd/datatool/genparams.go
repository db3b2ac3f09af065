package main

import (
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/urfave/cli/v2"

	"github.com/btcrollup/node/params"
)

// blacklistedKeys are example/tutorial keys that must never end up in a
// genparams invocation for a real deployment — a direct copy-paste from
// documentation is the most common way a network gets launched with a
// publicly known sequencer key.
var blacklistedKeys = map[string]bool{
	"xprv9s21ZrQH143K3GJpoapnV8SFfukcVBSfeCficPSGfubmSFDxo1kuHnLisriDvSnRRuL2Qrg5ggqHKNVpxR86QEC8w35uxmGoggxtQTPvfUu": true,
}

var genParamsCmd = &cli.Command{
	Name:  "genparams",
	Usage: "emit a RollupParams JSON document for a new deployment",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "name", Value: "strata-devnet"},
		&cli.StringFlag{Name: "seqkey", Usage: "sequencer public key, base58"},
		&cli.StringSliceFlag{Name: "opkey", Usage: "operator public key, base58 (repeatable)"},
		&cli.StringFlag{Name: "opkeys", Usage: "path to a file of newline-separated operator pubkeys"},
		&cli.StringFlag{Name: "deposit-sats", Value: "10M", Usage: "deposit amount, accepts nK/nM/nG/nT suffixes"},
		&cli.Uint64Flag{Name: "genesis-trigger-height", Value: 100},
		&cli.Uint64Flag{Name: "block-time", Value: 1, Usage: "seconds"},
		&cli.Uint64Flag{Name: "epoch-slots", Value: 64},
		&cli.Uint64Flag{Name: "proof-timeout", Value: 0, Usage: "milliseconds; 0 means Strict mode"},
		&cli.StringFlag{Name: "rollup-vk", Usage: "verifying key, hex"},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}},
		&cli.StringFlag{Name: "b", Value: "regtest", Usage: "signet|regtest"},
	},
	Action: func(c *cli.Context) error {
		network := c.String("b")
		if network != "signet" && network != "regtest" {
			return fmt.Errorf("genparams: -b must be signet or regtest, got %q", network)
		}

		depositSats, err := parseSatsAmount(c.String("deposit-sats"))
		if err != nil {
			return fmt.Errorf("genparams: --deposit-sats: %w", err)
		}

		credRule := params.CredRule{Kind: params.CredUnchecked}
		if seqkey := c.String("seqkey"); seqkey != "" {
			if blacklistedKeys[seqkey] {
				return fmt.Errorf("genparams: --seqkey is a published example key, refusing to generate params with it")
			}
			pub, _, err := base58.CheckDecode(seqkey)
			if err != nil {
				return fmt.Errorf("genparams: decoding --seqkey: %w", err)
			}
			credRule = params.CredRule{Kind: params.CredSchnorrKey, Pubkey: pub}
		}

		operators, err := collectOperators(c)
		if err != nil {
			return fmt.Errorf("genparams: %w", err)
		}

		var vk []byte
		if s := c.String("rollup-vk"); s != "" {
			vk, err = hex.DecodeString(s)
			if err != nil {
				return fmt.Errorf("genparams: decoding --rollup-vk: %w", err)
			}
		}

		proofMode := params.ProofPublishMode{Kind: params.ProofStrict}
		if t := c.Uint64("proof-timeout"); t > 0 {
			proofMode = params.ProofPublishMode{Kind: params.ProofTimeout, TimeoutMillis: t}
		}

		p := &params.RollupParams{
			RollupName:           c.String("name"),
			BlockTimeMs:          c.Uint64("block-time") * 1000,
			EpochSlots:           c.Uint64("epoch-slots"),
			GenesisL1Height:      c.Uint64("genesis-trigger-height"),
			HorizonL1Height:      c.Uint64("genesis-trigger-height"),
			L1ReorgSafeDepth:     6,
			MaxDepositsInBlock:   8,
			CredRule:             credRule,
			RollupVk:             vk,
			ProofPublishMode:     proofMode,
			Operators:            operators,
			DepositSats:          depositSats,
			ClientStateRetention: 2016,
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("genparams: %w", err)
		}

		out, err := p.MarshalIndented()
		if err != nil {
			return err
		}
		if path := c.String("output"); path != "" {
			if err := ioutil.WriteFile(path, out, 0644); err != nil {
				return fmt.Errorf("genparams: writing %s: %w", path, err)
			}
			fmt.Printf("wrote params to %s\n", path)
			return nil
		}
		fmt.Println(string(out))
		return nil
	},
}

func collectOperators(c *cli.Context) ([]params.OperatorEntry, error) {
	var keys []string
	keys = append(keys, c.StringSlice("opkey")...)
	if path := c.String("opkeys"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading --opkeys file: %w", err)
		}
		for _, line := range strings.Split(string(b), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				keys = append(keys, line)
			}
		}
	}
	ops := make([]params.OperatorEntry, 0, len(keys))
	for i, k := range keys {
		if blacklistedKeys[k] {
			return nil, fmt.Errorf("operator key %d is a published example key", i)
		}
		pub, _, err := base58.CheckDecode(k)
		if err != nil {
			return nil, fmt.Errorf("decoding operator key %d: %w", i, err)
		}
		ops = append(ops, params.OperatorEntry{Index: uint32(i), Pubkey: pub})
	}
	return ops, nil
}

var satsSuffixRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)([KMGT]?)$`)

// parseSatsAmount parses values like "10M" (10,000,000) or a bare
// integer number of satoshis.
func parseSatsAmount(s string) (uint64, error) {
	m := satsSuffixRe.FindStringSubmatch(strings.ToUpper(s))
	if m == nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	base, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, err
	}
	mult := map[string]float64{"": 1, "K": 1e3, "M": 1e6, "G": 1e9, "T": 1e12}[m[2]]
	return uint64(base * mult), nil
}
