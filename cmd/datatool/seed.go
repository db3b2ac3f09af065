package main

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil/hdkeychain"
	"github.com/tyler-smith/go-bip39"
	"github.com/urfave/cli/v2"
)

const (
	envSeqKey = "STRATA_SEQ_KEY"
	envOpKey  = "STRATA_OP_KEY"
)

var genSeedCmd = &cli.Command{
	Name:      "genseed",
	Usage:     "write a fresh extended private key seed to a file",
	ArgsUsage: "<path>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file at path"},
	},
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return fmt.Errorf("genseed: missing <path> argument")
		}
		if !c.Bool("force") {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("genseed: %s already exists; pass --force to overwrite", path)
			}
		}
		entropy, err := bip39.NewEntropy(256)
		if err != nil {
			return fmt.Errorf("genseed: generating entropy: %w", err)
		}
		mnemonic, err := bip39.NewMnemonic(entropy)
		if err != nil {
			return fmt.Errorf("genseed: deriving mnemonic: %w", err)
		}
		seed := bip39.NewSeed(mnemonic, "")
		master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
		if err != nil {
			return fmt.Errorf("genseed: deriving master key: %w", err)
		}
		if err := ioutil.WriteFile(path, []byte(master.String()+"\n"), 0600); err != nil {
			return fmt.Errorf("genseed: writing %s: %w", path, err)
		}
		fmt.Printf("wrote new seed to %s\n", path)
		return nil
	},
}

// loadMasterKey resolves a master extended private key from either
// --key-file or --key-from-env (STRATA_SEQ_KEY / STRATA_OP_KEY
// depending on caller), matching spec.md 6's flag pair.
func loadMasterKey(c *cli.Context, envVar string) (*hdkeychain.ExtendedKey, error) {
	var raw string
	if path := c.String("key-file"); path != "" {
		b, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading key file: %w", err)
		}
		raw = firstLine(b)
	} else if c.Bool("key-from-env") {
		raw = os.Getenv(envVar)
		if raw == "" {
			return nil, fmt.Errorf("%s is not set", envVar)
		}
	} else {
		return nil, fmt.Errorf("one of --key-file or --key-from-env is required")
	}
	key, err := hdkeychain.NewKeyFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing extended key: %w", err)
	}
	return key, nil
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' || c == '\r' {
			return string(b[:i])
		}
	}
	return string(b)
}

// Hardened derivation path for the sequencer signing key, kept out of
// the shared operator subtree so sequencer and operator compromise are
// independent.
const seqKeyChildIndex = hdkeychain.HardenedKeyStart + 0

var genSeqPubkeyCmd = &cli.Command{
	Name:  "genseqpubkey",
	Usage: "derive the sequencer's public key from a master seed",
	Flags: keyInputFlags(),
	Action: func(c *cli.Context) error {
		master, err := loadMasterKey(c, envSeqKey)
		if err != nil {
			return fmt.Errorf("genseqpubkey: %w", err)
		}
		child, err := master.Derive(seqKeyChildIndex)
		if err != nil {
			return fmt.Errorf("genseqpubkey: deriving child key: %w", err)
		}
		pub, err := child.ECPubKey()
		if err != nil {
			return fmt.Errorf("genseqpubkey: %w", err)
		}
		fmt.Println(b58PubKey(pub.SerializeCompressed()))
		return nil
	},
}

var genSeqPrivkeyCmd = &cli.Command{
	Name:  "genseqprivkey",
	Usage: "derive the sequencer's private key from a master seed",
	Flags: keyInputFlags(),
	Action: func(c *cli.Context) error {
		master, err := loadMasterKey(c, envSeqKey)
		if err != nil {
			return fmt.Errorf("genseqprivkey: %w", err)
		}
		child, err := master.Derive(seqKeyChildIndex)
		if err != nil {
			return fmt.Errorf("genseqprivkey: deriving child key: %w", err)
		}
		priv, err := child.ECPrivKey()
		if err != nil {
			return fmt.Errorf("genseqprivkey: %w", err)
		}
		fmt.Println(b58PrivKey(priv.Serialize()))
		return nil
	},
}

// Hardened derivation path for an operator's extended public key subtree.
const opKeyChildIndex = hdkeychain.HardenedKeyStart + 1

var genOpXpubCmd = &cli.Command{
	Name:  "genopxpub",
	Usage: "derive an operator extended public key from a master seed",
	Flags: keyInputFlags(),
	Action: func(c *cli.Context) error {
		master, err := loadMasterKey(c, envOpKey)
		if err != nil {
			return fmt.Errorf("genopxpub: %w", err)
		}
		child, err := master.Derive(opKeyChildIndex)
		if err != nil {
			return fmt.Errorf("genopxpub: deriving child key: %w", err)
		}
		xpub, err := child.Neuter()
		if err != nil {
			return fmt.Errorf("genopxpub: neutering to public: %w", err)
		}
		fmt.Println(xpub.String())
		return nil
	},
}

func keyInputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "key-file", Usage: "path to a file containing a base58-check extended private key"},
		&cli.BoolFlag{Name: "key-from-env", Usage: "read the extended private key from the environment instead"},
	}
}
