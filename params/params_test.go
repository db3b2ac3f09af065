package params

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() *RollupParams {
	return &RollupParams{
		RollupName:      "strata-devnet",
		EpochSlots:      64,
		GenesisL1Height: 100,
		HorizonL1Height: 100,
	}
}

func TestValidateAcceptsWellFormedParams(t *testing.T) {
	assert.NoError(t, validParams().Validate())
}

func TestValidateRejectsEmptyName(t *testing.T) {
	p := validParams()
	p.RollupName = ""
	assert.Error(t, p.Validate())
}

func TestValidateRejectsHorizonAfterGenesis(t *testing.T) {
	p := validParams()
	p.HorizonL1Height = p.GenesisL1Height + 1
	assert.Error(t, p.Validate())
}

func TestValidateRejectsZeroEpochSlots(t *testing.T) {
	p := validParams()
	p.EpochSlots = 0
	assert.Error(t, p.Validate())
}

func TestValidateRejectsShortSchnorrPubkey(t *testing.T) {
	p := validParams()
	p.CredRule = CredRule{Kind: CredSchnorrKey, Pubkey: []byte{1, 2, 3}}
	assert.Error(t, p.Validate())
}

func TestValidateAcceptsFullLengthSchnorrPubkey(t *testing.T) {
	p := validParams()
	p.CredRule = CredRule{Kind: CredSchnorrKey, Pubkey: make([]byte, 32)}
	assert.NoError(t, p.Validate())
}

func TestMarshalIndentedRoundTrips(t *testing.T) {
	p := validParams()
	p.Operators = []OperatorEntry{{Index: 0, Pubkey: []byte{0xAB, 0xCD}}}
	out, err := p.MarshalIndented()
	require.NoError(t, err)
	assert.Contains(t, string(out), "strata-devnet")
	assert.Contains(t, string(out), "\"epoch_slots\": 64")

	var back RollupParams
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, *p, back)
}
