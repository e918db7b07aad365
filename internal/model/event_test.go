package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeSurvivesTheWire(t *testing.T) {
	donator := common.HexToAddress("0x00000000000000000000000000000000000000d0")
	env := EventEnvelope{
		Seq:         4,
		TxSeq:       2,
		TxID:        "abc",
		Name:        EventDonationReceived,
		CommittedAt: time.Unix(1_800_000_000, 0).UTC(),
		Payload: DonationReceived{
			CampaignID:          3,
			Donator:             donator,
			NetAmount:           Ether(1),
			DonatorSharePercent: 66,
		},
	}
	body, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"net_amount":"1000000000000000000"`)

	var raw RawEnvelope
	require.NoError(t, json.Unmarshal(body, &raw))
	decoded, err := raw.Decode()
	require.NoError(t, err)
	got, ok := decoded.Payload.(DonationReceived)
	require.True(t, ok)
	assert.Equal(t, donator, got.Donator)
	assert.True(t, got.NetAmount.Eq(Ether(1)))
	assert.Equal(t, uint64(66), got.DonatorSharePercent)
}

func TestDecodeEventUnknownName(t *testing.T) {
	_, err := DecodeEvent("Bogus", []byte(`{}`))
	assert.Error(t, err)
}
