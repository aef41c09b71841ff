package ingest_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rikongha/CoinTaxman/internal/event"
	"github.com/rikongha/CoinTaxman/internal/ingest"
)

const header = "timestamp,wallet_id,asset,quantity,counter_asset,counter_amount,value_eur,direction,kind,link_key,fee_amount,fee_asset,fee_value_eur,consideration,tx_ref\n"

func TestReadCSV_DecodesEvents(t *testing.T) {
	input := header +
		"2023-01-01T10:00:00Z,kraken,btc,0.5,EUR,10000,10000,in,buy,,0.001,BTC,20,,tx-1\n" +
		"2024-04-01T00:00:00+02:00,lido,ETH,0.1,,,200,in,staking_reward,,,,,,tx-2\n"

	events, rowErrs, err := ingest.ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, events, 2)

	buy := events[0]
	assert.Equal(t, "kraken", buy.WalletID)
	assert.Equal(t, "BTC", buy.Asset, "assets are uppercased")
	assert.Equal(t, event.KindBuy, buy.Kind)
	assert.True(t, buy.Quantity.String() == "0.5")
	require.NotNil(t, buy.Fee)
	assert.True(t, buy.Fee.ValueEUR.String() == "20")
	assert.NotEqual(t, buy.ID, events[1].ID, "every event gets its own ID")

	reward := events[1]
	assert.Equal(t, event.KindStakingReward, reward.Kind)
	assert.Equal(t, time.UTC, reward.Timestamp.Location(), "timestamps normalized to UTC")
	assert.Nil(t, reward.Fee)
	assert.True(t, reward.CounterAmount.IsZero())
}

func TestReadCSV_RejectsBadHeader(t *testing.T) {
	t.Run("wrong column name", func(t *testing.T) {
		input := strings.Replace(header, "wallet_id", "wallet", 1) +
			"2023-01-01T10:00:00Z,kraken,BTC,1,,,10000,in,buy,,,,,,\n"
		_, _, err := ingest.ReadCSV(strings.NewReader(input))
		assert.Error(t, err)
	})

	t.Run("wrong column count", func(t *testing.T) {
		_, _, err := ingest.ReadCSV(strings.NewReader("timestamp,asset\n"))
		assert.Error(t, err)
	})
}

func TestReadCSV_CollectsRowErrors(t *testing.T) {
	input := header +
		"2023-01-01T10:00:00Z,kraken,BTC,0.5,,,10000,in,buy,,,,,,tx-1\n" +
		"not-a-timestamp,kraken,BTC,1,,,10000,in,buy,,,,,,tx-2\n" +
		"2023-01-03T10:00:00Z,kraken,BTC,abc,,,10000,in,buy,,,,,,tx-3\n" +
		"2023-01-04T10:00:00Z,kraken,BTC,1,,,10000,in,nft_mint,,,,,,tx-4\n" +
		"2023-01-05T10:00:00Z,kraken,BTC,1,,,10000,sideways,buy,,,,,,tx-5\n"

	events, rowErrs, err := ingest.ReadCSV(strings.NewReader(input))
	require.NoError(t, err, "row problems never abort the batch")

	require.Len(t, events, 1)
	require.Len(t, rowErrs, 4)

	assert.Equal(t, 3, rowErrs[0].Row)
	assert.Contains(t, rowErrs[0].Error(), "timestamp")
	assert.Contains(t, rowErrs[1].Error(), "quantity")
	assert.Contains(t, rowErrs[2].Error(), "unknown kind")
	assert.Contains(t, rowErrs[3].Error(), "direction")
}

func TestReadCSV_EmptyBatch(t *testing.T) {
	events, rowErrs, err := ingest.ReadCSV(strings.NewReader(header))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Empty(t, rowErrs)
}
