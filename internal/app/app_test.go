package app

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/fundraise-backend/internal/config"
	"github.com/unclebandit/fundraise-backend/internal/model"
	"github.com/unclebandit/fundraise-backend/internal/oracle"
	"github.com/unclebandit/fundraise-backend/internal/service"
)

func TestNewInMemoryNotifiesThroughWorker(t *testing.T) {
	t.Setenv("COMMISSION_ADMIN", "0x00000000000000000000000000000000000ad310")
	cfg, err := config.Load("")
	require.NoError(t, err)

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, a.DB)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Executor.Run(ctx)
	}()

	owner := common.HexToAddress("0x0000000000000000000000000000000000000a01")
	id, err := a.Service.CreateCampaign(context.Background(), owner, service.CreateCampaignRequest{
		Title:     "Library books",
		TargetUSD: decimal.NewFromInt(4000),
		Deadline:  time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = a.Service.DonateToCampaign(context.Background(), owner, id, model.Ether(1))
	require.NoError(t, err)

	cancel()
	<-done
	a.Close()

	// created, commission, donation, remaining
	assert.Equal(t, 4, a.notifier.Sent)
	assert.Zero(t, a.notifier.Failed)
}

func TestNewOracleFollowsConfig(t *testing.T) {
	t.Setenv("COMMISSION_ADMIN", "0x00000000000000000000000000000000000ad310")
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.IsType(t, &oracle.FixedPriceOracle{}, newOracle(cfg))

	cfg.Oracle.Kind = "feed"
	cfg.Oracle.FeedURL = "http://prices.local/"
	assert.IsType(t, &oracle.FeedOracle{}, newOracle(cfg))
}
