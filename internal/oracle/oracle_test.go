package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/fundraise-backend/internal/errors"
)

func TestConvertFloors(t *testing.T) {
	// 100 USD at 3 USD per coin is 33.333... coins
	v, err := Convert(decimal.NewFromInt(100), decimal.NewFromInt(3))
	require.NoError(t, err)
	assert.Equal(t, "33333333333333333333", v.Dec())

	v, err = Convert(decimal.RequireFromString("2500.5"), decimal.NewFromInt(2000))
	require.NoError(t, err)
	assert.Equal(t, "1250250000000000000", v.Dec())
}

func TestConvertRejectsBadPrice(t *testing.T) {
	_, err := Convert(decimal.NewFromInt(1), decimal.Zero)
	assert.ErrorIs(t, err, appErrors.ErrOracle)
}

func TestFixedPriceOracleHonorsContext(t *testing.T) {
	o := NewFixedPriceOracle(decimal.NewFromInt(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.ConvertUSDToNative(ctx, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, appErrors.ErrOracle)
}

func newFeed(t *testing.T, status int, body any) (*FeedOracle, time.Time) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/price", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	now := time.Unix(1_800_000_000, 0)
	o := NewFeedOracle(srv.URL+"/", "v1/price", time.Hour)
	o.now = func() time.Time { return now }
	return o, now
}

func TestFeedOracleConverts(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	o, _ := newFeed(t, http.StatusOK, map[string]any{"price": "2000", "updated_at": now.Unix() - 60})
	v, err := o.ConvertUSDToNative(context.Background(), decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", v.Dec())
}

func TestFeedOracleRejectsStalePrice(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	o, _ := newFeed(t, http.StatusOK, map[string]any{"price": "2000", "updated_at": now.Unix() - 7200})
	_, err := o.ConvertUSDToNative(context.Background(), decimal.NewFromInt(1000))
	assert.ErrorIs(t, err, appErrors.ErrOracle)
}

func TestFeedOracleMapsHTTPFailure(t *testing.T) {
	o, _ := newFeed(t, http.StatusServiceUnavailable, map[string]any{"message": "down"})
	_, err := o.ConvertUSDToNative(context.Background(), decimal.NewFromInt(1))
	require.Error(t, err)
	assert.Equal(t, appErrors.KindOracle, appErrors.KindOf(err))
}
