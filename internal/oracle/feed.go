package oracle

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dghubble/sling"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	appErrors "github.com/unclebandit/fundraise-backend/internal/errors"
)

const (
	defaultMaxIdleConns    = 10
	defaultIdleConnTimeout = 2 * time.Second
)

// PriceResponse is the body served by the price feed.
type PriceResponse struct {
	Price     decimal.Decimal `json:"price"`
	UpdatedAt int64           `json:"updated_at"`
}

type feedError struct {
	Message string `json:"message"`
}

// FeedOracle reads the native/USD price from an HTTP JSON feed on every
// conversion.
type FeedOracle struct {
	client *sling.Sling
	path   string
	maxAge time.Duration
	now    func() time.Time
}

// NewFeedOracle creates a feed client. A zero maxAge disables the staleness
// check.
func NewFeedOracle(baseURL, path string, maxAge time.Duration) *FeedOracle {
	tr := &http.Transport{
		MaxIdleConns:       defaultMaxIdleConns,
		IdleConnTimeout:    defaultIdleConnTimeout,
		DisableCompression: true,
	}
	httpClient := &http.Client{Transport: tr}
	return &FeedOracle{
		client: sling.New().Base(baseURL).Client(httpClient),
		path:   path,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// LatestPrice fetches the current price and checks it for staleness.
func (o *FeedOracle) LatestPrice(ctx context.Context) (decimal.Decimal, error) {
	req, err := o.client.New().Get(o.path).Request()
	if err != nil {
		return decimal.Zero, appErrors.NewOracle("build price request", err)
	}
	var body PriceResponse
	var failure feedError
	res, err := o.client.Do(req.WithContext(ctx), &body, &failure)
	if err != nil {
		return decimal.Zero, appErrors.NewOracle("fetch price", err)
	}
	if res.StatusCode != http.StatusOK {
		return decimal.Zero, appErrors.NewOracle(fmt.Sprintf("price feed returned %d", res.StatusCode), fmt.Errorf("%s", failure.Message))
	}
	if !body.Price.IsPositive() {
		return decimal.Zero, appErrors.NewOracle("price feed returned a non-positive price", nil)
	}
	if o.maxAge > 0 {
		age := o.now().Sub(time.Unix(body.UpdatedAt, 0))
		if age > o.maxAge {
			return decimal.Zero, appErrors.NewOracle(fmt.Sprintf("price is stale by %s", age.Truncate(time.Second)), nil)
		}
	}
	return body.Price, nil
}

func (o *FeedOracle) ConvertUSDToNative(ctx context.Context, usd decimal.Decimal) (*uint256.Int, error) {
	price, err := o.LatestPrice(ctx)
	if err != nil {
		return nil, err
	}
	return Convert(usd, price)
}
