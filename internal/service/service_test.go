package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/fundraise-backend/internal/ledger"
	"github.com/unclebandit/fundraise-backend/internal/model"
	"github.com/unclebandit/fundraise-backend/internal/oracle"
	"github.com/unclebandit/fundraise-backend/internal/repository"
)

var (
	admin  = common.HexToAddress("0x00000000000000000000000000000000000ad310")
	owner  = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	donorA = common.HexToAddress("0x0000000000000000000000000000000000000da1")
	donorB = common.HexToAddress("0x0000000000000000000000000000000000000db2")
)

// ethPrice is the fixed USD price of one native coin in tests.
var ethPrice = decimal.NewFromInt(2000)

// usdFor returns the USD target that converts to n ether at ethPrice.
func usdFor(n int64) decimal.Decimal {
	return ethPrice.Mul(decimal.NewFromInt(n))
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventRecorder struct {
	mu   sync.Mutex
	envs []model.EventEnvelope
}

func (r *eventRecorder) Publish(_ string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, payload.(model.EventEnvelope))
	return nil
}

func (r *eventRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.envs))
	for i, e := range r.envs {
		out[i] = e.Name
	}
	return out
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = nil
}

func (r *eventRecorder) last(name string) model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.envs) - 1; i >= 0; i-- {
		if r.envs[i].Name == name {
			return r.envs[i].Payload
		}
	}
	return nil
}

type fixture struct {
	svc    *CampaignService
	clock  *testClock
	events *eventRecorder
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithOracle(t, oracle.NewFixedPriceOracle(ethPrice))
}

func newFixtureWithOracle(t *testing.T, o oracle.PriceOracle) *fixture {
	t.Helper()
	clk := &testClock{now: time.Unix(1_800_000_000, 0).UTC()}
	rec := &eventRecorder{}
	escrow := NewCommissionEscrow(model.DefaultCommissionPolicy(), admin, clk.Now)
	engine := NewAccountingEngine(o, escrow, time.Second, clk.Now)
	exec, err := ledger.NewExecutor(repository.EmptySnapshot(), nil, ledger.Options{
		QueueSize: 16,
		Publisher: rec,
		Log:       zerolog.Nop(),
		Now:       clk.Now,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = exec.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &fixture{svc: NewCampaignService(exec, engine), clock: clk, events: rec}
}

// createCampaign creates a campaign owned by owner with a target of
// targetEther and the given lifetime.
func (f *fixture) createCampaign(t *testing.T, targetEther int64, lifetime time.Duration) int {
	t.Helper()
	id, err := f.svc.CreateCampaign(context.Background(), owner, CreateCampaignRequest{
		Title:       "Clean water",
		Description: "Wells for the valley",
		TargetUSD:   usdFor(targetEther),
		Deadline:    f.clock.Now().Add(lifetime),
		Image:       "ipfs://cover",
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) donate(t *testing.T, donor common.Address, id int, amount *uint256.Int) DonationResult {
	t.Helper()
	res, err := f.svc.DonateToCampaign(context.Background(), donor, id, amount)
	require.NoError(t, err)
	return res
}

// milliEther returns n / 1000 ether.
func milliEther(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000))
}
