// cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/unclebandit/fundraise-backend/internal/app"
	"github.com/unclebandit/fundraise-backend/internal/config"
	"github.com/unclebandit/fundraise-backend/internal/logger"
	"github.com/unclebandit/fundraise-backend/internal/model"
	"github.com/unclebandit/fundraise-backend/internal/service"
)

type seedCampaign struct {
	owner     common.Address
	title     string
	desc      string
	targetUSD int64
	lifetime  time.Duration
	donations []seedDonation
}

type seedDonation struct {
	donator common.Address
	amount  *uint256.Int
}

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

// seeds are applied through the service, so commissions and shares are
// computed exactly as for live traffic.
var seeds = []seedCampaign{
	{
		owner: alice, title: "Community garden", desc: "Raised beds and a tool shed",
		targetUSD: 20000, lifetime: 30 * 24 * time.Hour,
		donations: []seedDonation{{bob, model.Ether(1)}, {carol, model.Ether(2)}},
	},
	{
		owner: bob, title: "School laptops", desc: "Thirty refurbished laptops",
		targetUSD: 60000, lifetime: 14 * 24 * time.Hour,
		donations: []seedDonation{{alice, model.Ether(5)}},
	},
	{
		owner: carol, title: "River cleanup", desc: "Boats, nets and a skip",
		targetUSD: 4000, lifetime: 7 * 24 * time.Hour,
	},
}

func main() {
	cfg, err := config.Load(os.Getenv("FUNDRAISE_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}
	logr := logger.New(cfg.App.Env, cfg.App.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logr)
	if err != nil {
		log.Fatalf("failed to start ledger: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Executor.Run(ctx)
	}()

	for _, s := range seeds {
		id, err := a.Service.CreateCampaign(ctx, s.owner, service.CreateCampaignRequest{
			Title:       s.title,
			Description: s.desc,
			TargetUSD:   decimal.NewFromInt(s.targetUSD),
			Deadline:    time.Now().Add(s.lifetime),
		})
		if err != nil {
			log.Fatalf("failed to create %q: %v", s.title, err)
		}
		for _, d := range s.donations {
			if _, err := a.Service.DonateToCampaign(ctx, d.donator, id, d.amount); err != nil {
				log.Fatalf("failed to donate to %q: %v", s.title, err)
			}
		}
		fmt.Printf("Seeded: campaign #%d %s\n", id, s.title)
	}

	cancel()
	<-done
	a.Close()
	fmt.Println("Ledger seeding completed successfully!")
}
