// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/fundraise-backend/internal/app"
	"github.com/unclebandit/fundraise-backend/internal/config"
	"github.com/unclebandit/fundraise-backend/internal/controller"
	"github.com/unclebandit/fundraise-backend/internal/db"
	"github.com/unclebandit/fundraise-backend/internal/handler"
	"github.com/unclebandit/fundraise-backend/internal/logger"
	"github.com/unclebandit/fundraise-backend/internal/repository"
)

const (
	flagCfg  = "cfg"
	flagDown = "down"
)

func cmdServe(c *cli.Context) error {
	cfg, err := config.Load(c.String(flagCfg))
	if err != nil {
		return err
	}
	log := logger.New(cfg.App.Env, cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("error starting ledger: %w", err)
	}
	defer a.Close()

	ctrl := controller.NewCampaignController(a.Service)
	h := handler.NewCampaignHandler(a.Service)
	srv := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      controller.NewRouter(ctrl, h, log),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Executor.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func cmdMigrate(c *cli.Context) error {
	cfg, err := config.Load(c.String(flagCfg))
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	log := logger.New(cfg.App.Env, cfg.App.LogLevel)

	conn, err := db.Open(context.Background(), cfg.Database.URL, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	var n int
	if c.Bool(flagDown) {
		n, err = repository.MigrationsDown(conn.DB)
	} else {
		n, err = repository.MigrationsUp(conn.DB)
	}
	if err != nil {
		return err
	}
	log.Info().Int("migrations", n).Bool("down", c.Bool(flagDown)).Msg("migrations done")
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "fundraise-server"
	app.Usage = "campaign ledger and commission escrow"
	app.Version = "v1"

	cfgFlag := &cli.StringFlag{
		Name:  flagCfg,
		Usage: "Configuration `FILE` (TOML)",
	}

	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "Run the ledger and its HTTP API",
			Action: cmdServe,
			Flags:  []cli.Flag{cfgFlag},
		},
		{
			Name:   "migrate",
			Usage:  "Apply (or with --down revert) the database migrations",
			Action: cmdMigrate,
			Flags: []cli.Flag{
				cfgFlag,
				&cli.BoolFlag{Name: flagDown, Usage: "revert every migration"},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("\nError: %v\n", err)
		os.Exit(1)
	}
}
