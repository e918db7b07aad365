package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/urfave/cli"

	"github.com/unclebandit/fundraise-backend/internal/config"
	"github.com/unclebandit/fundraise-backend/internal/logger"
	"github.com/unclebandit/fundraise-backend/internal/model"
	"github.com/unclebandit/fundraise-backend/internal/queue"
	"github.com/unclebandit/fundraise-backend/internal/service"
)

const (
	flagCfg     = "cfg"
	flagQueue   = "queue"
	flagBinding = "binding"
)

func cmdRun(c *cli.Context) error {
	cfg, err := config.Load(c.String(flagCfg))
	if err != nil {
		return err
	}
	if cfg.AMQP.URL == "" {
		return fmt.Errorf("AMQP_URL is required")
	}
	log := logger.New(cfg.App.Env, cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer, err := queue.DialAMQPConsumer(cfg.AMQP.URL, cfg.AMQP.Exchange, c.String(flagQueue), c.String(flagBinding), log)
	if err != nil {
		return err
	}
	defer consumer.Close()

	jobs := make(chan model.EventEnvelope, cfg.Executor.EventBuffer)
	worker := service.NewWorker(jobs, func(env model.EventEnvelope, msg string) bool {
		pterm.Println(renderEvent(env, msg))
		return true
	}, log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Start()
	}()

	log.Info().Str("queue", c.String(flagQueue)).Str("binding", c.String(flagBinding)).Msg("worker running, waiting for events")
	err = consumer.Consume(ctx, func(env model.EventEnvelope) error {
		jobs <- env
		return nil
	})
	close(jobs)
	<-done
	log.Info().Int("sent", worker.Sent).Int("failed", worker.Failed).Msg("worker stopped")
	return err
}

func main() {
	app := cli.NewApp()
	app.Name = "fundraise-worker"
	app.Usage = "print ledger events published on the broker"
	app.Version = "v1"
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: flagCfg, Usage: "Configuration `FILE` (TOML)"},
		&cli.StringFlag{Name: flagQueue, Value: "fundraise.notifications", Usage: "queue `NAME` to declare and consume"},
		&cli.StringFlag{Name: flagBinding, Value: "#", Usage: "routing `KEY` the queue is bound with, e.g. DonationReceived"},
	}
	app.Action = cmdRun

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("\nError: %v\n", err)
		os.Exit(1)
	}
}
