package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/unclebandit/fundraise-backend/internal/config"
	"github.com/unclebandit/fundraise-backend/internal/db"
	"github.com/unclebandit/fundraise-backend/internal/ledger"
	"github.com/unclebandit/fundraise-backend/internal/model"
	"github.com/unclebandit/fundraise-backend/internal/oracle"
	"github.com/unclebandit/fundraise-backend/internal/queue"
	"github.com/unclebandit/fundraise-backend/internal/repository"
	"github.com/unclebandit/fundraise-backend/internal/service"
)

// App holds the wired ledger. Executor must be started with Run before any
// command is submitted.
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	DB       *sqlx.DB
	Queue    *queue.InMemoryQueue
	Executor *ledger.Executor
	Service  *service.CampaignService

	amqp     *queue.AMQPPublisher
	notify   chan model.EventEnvelope
	notifier *service.Worker
	workerOK chan struct{}
}

// New builds the ledger from cfg: optional Postgres state, the oracle, the
// event queue and its forwarder, and the executor on top.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	base := repository.EmptySnapshot()
	var journal *ledger.Journal
	var persister ledger.Persister
	if cfg.Database.URL != "" {
		conn, err := db.Open(ctx, cfg.Database.URL, log)
		if err != nil {
			return nil, err
		}
		a.DB = conn
		if cfg.Database.Migrate {
			n, err := repository.MigrationsUp(conn.DB)
			if err != nil {
				a.Close()
				return nil, err
			}
			log.Info().Int("applied", n).Msg("migrations applied")
		}
		store := repository.NewPostgresStore(conn, log)
		snap, recs, err := store.Load(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load ledger state: %w", err)
		}
		if journal, err = ledger.NewJournal(recs); err != nil {
			a.Close()
			return nil, fmt.Errorf("journal: %w", err)
		}
		base, persister = snap, store
		log.Info().Uint64("seq", snap.Seq()).Int("campaigns", snap.Len()).Msg("ledger state loaded")
	}

	a.Queue = queue.NewInMemoryQueue(log, cfg.Executor.EventBuffer)
	if err := a.startDelivery(); err != nil {
		a.Close()
		return nil, err
	}

	exec, err := ledger.NewExecutor(base, journal, ledger.Options{
		QueueSize:      cfg.Executor.QueueSize,
		EnqueueTimeout: cfg.Executor.EnqueueTimeout,
		Persister:      persister,
		Publisher:      a.Queue,
		Log:            log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Executor = exec

	escrow := service.NewCommissionEscrow(cfg.Policy(), cfg.Commission.Admin, nil)
	engine := service.NewAccountingEngine(newOracle(cfg), escrow, cfg.Oracle.Timeout, nil)
	a.Service = service.NewCampaignService(exec, engine)
	return a, nil
}

func newOracle(cfg *config.Config) oracle.PriceOracle {
	if cfg.Oracle.Kind == "feed" {
		return oracle.NewFeedOracle(cfg.Oracle.FeedURL, cfg.Oracle.FeedPath, cfg.Oracle.MaxPriceAge)
	}
	return oracle.NewFixedPriceOracle(cfg.Oracle.FixedPrice)
}

// startDelivery forwards events to RabbitMQ when configured. Without a broker
// an in-process worker logs the notifications instead.
func (a *App) startDelivery() error {
	if a.Config.AMQP.URL != "" {
		pub, err := queue.DialAMQPPublisher(a.Config.AMQP.URL, a.Config.AMQP.Exchange)
		if err != nil {
			return err
		}
		a.amqp = pub
		a.Log.Info().Str("exchange", a.Config.AMQP.Exchange).Msg("forwarding events to amqp")
		return queue.Forward(a.Queue, ledger.TopicEvents, pub)
	}

	a.notify = make(chan model.EventEnvelope, a.Config.Executor.EventBuffer)
	log := a.Log.With().Str("component", "notifier").Logger()
	a.notifier = service.NewWorker(a.notify, func(env model.EventEnvelope, msg string) bool {
		log.Info().Str("event", env.Name).Uint64("seq", env.Seq).Msg(msg)
		return true
	}, log)
	a.workerOK = make(chan struct{})
	go func() {
		defer close(a.workerOK)
		a.notifier.Start()
	}()
	return a.Queue.Subscribe(ledger.TopicEvents, func(payload any) error {
		env, ok := payload.(model.EventEnvelope)
		if !ok {
			return fmt.Errorf("unexpected payload %T", payload)
		}
		select {
		case a.notify <- env:
		default:
			return fmt.Errorf("notifier backlog full, dropped event %d", env.Seq)
		}
		return nil
	})
}

// Close releases everything New opened. Call it after Executor.Run returns.
func (a *App) Close() {
	if a.Queue != nil {
		a.Queue.Close()
	}
	if a.notify != nil {
		close(a.notify)
		<-a.workerOK
	}
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			a.Log.Warn().Err(err).Msg("close amqp publisher")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn().Err(err).Msg("close database")
		}
	}
}
