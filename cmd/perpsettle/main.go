package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"PerpSettle/internal/config"
	"PerpSettle/internal/engine"
	"PerpSettle/internal/events"
	"PerpSettle/internal/margin"
	"PerpSettle/internal/observability"
	"PerpSettle/internal/oracle"
	"PerpSettle/internal/params"
	"PerpSettle/internal/persistence"
	"PerpSettle/internal/server"
	"PerpSettle/internal/state"
	"PerpSettle/internal/verifier"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("load config")
	}
	log := observability.NewLogger(cfg.Log.Level, cfg.Log.Console)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	var writer *persistence.Writer
	if !cfg.Postgres.Disabled {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres")
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		if err := db.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("ping postgres")
		}
		defer db.Close()

		if err := persistence.Migrate(ctx, db, log); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}

		writer = persistence.NewWriter(db, persistence.Config{
			BatchSize:     cfg.Postgres.BatchSize,
			FlushInterval: cfg.Postgres.FlushInterval,
		}, log)
		go writer.Run(ctx)
	}

	var js nats.JetStreamContext
	if !cfg.NATS.Disabled {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name("perpsettle"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("connect nats")
		}
		defer nc.Drain()
		js, err = nc.JetStream()
		if err != nil {
			log.Fatal().Err(err).Msg("jetstream context")
		}
	}

	var publisher *events.Publisher
	if js != nil {
		publisher = events.NewPublisher(js, cfg.NATS.EventSubject, log)
	}

	oracles := make(map[string]*oracle.Manual, len(cfg.Markets))
	markets := make([]*engine.Market, 0, len(cfg.Markets))
	marketsByName := make(map[string]*engine.Market, len(cfg.Markets))
	for _, mc := range cfg.Markets {
		o := oracle.NewManual(mc.Granularity)
		hook := commitHook(metrics, writer, publisher)
		m, err := engine.NewMarket(mc.Name, o,
			params.DefaultRiskParameter(), params.DefaultMarketParameter(),
			engine.Beneficiaries{
				Coordinator:    mc.Coordinator,
				OracleReceiver: mc.OracleReceiver,
				RiskReceiver:   mc.RiskReceiver,
			}, log, hook)
		if err != nil {
			log.Fatal().Err(err).Str("market", mc.Name).Msg("create market")
		}
		if writer != nil {
			m.OnCheckpoint(func(market, account string, c state.Checkpoint) {
				writer.RecordCheckpoint(persistence.CheckpointRow{
					Market:        market,
					Account:       account,
					Timestamp:     c.Timestamp,
					Collateral:    c.Collateral,
					Transfer:      c.Transfer,
					TradeFee:      c.TradeFee,
					SettlementFee: c.SettlementFee,
				})
			})
		}
		oracles[mc.Name] = o
		markets = append(markets, m)
		marketsByName[mc.Name] = m
	}

	if js != nil {
		feed := oracle.NewFeed(js, cfg.NATS.PriceSubject, cfg.NATS.Durable,
			commitPrices(oracles, marketsByName, log), log)
		go func() {
			if err := feed.Start(ctx); err != nil {
				log.Error().Err(err).Msg("oracle feed stopped")
			}
		}()
	}

	ledger := margin.NewLedger()
	api := server.New(markets, ledger, metrics, log)
	for _, m := range markets {
		mkt := m
		api.SetVerifier(mkt.Name(), verifier.New(mkt.Name(), verifier.Ed25519Signature,
			func(account, signer string) bool {
				return signer == account || mkt.Signer(account, signer)
			}))
	}

	root := http.NewServeMux()
	root.Handle("/", api.Handler())
	root.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      root,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}

// commitHook fans a commit event out to metrics, persistence, and the event
// stream.
func commitHook(metrics *observability.Metrics, writer *persistence.Writer, publisher *events.Publisher) engine.CommitHook {
	var publish engine.CommitHook
	if publisher != nil {
		publish = publisher.Hook()
	}
	return func(ev engine.CommitEvent) {
		metrics.VersionsCommitted.WithLabelValues(ev.Market).Inc()
		if !ev.Version.Valid {
			metrics.InvalidVersions.WithLabelValues(ev.Market).Inc()
		}
		metrics.OrdersSettled.WithLabelValues(ev.Market).Add(float64(ev.Orders))
		metrics.PendingOrders.WithLabelValues(ev.Market).Set(float64(ev.Global.Pending()))
		metrics.LatestPrice.WithLabelValues(ev.Market).Set(ev.Version.Price.Float64())
		metrics.ExposurePool.WithLabelValues(ev.Market).Set(ev.Global.Exposure.Float64())

		if writer != nil {
			writer.RecordVersion(persistence.VersionRow{
				Market:      ev.Market,
				Timestamp:   ev.Version.Timestamp,
				Price:       ev.Version.Price,
				Valid:       ev.Version.Valid,
				MakerValue:  ev.Version.MakerPostValue,
				LongValue:   ev.Version.LongPostValue,
				ShortValue:  ev.Version.ShortPostValue,
				ProtocolFee: ev.Global.ProtocolFee,
				OracleFee:   ev.Global.OracleFee,
				RiskFee:     ev.Global.RiskFee,
				Exposure:    ev.Global.Exposure,
				Orders:      ev.Orders,
			})
		}
		if publish != nil {
			publish(ev)
		}
	}
}

// commitPrices routes feed versions to the right market, treating replays of
// already-applied versions as success so the feed can ack them.
func commitPrices(oracles map[string]*oracle.Manual, markets map[string]*engine.Market, log zerolog.Logger) oracle.CommitFunc {
	return func(name string, pv oracle.PriceVersion, receipt oracle.Receipt) error {
		o, ok := oracles[name]
		if !ok {
			log.Warn().Str("market", name).Msg("price version for unknown market, dropping")
			return nil
		}
		if err := o.Commit(pv, receipt); err != nil {
			if errors.Is(err, oracle.ErrNonMonotonic) {
				return nil
			}
			return err
		}
		if err := markets[name].Commit(pv, receipt); err != nil {
			if errors.Is(err, engine.ErrVersionOutOfOrder) {
				return nil
			}
			return err
		}
		return nil
	}
}
