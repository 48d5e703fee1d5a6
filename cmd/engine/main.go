package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog"
	"github.com/marcelsud/webhook-outbox/config"
	ihttp "github.com/marcelsud/webhook-outbox/internal/http/chi"
	"github.com/marcelsud/webhook-outbox/metrics"
	"github.com/marcelsud/webhook-outbox/provision"
	"github.com/marcelsud/webhook-outbox/webhook"
	"github.com/marcelsud/webhook-outbox/webhook/dispatcher"
	"github.com/marcelsud/webhook-outbox/webhook/memory"
	"github.com/marcelsud/webhook-outbox/webhook/redis"
)

const TIMEOUT = 30 * time.Second

/* main wires the engine together: configuration, backends, metrics,
 * the dispatcher pool and the operational HTTP API
 * Imports flow one direction only: this binary imports the business
 * packages, which import the storage packages
 */

func main() {
	logger := httplog.NewLogger("webhook-outbox", httplog.Options{
		JSON: true,
	})

	cfg, err := config.GetConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("loading configuration")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	var store webhook.Store
	var queue webhook.Queue
	if cfg.UseRedis() {
		rstore, err := redis.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("connecting delivery store")
		}
		rqueue, err := redis.NewQueue(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("connecting job queue")
		}
		store = rstore
		queue = rqueue
		logger.Info().Str("addr", cfg.RedisAddr).Msg("using redis backends")
	} else {
		store = memory.NewStore()
		queue = memory.NewQueue()
		logger.Info().Msg("using in-memory backends")
	}
	defer store.Close(context.Background())
	defer queue.Close(context.Background())

	if cfg.WebhooksFile != "" {
		loader := provision.NewLoader()
		if err := loader.Load(cfg.WebhooksFile); err != nil {
			logger.Fatal().Err(err).Str("file", cfg.WebhooksFile).Msg("loading webhooks file")
		}
		if err := loader.Seed(ctx, store); err != nil {
			logger.Fatal().Err(err).Msg("seeding webhooks")
		}
		logger.Info().Int("webhooks", len(loader.List())).Msg("webhooks provisioned")
	}

	collector := metrics.NewEngineCollector(queue, store)
	exporter, err := metrics.NewOTelExporter(collector)
	if err != nil {
		logger.Fatal().Err(err).Msg("initializing metrics exporter")
	}
	defer exporter.Shutdown(context.Background())

	recorder, err := metrics.NewRecorder(exporter.Meter())
	if err != nil {
		logger.Fatal().Err(err).Msg("initializing metrics recorder")
	}

	d := dispatcher.New(store, queue, dispatcher.Options{
		Concurrency: cfg.Concurrency,
		RateLimit:   cfg.RateLimit,
		RateWindow:  cfg.RateWindow(),
		Logger:      logger,
		Observers:   []webhook.Observer{recorder},
	})
	go d.Run(ctx)
	logger.Info().Int("concurrency", cfg.Concurrency).Msg("dispatcher started")

	r := ihttp.Handlers(ctx, d, store, exporter.ServeHTTP())
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      r,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)
	logger.Info().Str("port", cfg.Port).Msg("listening")
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("serving")
	}
	err = <-errShutdown
	if err != nil {
		logger.Fatal().Err(err).Msg("shutting down")
	}
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("forcing closing the server")
	default:
		errShutdown <- fmt.Errorf("forcing closing the server")
	}
}
