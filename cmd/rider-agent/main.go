package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-booking/internal/api"
	"github.com/example/ride-booking/internal/booking"
	"github.com/example/ride-booking/internal/cache"
	"github.com/example/ride-booking/internal/config"
	"github.com/example/ride-booking/internal/distance"
	"github.com/example/ride-booking/internal/fleet"
	"github.com/example/ride-booking/internal/geo"
	"github.com/example/ride-booking/internal/geocode"
	httpapi "github.com/example/ride-booking/internal/http"
	"github.com/example/ride-booking/internal/ingest"
	"github.com/example/ride-booking/internal/logging"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/payments"
	"github.com/example/ride-booking/internal/push"
	"github.com/example/ride-booking/internal/session"
	"github.com/example/ride-booking/internal/storage"
	"github.com/example/ride-booking/internal/tracker"
)

func main() {
	var envFile string
	flag.StringVar(&envFile, "env-file", "", "optional env file (defaults to .env when present)")
	flag.Parse()

	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("rider agent stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	sess, err := session.New(cfg.Token, cfg.Email, cfg.Role)
	if err != nil {
		return fmt.Errorf("AUTH_TOKEN: %w", err)
	}
	if err := sess.Require(session.RoleCustomer); err != nil {
		return err
	}
	client := api.NewClient(cfg.APIURL, sess, logger)
	client.HTTP.Timeout = cfg.RequestTimeout

	var rc *redis.Client
	var lookups cache.Cache = cache.NewMemory(cfg.CacheTTL)
	var fleetIdx geo.Geo = geo.NewIndex()
	if cfg.RedisAddr != "" {
		rc = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
		lookups = cache.NewRedis(rc, "ride-booking:", cfg.CacheTTL)
		fleetIdx = geo.NewRedisGeo(rc, cfg.RedisGeoKey)
	}

	nominatim := geocode.NewNominatimClient(cfg.GeocodeURL, cfg.Country, logger)
	nominatim.UserAgent = cfg.UserAgent
	geocoder := &geocode.Cached{Next: nominatim, Cache: lookups}
	estimator := &distance.Estimator{Router: distance.NewOSRMClient(cfg.RoutingURL), Cache: lookups, Logger: logger}

	hooks, closeHooks, err := buildHooks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeHooks()

	openChannel := func(key string) tracker.Channel {
		c := push.NewClient(push.Config{
			URL:            cfg.WSURL,
			Token:          sess.Token,
			ReconnectDelay: cfg.ReconnectDelay,
			HeartbeatOut:   cfg.HeartbeatOut,
			HeartbeatIn:    cfg.HeartbeatIn,
		}, logger.With("channel", key))
		c.Start(ctx)
		return c
	}
	tr := tracker.New(client, openChannel, tracker.Config{PollInterval: cfg.PollInterval, RequestTimeout: cfg.RequestTimeout}, hooks, logger)
	ctrl := booking.NewController(geocoder, estimator, client, tr, cfg.Debounce, logger)
	defer ctrl.Close()
	tr.OnChange(func(o models.Order) {
		if o.Status.Terminal() {
			logger.Info("booking available again", "order_id", o.ID, "status", o.Status)
		}
	})

	poller := &fleet.Poller{Source: client, Index: fleetIdx, Active: tr, Interval: cfg.PollInterval, Logger: logger}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(ctrl, tr, fleetIdx, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = tr.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = poller.Run(ctx)
	}()

	errc := make(chan error, 1)
	go func() {
		logger.Info("rider agent listening", "addr", cfg.HTTPAddr, "api", cfg.APIURL, "email", sess.Email)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	wg.Wait()
	tr.Close()
	return nil
}

// buildHooks wires the optional tracker side effects from config.
func buildHooks(ctx context.Context, cfg config.Config, logger *slog.Logger) (tracker.Hooks, func(), error) {
	var hooks tracker.Hooks
	var closers []func() error

	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		hooks.Sink = kp
		closers = append(closers, kp.Close)
	}

	if cfg.PGDSN != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pj, err := storage.NewPostgresJournal(pingCtx, cfg.PGDSN)
		cancel()
		if err != nil {
			return hooks, nil, fmt.Errorf("order journal: %w", err)
		}
		hooks.Journal = pj
		closers = append(closers, pj.Close)
	} else {
		hooks.Journal = storage.NewMemoryJournal()
	}

	if cfg.StripeKey != "" {
		hooks.Payments = payments.NewStripeClient(cfg.StripeKey, cfg.StripeCurrency, cfg.StripeCustomer)
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("closing hook", "error", err)
			}
		}
	}
	return hooks, closeAll, nil
}
