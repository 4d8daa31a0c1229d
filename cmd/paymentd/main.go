package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/roboyicecream/kioskpay/internal/bootstrap"
	"github.com/roboyicecream/kioskpay/internal/controller"
	infraRedis "github.com/roboyicecream/kioskpay/internal/infrastructure/redis"
	"golang.org/x/sync/errgroup"
)

const serviceName = "kioskpay"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, serviceName, "kioskpay")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Readiness ---
	checks := []controller.ReadinessCheck{{Name: "mail", Check: app.Oracle.Ping}}
	if app.Redis != nil {
		checks = append(checks, controller.ReadinessCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() },
		})
	}

	// --- Router ---
	deps := controller.RouterDeps{
		Engine:      app.Engine,
		Readiness:   checks,
		Metrics:     app.Metrics,
		Logger:      app.Logger,
		ServiceName: serviceName,
		CORSConfig:  app.Config.Server.CORS,
		RateLimit:   app.Config.Server.RateLimit,
	}
	if app.Simulator != nil {
		deps.Pulses = app.Simulator
	}
	router := controller.NewRouter(deps)

	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	app.Display.ShowIdle(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. HTTP server.
	g.Go(func() error {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// 2. Sale request stream, when enabled.
	if app.Redis != nil {
		redisCfg := app.Config.Redis
		consumer := infraRedis.NewStreamConsumer(
			app.Redis,
			redisCfg.SalesStream,
			redisCfg.ConsumerGroup,
			app.Config.InstanceID,
			redisCfg.BlockDuration,
		)
		if err := consumer.CreateGroup(ctx); err != nil {
			app.Logger.Error().Err(err).Msg("Failed to create consumer group (may already exist)")
		}
		producer := infraRedis.NewSettlementProducer(app.Redis, redisCfg.SettlementsStream, redisCfg.DeadLetterStream)

		app.Logger.Info().
			Str("stream", redisCfg.SalesStream).
			Str("group", redisCfg.ConsumerGroup).
			Str("consumer", app.Config.InstanceID).
			Msg("Listening for sale requests")

		g.Go(func() error {
			return runSaleProcessor(gCtx, app, consumer, producer)
		})
	}

	// 3. Shutdown on signal or on the first failure.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
		case <-quit:
			app.Logger.Info().Msg("Shutting down...")
		}

		// cancelling ctx ends a running sale; its display goes back to idle
		cancel()

		shutdownCtx, stop := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Service error")
	}
	app.Logger.Info().Msg("Service exited")
}
