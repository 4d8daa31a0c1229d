package main

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/roboyicecream/kioskpay/internal/bootstrap"
	domainErrors "github.com/roboyicecream/kioskpay/internal/domain/errors"
	domainSale "github.com/roboyicecream/kioskpay/internal/domain/sale"
	"github.com/roboyicecream/kioskpay/internal/infrastructure/observability"
	infraRedis "github.com/roboyicecream/kioskpay/internal/infrastructure/redis"
	"github.com/rs/zerolog"
)

type saleSource interface {
	Stream() string
	Read(ctx context.Context) ([]redis.XMessage, error)
	ReadPending(ctx context.Context) ([]redis.XMessage, error)
	Claim(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error)
	Ack(ctx context.Context, messageID string) error
}

type settlementSink interface {
	PublishSettlement(ctx context.Context, out domainSale.Outcome) error
	PublishDeadLetter(ctx context.Context, msg redis.XMessage, reason string) error
}

type settler interface {
	Settle(ctx context.Context, req domainSale.Request) (domainSale.Outcome, error)
}

type saleProcessor struct {
	source  saleSource
	sink    settlementSink
	engine  settler
	metrics *observability.Metrics
	logger  zerolog.Logger
	// busyWait is how long to back off while an HTTP sale holds the engine.
	busyWait time.Duration
	// claimMinIdle is how long another consumer's entry must sit unacked
	// before it is taken over.
	claimMinIdle time.Duration
}

func runSaleProcessor(ctx context.Context, app *bootstrap.App, source saleSource, sink settlementSink) error {
	p := &saleProcessor{
		source:   source,
		sink:     sink,
		engine:   app.Engine,
		metrics:  app.Metrics,
		logger:   app.Logger.With().Str("component", "sale_processor").Logger(),
		busyWait:     app.Config.Sale.CheckInterval,
		claimMinIdle: app.Config.Redis.ClaimMinIdle,
	}
	return p.run(ctx)
}

func (p *saleProcessor) run(ctx context.Context) error {
	p.resume(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}

		messages, err := p.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error().Err(err).Msg("Failed to read from stream")
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}

		if len(messages) == 0 {
			p.reclaim(ctx)
			continue
		}
		for _, msg := range messages {
			p.handle(ctx, msg)
		}
	}
}

// resume settles what this consumer read before a restart but never acked.
func (p *saleProcessor) resume(ctx context.Context) {
	messages, err := p.source.ReadPending(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to read pending sale requests")
		return
	}
	if len(messages) > 0 {
		p.logger.Info().Int("count", len(messages)).Msg("Resuming unfinished sale requests")
	}
	p.handleAll(ctx, messages)
}

// reclaim takes over entries another consumer stopped working on.
func (p *saleProcessor) reclaim(ctx context.Context) {
	messages, err := p.source.Claim(ctx, p.claimMinIdle)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error().Err(err).Msg("Failed to claim stale sale requests")
		}
		return
	}
	if len(messages) > 0 {
		p.logger.Warn().Int("count", len(messages)).Msg("Claimed stale sale requests")
	}
	p.handleAll(ctx, messages)
}

func (p *saleProcessor) handleAll(ctx context.Context, messages []redis.XMessage) {
	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}
		p.handle(ctx, msg)
	}
}

// handle settles one message. Undecodable messages are moved to the
// dead-letter stream. A message is left pending only when shutdown
// interrupts the wait for the engine; resume picks it up on the next start.
func (p *saleProcessor) handle(ctx context.Context, msg redis.XMessage) {
	logger := p.logger.With().Str("message_id", msg.ID).Logger()

	req, err := infraRedis.DecodeSaleRequest(msg)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid sale request in stream")
		if err := p.sink.PublishDeadLetter(context.WithoutCancel(ctx), msg, err.Error()); err != nil {
			logger.Error().Err(err).Msg("Failed to dead-letter sale request")
		}
		p.count("invalid")
		p.ack(context.WithoutCancel(ctx), msg.ID, logger)
		return
	}

	out, err := p.settle(ctx, req)
	if err != nil {
		logger.Warn().Err(err).Str("sale_id", req.ID.String()).Msg("Sale not started")
		return
	}

	if err := p.sink.PublishSettlement(context.WithoutCancel(ctx), out); err != nil {
		logger.Error().Err(err).Str("sale_id", req.ID.String()).Msg("Failed to publish settlement")
		p.count("publish_error")
	} else {
		p.count("success")
	}
	p.ack(context.WithoutCancel(ctx), msg.ID, logger)
}

func (p *saleProcessor) settle(ctx context.Context, req domainSale.Request) (domainSale.Outcome, error) {
	for {
		out, err := p.engine.Settle(ctx, req)
		if !errors.Is(err, domainErrors.ErrSaleInProgress) {
			return out, err
		}
		if !sleep(ctx, p.busyWait) {
			return domainSale.Outcome{}, ctx.Err()
		}
	}
}

func (p *saleProcessor) ack(ctx context.Context, id string, logger zerolog.Logger) {
	if err := p.source.Ack(ctx, id); err != nil {
		logger.Error().Err(err).Msg("Failed to ack message")
	}
}

func (p *saleProcessor) count(status string) {
	p.metrics.StreamMessagesProcessed.WithLabelValues(p.source.Stream(), status).Inc()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
