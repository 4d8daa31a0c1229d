package sale

import (
	"context"
	"time"

	domainSale "github.com/roboyicecream/kioskpay/internal/domain/sale"
	"github.com/rs/zerolog"
)

// coinProgress pushes the paid amount to the display whenever it changes.
type coinProgress struct {
	e    *Engine
	view domainSale.OrderView
}

func (p *coinProgress) refresh(ctx context.Context) {
	total := p.e.pulses.Snapshot().TotalCents
	if total == p.view.PaidCents {
		return
	}
	p.view.PaidCents = total
	p.e.presenter.ShowOrder(ctx, p.view)
}

func (e *Engine) settleCoin(ctx context.Context, s *domainSale.Session, logger zerolog.Logger) (out domainSale.Outcome, result string) {
	// money already in the machine is always reported
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Coin payment aborted")
			out = domainSale.Outcome{AmountCents: e.pulses.Snapshot().TotalCents, Message: recovered(r)}
			result = resultError
		}
	}()

	req := s.Request
	start := e.clock.Now()

	e.pulses.Reset()
	e.advance(s, domainSale.StateAwaitingPayment, logger)

	progress := &coinProgress{e: e, view: domainSale.NewOrderView(req, e.timing.CoinWait)}
	e.presenter.ShowOrder(ctx, progress.view)

	reached, err := e.awaitCoins(ctx, req, progress, start)
	if err != nil {
		return e.coinFailure(err, logger), resultError
	}

	if reached {
		e.advance(s, domainSale.StateStabilizing, logger)
		if err := e.stabilize(ctx, progress, start, logger); err != nil {
			return e.coinFailure(err, logger), resultError
		}
	}

	total := e.pulses.Snapshot().TotalCents
	logger.Debug().
		Dur("early_by", e.timing.CoinWait-e.clock.Now().Sub(start)).
		Msg("Coin window closed")

	if total < req.PriceCents {
		return domainSale.Outcome{AmountCents: total}, resultTimeout
	}
	return domainSale.Outcome{AmountCents: total}, resultSettled
}

// awaitCoins polls the total once per interval until the price is reached
// or the coin window elapses. It reports true only when the price was
// reached inside the window; a price first seen on the closing poll settles
// without stabilization.
func (e *Engine) awaitCoins(ctx context.Context, req domainSale.Request, progress *coinProgress, start time.Time) (bool, error) {
	for {
		elapsed := e.clock.Now().Sub(start)
		if e.pulses.Snapshot().TotalCents >= req.PriceCents {
			return elapsed < e.timing.CoinWait, nil
		}
		if elapsed >= e.timing.CoinWait {
			return false, nil
		}
		if err := e.clock.Sleep(ctx, e.timing.CheckInterval); err != nil {
			return false, err
		}
		progress.refresh(ctx)
	}
}

// stabilize waits for one quiet interval without pulses so a burst of coins
// straddling the last poll is fully counted. It never runs past
// CoinWait+ExtraWait from the start of the sale.
func (e *Engine) stabilize(ctx context.Context, progress *coinProgress, start time.Time, logger zerolog.Logger) error {
	deadline := start.Add(e.timing.CoinWait + e.timing.ExtraWait)
	for {
		now := e.clock.Now()
		if now.Sub(e.pulses.Snapshot().LastPulse) >= e.timing.CheckInterval {
			return nil
		}

		remaining := deadline.Sub(now)
		if remaining <= 0 {
			e.metrics.StabilizationCutoffs.Inc()
			logger.Warn().Msg("Coin feed did not settle before the hard deadline")
			return nil
		}

		if err := e.clock.Sleep(ctx, min(e.timing.CheckInterval, remaining)); err != nil {
			return err
		}
		progress.refresh(ctx)
	}
}

func (e *Engine) coinFailure(err error, logger zerolog.Logger) domainSale.Outcome {
	total := e.pulses.Snapshot().TotalCents
	logger.Error().Err(err).Int64("amount", total).Msg("Coin payment interrupted")
	return domainSale.Outcome{AmountCents: total, Message: err.Error()}
}
