package sale

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/roboyicecream/kioskpay/internal/domain/errors"
	domainSale "github.com/roboyicecream/kioskpay/internal/domain/sale"
	"github.com/rs/zerolog"
)

func (e *Engine) settleElectronic(ctx context.Context, s *domainSale.Session, logger zerolog.Logger) (out domainSale.Outcome, result string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Electronic payment aborted")
			out, result = domainSale.Outcome{Message: recovered(r)}, resultError
		}
	}()

	req := s.Request
	start := e.clock.Now()

	link, err := e.linker.Link(req.PriceCents)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build payment link")
		return domainSale.Outcome{Message: err.Error()}, resultError
	}
	logger.Debug().Str("url", link.URL).Msg("Payment link created")

	// sampled before the customer can see the link, so a payment made
	// right away is never folded into the baseline
	baseline, err := e.oracle.PendingCount(ctx)
	if err != nil {
		e.metrics.OraclePolls.WithLabelValues("count", "error").Inc()
		logger.Warn().Err(err).Msg("Payment baseline unknown, assuming zero")
		baseline = 0
	} else {
		e.metrics.OraclePolls.WithLabelValues("count", "ok").Inc()
	}

	e.advance(s, domainSale.StateAwaitingPayment, logger)

	view := domainSale.NewOrderView(req, e.timing.ElectronicWait)
	view.EncodedQR = link.EncodedQR
	view.PaymentURL = link.URL
	e.presenter.ShowOrder(ctx, view)

	arrived, err := e.awaitNotification(ctx, baseline, start, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Electronic payment interrupted")
		return domainSale.Outcome{Message: err.Error()}, resultError
	}
	if !arrived {
		logger.Info().Msg("No payment received")
		return domainSale.Outcome{Message: MessageNoPayment}, resultNoPayment
	}

	rec, err := e.oracle.LatestPayment(ctx)
	if err != nil {
		e.metrics.OraclePolls.WithLabelValues("latest", "error").Inc()
		if errors.Is(err, domainErrors.ErrNoMatchFound) {
			logger.Warn().Err(err).Msg("New notification is not a readable payment")
		} else {
			logger.Error().Err(err).Msg("Failed to fetch latest payment")
		}
		return domainSale.Outcome{Message: err.Error()}, resultError
	}
	e.metrics.OraclePolls.WithLabelValues("latest", "ok").Inc()

	out = domainSale.Outcome{
		AmountCents: rec.AmountCents,
		PayerName:   rec.PayerName,
		Message:     rec.ParseIssue,
	}
	if rec.ParseIssue != "" {
		logger.Warn().Err(rec.Issue).Str("payer", rec.PayerName).Msg("Payment received with unusable amount")
		return out, resultParseIssue
	}
	return out, resultSettled
}

// awaitNotification re-counts notifications once per interval. Any increase
// over the baseline is taken as a new payment. A failed count is unknown,
// not zero, and just waits for the next round.
func (e *Engine) awaitNotification(ctx context.Context, baseline int, start time.Time, logger zerolog.Logger) (bool, error) {
	for {
		if e.clock.Now().Sub(start) >= e.timing.ElectronicWait {
			return false, nil
		}
		if err := e.clock.Sleep(ctx, e.timing.CheckInterval); err != nil {
			return false, err
		}

		count, err := e.oracle.PendingCount(ctx)
		if err != nil {
			e.metrics.OraclePolls.WithLabelValues("count", "error").Inc()
			logger.Warn().Err(err).Msg("Payment poll failed")
			continue
		}
		e.metrics.OraclePolls.WithLabelValues("count", "ok").Inc()

		if count > baseline {
			logger.Debug().Int("baseline", baseline).Int("count", count).Msg("New payment notification")
			return true, nil
		}
	}
}
