package sale

import (
	"context"
	"fmt"
	"sync"

	domainErrors "github.com/roboyicecream/kioskpay/internal/domain/errors"
	domainSale "github.com/roboyicecream/kioskpay/internal/domain/sale"
	"github.com/roboyicecream/kioskpay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Diagnostic messages reported on the outcome.
const (
	MessageNoPayment     = "No payment."
	MessageUnknownOption = "Unknown payment option."
)

// Settlement results used as metric labels.
const (
	resultSettled       = "settled"
	resultTimeout       = "timeout"
	resultNoPayment     = "no_payment"
	resultParseIssue    = "parse_issue"
	resultError         = "error"
	resultUnknownMethod = "unknown_method"
)

// EngineDeps holds the collaborators of the payment engine.
type EngineDeps struct {
	Pulses    PulseCounter
	Oracle    Oracle
	Presenter Presenter
	Linker    PaymentLinker
	Clock     Clock
	Timing    Timing
	Metrics   *observability.Metrics
	Logger    zerolog.Logger
}

// Engine runs the payment acquisition protocol for one sale at a time.
type Engine struct {
	pulses    PulseCounter
	oracle    Oracle
	presenter Presenter
	linker    PaymentLinker
	clock     Clock
	timing    Timing
	metrics   *observability.Metrics
	logger    zerolog.Logger
	tracer    trace.Tracer

	// the coin total is shared hardware state, so sales never overlap
	mu sync.Mutex
}

// NewEngine creates a new Engine. A nil Clock means the wall clock.
func NewEngine(deps EngineDeps) *Engine {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{
		pulses:    deps.Pulses,
		oracle:    deps.Oracle,
		presenter: deps.Presenter,
		linker:    deps.Linker,
		clock:     clock,
		timing:    deps.Timing,
		metrics:   deps.Metrics,
		logger:    observability.Component(deps.Logger, "payment_engine"),
		tracer:    otel.Tracer("github.com/roboyicecream/kioskpay/internal/application/sale"),
	}
}

// Settle collects payment for req and blocks until the sale is settled.
// The only error is ErrSaleInProgress, returned before anything is touched
// when another sale holds the engine. Every other failure is folded into
// the outcome's Message and the display is always returned to idle.
func (e *Engine) Settle(ctx context.Context, req domainSale.Request) (domainSale.Outcome, error) {
	if !e.mu.TryLock() {
		return domainSale.Outcome{}, domainErrors.ErrSaleInProgress
	}
	defer e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "sale.settle", trace.WithAttributes(
		attribute.String("sale.id", req.ID.String()),
		attribute.String("sale.method", req.Method.String()),
		attribute.Int64("sale.price_cents", req.PriceCents),
	))
	defer span.End()

	logger := e.logger.With().
		Str("sale_id", req.ID.String()).
		Str("method", req.Method.String()).
		Int64("price", req.PriceCents).
		Logger()

	e.metrics.ActiveSales.Inc()
	defer e.metrics.ActiveSales.Dec()

	start := e.clock.Now()
	session := domainSale.NewSession(req)

	var (
		out    domainSale.Outcome
		result string
	)
	switch {
	case !req.Method.Known():
		logger.Warn().Err(domainErrors.ErrUnknownPaymentMethod).Int("payment_option", int(req.Method)).Msg("Sale refused")
		span.RecordError(domainErrors.ErrUnknownPaymentMethod)
		out, result = domainSale.Outcome{Message: MessageUnknownOption}, resultUnknownMethod
	case req.Method == domainSale.MethodCoin:
		logger.Info().Dur("timeout", e.timing.CoinWait).Msg("Coin payment selected")
		out, result = e.settleCoin(ctx, session, logger)
	default:
		logger.Info().Dur("timeout", e.timing.ElectronicWait).Msg("Electronic payment selected")
		out, result = e.settleElectronic(ctx, session, logger)
	}
	e.finish(session, logger)

	// the display must leave the order screen even when ctx was cancelled
	e.presenter.ShowIdle(context.WithoutCancel(ctx))

	out.SaleID = req.ID
	out.Method = req.Method
	out.Duration = e.clock.Now().Sub(start)

	e.metrics.SalesTotal.WithLabelValues(req.Method.String(), result).Inc()
	e.metrics.SaleDuration.WithLabelValues(req.Method.String()).Observe(out.Duration.Seconds())
	if out.AmountCents > 0 {
		e.metrics.AmountCollectedCents.WithLabelValues(req.Method.String()).Add(float64(out.AmountCents))
	}

	span.SetAttributes(
		attribute.Int64("sale.amount_cents", out.AmountCents),
		attribute.String("sale.result", result),
	)
	if result == resultError {
		span.SetStatus(codes.Error, out.Message)
	}

	event := logger.Info()
	if !out.Clean() {
		event = logger.Warn()
	}
	event.
		Int64("amount", out.AmountCents).
		Str("payer", out.PayerName).
		Str("result", result).
		Str("message", out.Message).
		Dur("duration", out.Duration).
		Msg("Sale settled")

	return out, nil
}

func (e *Engine) finish(s *domainSale.Session, logger zerolog.Logger) {
	if s.Settled() {
		return
	}
	if err := s.Transition(domainSale.StateSettled); err != nil {
		logger.Error().Err(err).Msg("Unexpected sale state")
	}
}

// advance moves the session forward; a refused transition is a bug and is
// only logged.
func (e *Engine) advance(s *domainSale.Session, next domainSale.State, logger zerolog.Logger) {
	if err := s.Transition(next); err != nil {
		logger.Error().Err(err).Msg("Unexpected sale state")
	}
}

func recovered(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(r)
}
