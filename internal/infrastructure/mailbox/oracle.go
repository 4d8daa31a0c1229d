package mailbox

import (
	"context"
	"errors"
	"fmt"
	"slices"

	domainErrors "github.com/roboyicecream/kioskpay/internal/domain/errors"
	"github.com/roboyicecream/kioskpay/internal/domain/notification"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Oracle answers "how many payment notifications exist" and "what does the
// newest one say" against a mail Session.
type Oracle struct {
	session Session
	sender  string
	locale  notification.Locale
	logger  zerolog.Logger
	tracer  trace.Tracer
}

func NewOracle(session Session, sender string, locale notification.Locale, logger zerolog.Logger) *Oracle {
	return &Oracle{
		session: session,
		sender:  sender,
		locale:  locale,
		logger:  logger.With().Str("component", "payment_oracle").Logger(),
		tracer:  otel.Tracer("kioskpay/mailbox"),
	}
}

func (o *Oracle) PendingCount(ctx context.Context) (int, error) {
	ctx, span := o.tracer.Start(ctx, "oracle.pending_count")
	defer span.End()

	ids, err := o.session.Search(ctx, o.sender, o.locale.Subject())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("%w: %w", domainErrors.ErrOracleUnavailable, err)
	}

	span.SetAttributes(attribute.Int("notifications", len(ids)))
	return len(ids), nil
}

// LatestPayment parses the notification with the highest sequence number.
// A notification whose amount cannot be read still yields a Record with
// ParseIssue set.
func (o *Oracle) LatestPayment(ctx context.Context) (notification.Record, error) {
	ctx, span := o.tracer.Start(ctx, "oracle.latest_payment")
	defer span.End()

	record, err := o.latest(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return notification.Record{}, err
	}

	span.SetAttributes(
		attribute.Int64("amount_cents", record.AmountCents),
		attribute.String("parse_issue", record.ParseIssue),
	)
	return record, nil
}

func (o *Oracle) latest(ctx context.Context) (notification.Record, error) {
	ids, err := o.session.Search(ctx, o.sender, o.locale.Subject())
	if err != nil {
		return notification.Record{}, fmt.Errorf("%w: %w", domainErrors.ErrOracleUnavailable, err)
	}
	if len(ids) == 0 {
		return notification.Record{}, fmt.Errorf("no notification from %s: %w", o.sender, domainErrors.ErrNoMatchFound)
	}

	seq := slices.Max(ids)
	raw, err := o.session.FetchRaw(ctx, seq)
	if err != nil {
		return notification.Record{}, fmt.Errorf("%w: %w", domainErrors.ErrOracleUnavailable, err)
	}

	body, err := HTMLBody(raw)
	if err != nil {
		return notification.Record{}, fmt.Errorf("message %d: %w: %w", seq, domainErrors.ErrNoMatchFound, err)
	}

	record, err := notification.ParseBody(body, o.locale)
	if err != nil {
		return notification.Record{}, fmt.Errorf("message %d: %w", seq, err)
	}
	if record.ParseIssue != "" {
		o.logger.Warn().
			Err(record.Issue).
			Uint32("seq", seq).
			Str("payer", record.PayerName).
			Msg("Payment notification could not be read")
	}
	return record, nil
}

// Ping reports whether the mail session answers.
func (o *Oracle) Ping(ctx context.Context) error {
	if err := o.session.Ping(ctx); err != nil {
		return errors.Join(domainErrors.ErrOracleUnavailable, err)
	}
	return nil
}
