package display

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	domainErrors "github.com/roboyicecream/kioskpay/internal/domain/errors"
	domainSale "github.com/roboyicecream/kioskpay/internal/domain/sale"
	"github.com/roboyicecream/kioskpay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const breakerName = "display"

const (
	viewOrder = "order"
	viewIdle  = "idle"
)

type Config struct {
	URL              string
	Timeout          time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Client pushes order and idle screens to the kiosk tablet as form posts.
// Delivery failures are logged and counted, never returned.
type Client struct {
	url     string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewClient(cfg Config, metrics *observability.Metrics, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	c := &Client{
		url: cfg.URL,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		metrics: metrics,
		logger:  logger.With().Str("component", "display").Str("url", cfg.URL).Logger(),
	}

	c.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Display circuit breaker state changed")
			if c.metrics != nil {
				c.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})

	return c
}

func (c *Client) ShowOrder(ctx context.Context, view domainSale.OrderView) {
	c.push(ctx, viewOrder, orderForm(view))
}

func (c *Client) ShowIdle(ctx context.Context) {
	form := url.Values{}
	form.Set("default", formBool(true))
	c.push(ctx, viewIdle, form)
}

func (c *Client) push(ctx context.Context, view string, form url.Values) {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.post(ctx, form)
	})

	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "rejected"
		c.logger.Error().Err(err).Str("view", view).Msg("Display update skipped, circuit open")
	default:
		result = "error"
		c.logger.Error().Err(err).Str("view", view).Msg("Display update failed")
	}

	if c.metrics != nil {
		c.metrics.DisplayUpdates.WithLabelValues(view, result).Inc()
		c.metrics.CircuitBreakerRequests.WithLabelValues(breakerName, result).Inc()
	}
}

func (c *Client) post(ctx context.Context, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %w", domainErrors.ErrDisplayUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domainErrors.ErrDisplayUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", domainErrors.ErrDisplayUnavailable, resp.StatusCode)
	}
	return nil
}

// orderForm encodes the order screen the way the tablet flow reads it:
// repeated flavors, whole seconds for the timer and either the coin total
// or the QR image with its link.
func orderForm(view domainSale.OrderView) url.Values {
	form := url.Values{}
	form.Set("default", formBool(false))
	for _, f := range view.Flavors {
		form.Add("flavors", f)
	}
	form.Set("scoops", strconv.Itoa(view.Scoops))
	form.Set("price", strconv.FormatInt(view.PriceCents, 10))
	form.Set("payment_option", strconv.Itoa(int(view.Method)))
	form.Set("timer", strconv.Itoa(int(view.Timer/time.Second)))

	switch view.Method {
	case domainSale.MethodCoin:
		form.Set("paid", strconv.FormatInt(view.PaidCents, 10))
	case domainSale.MethodElectronic:
		form.Set("encoded", view.EncodedQR)
		form.Set("paypal_url", view.PaymentURL)
	}
	return form
}

// the tablet flow compares against capitalised booleans
func formBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
