package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	domainErrors "github.com/roboyicecream/kioskpay/internal/domain/errors"
	domainSale "github.com/roboyicecream/kioskpay/internal/domain/sale"
	"github.com/roboyicecream/kioskpay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	acked   []string
	pending []redis.XMessage
	stale   []redis.XMessage
	// idleReads is how many reads return nothing before Read blocks.
	idleReads  int
	claimIdles []time.Duration
}

func (f *fakeSource) Stream() string { return "kiosk:sales" }

func (f *fakeSource) Read(ctx context.Context) ([]redis.XMessage, error) {
	f.mu.Lock()
	if f.idleReads > 0 {
		f.idleReads--
		f.mu.Unlock()
		return nil, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSource) ReadPending(context.Context) ([]redis.XMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	messages := f.pending
	f.pending = nil
	return messages, nil
}

func (f *fakeSource) Claim(_ context.Context, minIdle time.Duration) ([]redis.XMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimIdles = append(f.claimIdles, minIdle)
	messages := f.stale
	f.stale = nil
	return messages, nil
}

func (f *fakeSource) Ack(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, id)
	return nil
}

func (f *fakeSource) ackedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...)
}

type fakeSink struct {
	mu          sync.Mutex
	published   []domainSale.Outcome
	deadLetters []string
	err         error
}

func (f *fakeSink) PublishSettlement(_ context.Context, out domainSale.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, out)
	return f.err
}

func (f *fakeSink) PublishDeadLetter(_ context.Context, msg redis.XMessage, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadLetters = append(f.deadLetters, msg.ID)
	return nil
}

type fakeEngine struct {
	busy  int
	calls int
}

func (f *fakeEngine) Settle(_ context.Context, req domainSale.Request) (domainSale.Outcome, error) {
	f.calls++
	if f.calls <= f.busy {
		return domainSale.Outcome{}, domainErrors.ErrSaleInProgress
	}
	return domainSale.Outcome{SaleID: req.ID, Method: req.Method, AmountCents: req.PriceCents}, nil
}

func newTestProcessor(engine settler, sink settlementSink) (*saleProcessor, *fakeSource, *observability.Metrics) {
	source := &fakeSource{}
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	return &saleProcessor{
		source:   source,
		sink:     sink,
		engine:   engine,
		metrics:  metrics,
		logger:   zerolog.Nop(),
		busyWait:     time.Millisecond,
		claimMinIdle: 3 * time.Minute,
	}, source, metrics
}

func saleMessage(id string) redis.XMessage {
	return redis.XMessage{ID: id, Values: map[string]any{
		"flavors":        `["vanilla"]`,
		"scoops":         "1",
		"price":          "150",
		"payment_option": "0",
	}}
}

func TestSaleProcessor_SettlesAndPublishes(t *testing.T) {
	sink := &fakeSink{}
	p, source, metrics := newTestProcessor(&fakeEngine{}, sink)

	p.handle(context.Background(), saleMessage("1-0"))

	require.Len(t, sink.published, 1)
	assert.Equal(t, int64(150), sink.published[0].AmountCents)
	assert.Equal(t, []string{"1-0"}, source.acked)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StreamMessagesProcessed.WithLabelValues("kiosk:sales", "success")))
}

func TestSaleProcessor_WaitsForBusyEngine(t *testing.T) {
	engine := &fakeEngine{busy: 2}
	sink := &fakeSink{}
	p, source, _ := newTestProcessor(engine, sink)

	p.handle(context.Background(), saleMessage("2-0"))

	assert.Equal(t, 3, engine.calls)
	assert.Len(t, sink.published, 1)
	assert.Equal(t, []string{"2-0"}, source.acked)
}

func TestSaleProcessor_ShutdownWhileBusyLeavesMessagePending(t *testing.T) {
	engine := &fakeEngine{busy: 1000}
	sink := &fakeSink{}
	p, source, _ := newTestProcessor(engine, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	p.handle(ctx, saleMessage("3-0"))

	assert.Empty(t, sink.published)
	assert.Empty(t, source.acked)
}

func TestSaleProcessor_InvalidMessageIsDeadLettered(t *testing.T) {
	engine := &fakeEngine{}
	sink := &fakeSink{}
	p, source, metrics := newTestProcessor(engine, sink)

	p.handle(context.Background(), redis.XMessage{ID: "4-0", Values: map[string]any{"scoops": "x"}})

	assert.Zero(t, engine.calls)
	assert.Empty(t, sink.published)
	assert.Equal(t, []string{"4-0"}, sink.deadLetters)
	assert.Equal(t, []string{"4-0"}, source.acked)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StreamMessagesProcessed.WithLabelValues("kiosk:sales", "invalid")))
}

func TestSaleProcessor_PublishFailureStillAcks(t *testing.T) {
	p, source, metrics := newTestProcessor(&fakeEngine{}, &fakeSink{err: errors.New("redis down")})

	p.handle(context.Background(), saleMessage("5-0"))

	assert.Equal(t, []string{"5-0"}, source.acked)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StreamMessagesProcessed.WithLabelValues("kiosk:sales", "publish_error")))
}

func TestSaleProcessor_RunStopsOnCancel(t *testing.T) {
	p, _, _ := newTestProcessor(&fakeEngine{}, &fakeSink{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("processor did not stop")
	}
}

func runUntilAcked(t *testing.T, p *saleProcessor, source *fakeSource, n int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.run(ctx) }()

	assert.Eventually(t, func() bool { return len(source.ackedIDs()) >= n }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestSaleProcessor_SettlesRequestLeftPendingByShutdown(t *testing.T) {
	msg := saleMessage("3-0")

	// first run: shutdown arrives while an HTTP sale holds the engine
	first, source, _ := newTestProcessor(&fakeEngine{busy: 1000}, &fakeSink{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	first.handle(ctx, msg)
	cancel()
	require.Empty(t, source.ackedIDs())

	// next start: the entry is still in this consumer's pending list
	engine := &fakeEngine{}
	sink := &fakeSink{}
	second, source, metrics := newTestProcessor(engine, sink)
	source.pending = []redis.XMessage{msg}

	runUntilAcked(t, second, source, 1)

	assert.Equal(t, 1, engine.calls)
	require.Len(t, sink.published, 1)
	assert.Equal(t, int64(150), sink.published[0].AmountCents)
	assert.Equal(t, []string{"3-0"}, source.ackedIDs())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StreamMessagesProcessed.WithLabelValues("kiosk:sales", "success")))
}

func TestSaleProcessor_ClaimsStaleRequestsWhenIdle(t *testing.T) {
	sink := &fakeSink{}
	p, source, _ := newTestProcessor(&fakeEngine{}, sink)
	source.idleReads = 1
	source.stale = []redis.XMessage{saleMessage("7-0")}

	runUntilAcked(t, p, source, 1)

	assert.Equal(t, []string{"7-0"}, source.ackedIDs())
	assert.Len(t, sink.published, 1)
	source.mu.Lock()
	defer source.mu.Unlock()
	require.NotEmpty(t, source.claimIdles)
	assert.Equal(t, 3*time.Minute, source.claimIdles[0])
}
