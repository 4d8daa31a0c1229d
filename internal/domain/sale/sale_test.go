package sale

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentMethod_String(t *testing.T) {
	assert.Equal(t, "coin", MethodCoin.String())
	assert.Equal(t, "electronic", MethodElectronic.String())
	assert.Equal(t, "unknown", PaymentMethod(7).String())
}

func TestPaymentMethod_Known(t *testing.T) {
	assert.True(t, MethodCoin.Known())
	assert.True(t, MethodElectronic.Known())
	assert.False(t, PaymentMethod(-1).Known())
	assert.False(t, PaymentMethod(2).Known())
}

func TestNewRequest_CopiesFlavors(t *testing.T) {
	flavors := []string{"vanilla", "chocolate"}
	req := NewRequest(flavors, 2, 250, MethodCoin)
	flavors[0] = "mango"

	assert.Equal(t, []string{"vanilla", "chocolate"}, req.Flavors)
	assert.NotEqual(t, uuid.Nil, req.ID)
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		cents    int64
		expected string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{250, "2.50"},
		{1200, "12.00"},
		{-150, "-1.50"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatCents(tt.cents))
		})
	}
}

func TestNewOrderView(t *testing.T) {
	req := NewRequest([]string{"strawberry"}, 1, 150, MethodElectronic)
	view := NewOrderView(req, 2*time.Minute)

	assert.Equal(t, req.Flavors, view.Flavors)
	assert.Equal(t, 1, view.Scoops)
	assert.Equal(t, int64(150), view.PriceCents)
	assert.Equal(t, MethodElectronic, view.Method)
	assert.Equal(t, 2*time.Minute, view.Timer)
	assert.Zero(t, view.PaidCents)
}

func TestSession_CoinTransitions(t *testing.T) {
	s := NewSession(NewRequest([]string{"vanilla"}, 1, 50, MethodCoin))

	require.NoError(t, s.Transition(StateAwaitingPayment))
	require.NoError(t, s.Transition(StateStabilizing))
	require.NoError(t, s.Transition(StateSettled))
	assert.True(t, s.Settled())
}

func TestSession_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
	}{
		{"idle to stabilizing", StateIdle, StateStabilizing},
		{"settled to awaiting", StateSettled, StateAwaitingPayment},
		{"settled to settled", StateSettled, StateSettled},
		{"stabilizing back to awaiting", StateStabilizing, StateAwaitingPayment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{State: tt.from}
			err := s.Transition(tt.to)
			assert.Error(t, err)
			assert.Equal(t, tt.from, s.State)
		})
	}
}

func TestOutcome_Clean(t *testing.T) {
	assert.True(t, Outcome{AmountCents: 50}.Clean())
	assert.False(t, Outcome{Message: "No payment."}.Clean())
}
