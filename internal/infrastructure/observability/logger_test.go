package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.in))
		})
	}
}

func TestInitLogger_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := InitLogger("info", "json", &buf)

	logger.Debug().Msg("hidden")
	logger.Info().Str("sale_id", "abc").Msg("Sale settled")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Sale settled", entry["message"])
	assert.Equal(t, "abc", entry["sale_id"])
	assert.Contains(t, entry, "time")
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := WithContext(InitLogger("info", "json", &buf), map[string]any{"sale_id": "s-1"})

	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"sale_id":"s-1"`)
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(InitLogger("debug", "json", &buf), "engine")

	logger.Debug().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"engine"`)
}

func TestInitLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := InitLogger("info", "console", &buf)

	logger.Info().Msg("Kiosk ready")
	assert.Contains(t, buf.String(), "Kiosk ready")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.SalesTotal.WithLabelValues("coin", "settled").Inc()
	m.CoinPulses.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["test_sales_total"])
	assert.True(t, names["test_coin_pulses_total"])
}
