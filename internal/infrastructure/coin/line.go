package coin

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
)

// Line is a registered pulse source. It must be closed on shutdown.
type Line interface {
	Close() error
}

// GPIOConfig identifies the coin counter output line.
type GPIOConfig struct {
	Chip     string
	Offset   int
	Debounce time.Duration
}

// GPIOLine watches the coin counter output for falling edges. Debouncing is
// done by the kernel, so every delivered event is one pulse.
type GPIOLine struct {
	line   *gpiocdev.Line
	logger zerolog.Logger
}

// OpenGPIO requests the line and registers onPulse for each falling edge.
// The handler runs on the gpiocdev event goroutine.
func OpenGPIO(cfg GPIOConfig, onPulse func(), logger zerolog.Logger) (*GPIOLine, error) {
	logger = logger.With().Str("component", "coin_line").Str("chip", cfg.Chip).Int("offset", cfg.Offset).Logger()

	l, err := gpiocdev.RequestLine(cfg.Chip, cfg.Offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithDebounce(cfg.Debounce),
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			if evt.Type != gpiocdev.LineEventFallingEdge {
				return
			}
			onPulse()
		}),
		gpiocdev.WithConsumer("kioskpay"),
	)
	if err != nil {
		return nil, fmt.Errorf("request gpio line %s:%d: %w", cfg.Chip, cfg.Offset, err)
	}

	logger.Info().Dur("debounce", cfg.Debounce).Msg("Coin counter line registered")
	return &GPIOLine{line: l, logger: logger}, nil
}

func (g *GPIOLine) Close() error {
	if err := g.line.Close(); err != nil {
		return fmt.Errorf("close gpio line: %w", err)
	}
	g.logger.Info().Msg("Coin counter line released")
	return nil
}

// SimulatedLine stands in for the coin counter on machines without GPIO.
type SimulatedLine struct {
	onPulse func()
}

func NewSimulatedLine(onPulse func()) *SimulatedLine {
	return &SimulatedLine{onPulse: onPulse}
}

// Inject delivers n pulses as if n coins of the pulse value had dropped.
func (s *SimulatedLine) Inject(n int) {
	for i := 0; i < n; i++ {
		s.onPulse()
	}
}

func (s *SimulatedLine) Close() error { return nil }
