package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	saleApp "github.com/roboyicecream/kioskpay/internal/application/sale"
	"github.com/roboyicecream/kioskpay/internal/infrastructure/coin"
	"github.com/roboyicecream/kioskpay/internal/infrastructure/config"
	"github.com/roboyicecream/kioskpay/internal/infrastructure/display"
	"github.com/roboyicecream/kioskpay/internal/infrastructure/mailbox"
	"github.com/roboyicecream/kioskpay/internal/infrastructure/observability"
	"github.com/roboyicecream/kioskpay/internal/infrastructure/paylink"
	infraRedis "github.com/roboyicecream/kioskpay/internal/infrastructure/redis"
	"github.com/roboyicecream/kioskpay/pkg/lifecycle"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// App owns every process-wide resource.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *observability.Metrics
	Tracer  *sdktrace.TracerProvider

	Pulses *coin.Accumulator
	Line   coin.Line
	// Simulator is set when coin.driver is simulated.
	Simulator *coin.SimulatedLine

	Mail    *mailbox.IMAPSession
	Oracle  *mailbox.Oracle
	Display *display.Client
	Redis   *redis.Client
	Engine  *saleApp.Engine

	resources *lifecycle.Sequence
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	logger = observability.WithContext(logger, map[string]any{
		"service":     serviceName,
		"instance_id": cfg.InstanceID,
	})
	logger.Info().Msg("Starting")

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(metricsNamespace, nil),
	}

	app.resources = lifecycle.New(serviceName).
		Add(lifecycle.Stage{
			Name:  "tracer",
			Open:  func(context.Context) error { app.openTracer(serviceName); return nil },
			Close: app.closeTracer,
		}).
		Add(lifecycle.Stage{
			Name:  "coin line",
			Open:  func(context.Context) error { return app.openCoinLine() },
			Close: func(context.Context) error { return app.Line.Close() },
		}).
		Add(lifecycle.Stage{
			Name:  "mail session",
			Open:  app.openOracle,
			Close: func(context.Context) error { return app.Mail.Close() },
		})
	if cfg.Redis.Enabled {
		app.resources.Add(lifecycle.Stage{
			Name:  "redis",
			Open:  app.openRedis,
			Close: func(context.Context) error { return app.Redis.Close() },
		})
	}

	if err := app.resources.Open(ctx); err != nil {
		return nil, err
	}

	app.Display = display.NewClient(display.Config{
		URL:              cfg.Display.URL,
		Timeout:          cfg.Display.Timeout,
		FailureThreshold: cfg.Display.CircuitBreakerThreshold,
		OpenTimeout:      cfg.Display.CircuitBreakerTimeout,
	}, app.Metrics, logger)

	app.Engine = saleApp.NewEngine(saleApp.EngineDeps{
		Pulses:    app.Pulses,
		Oracle:    app.Oracle,
		Presenter: app.Display,
		Linker:    paylink.NewLinker(cfg.Paylink.BaseURL, cfg.Paylink.QRSize),
		Timing: saleApp.Timing{
			CoinWait:       cfg.Sale.CoinWait,
			ElectronicWait: cfg.Sale.ElectronicWait,
			ExtraWait:      cfg.Sale.ExtraWait,
			CheckInterval:  cfg.Sale.CheckInterval,
		},
		Metrics: app.Metrics,
		Logger:  logger,
	})

	return app, nil
}

// openTracer never fails startup; the service runs untraced instead.
func (a *App) openTracer(serviceName string) {
	if !a.Config.Observability.EnableTracing {
		return
	}
	tp, err := observability.InitTracer(serviceName, a.Config.Observability.JaegerEndpoint)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		return
	}
	a.Tracer = tp
	a.Logger.Info().Msg("Tracing enabled")
}

func (a *App) closeTracer(ctx context.Context) error {
	if a.Tracer == nil {
		return nil
	}
	return observability.Shutdown(ctx, a.Tracer)
}

func (a *App) openCoinLine() error {
	a.Pulses = coin.NewAccumulator(
		coin.WithPulseValue(a.Config.Coin.PulseValue),
		coin.WithPulseHook(func(total int64) {
			a.Metrics.CoinPulses.Inc()
			a.Logger.Debug().Int64("total", total).Msg("Coin pulse")
		}),
	)

	if a.Config.Coin.Driver == config.CoinDriverSimulated {
		a.Simulator = coin.NewSimulatedLine(a.Pulses.OnPulse)
		a.Line = a.Simulator
		a.Logger.Warn().Msg("Using simulated coin line")
		return nil
	}

	line, err := coin.OpenGPIO(coin.GPIOConfig{
		Chip:     a.Config.Coin.Chip,
		Offset:   a.Config.Coin.Offset,
		Debounce: a.Config.Coin.Debounce,
	}, a.Pulses.OnPulse, a.Logger)
	if err != nil {
		return err
	}
	a.Line = line
	return nil
}

func (a *App) openOracle(ctx context.Context) error {
	locale, err := a.Config.Mail.Locale()
	if err != nil {
		return err
	}

	mail := a.Config.Mail
	imapCfg := mailbox.IMAPConfig{
		Host:              mail.Host,
		Port:              mail.Port,
		Username:          mail.Username,
		Password:          mail.Password,
		Mailbox:           mail.Mailbox,
		DialTimeout:       mail.DialTimeout,
		CommandTimeout:    mail.CommandTimeout,
		ConnectRetries:    mail.ConnectRetries,
		ConnectRetryDelay: mail.ConnectRetryDelay,
	}
	session, err := mailbox.DialIMAP(ctx, imapCfg, a.Logger)
	if err != nil {
		// coin sales do not need the mailbox; the session redials on use
		a.Logger.Warn().Err(err).Msg("Mail server unreachable, electronic payments unavailable until it answers")
		session = mailbox.NewIMAPSession(imapCfg, a.Logger)
	}

	a.Mail = session
	a.Oracle = mailbox.NewOracle(session, mail.Sender, locale, a.Logger)
	return nil
}

func (a *App) openRedis(ctx context.Context) error {
	client, err := infraRedis.NewClient(ctx, &a.Config.Redis, a.Logger)
	if err != nil {
		return err
	}
	a.Redis = client
	a.Logger.Info().Str("addr", a.Config.Redis.RedisAddr()).Msg("Connected to Redis")
	return nil
}

// Close releases resources in reverse opening order: Redis, the mail
// session (logout), the coin line, then the tracer flush.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.resources.Close(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to release resources")
	}
}
