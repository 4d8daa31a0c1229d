package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/roboyicecream/kioskpay/internal/domain/notification"
	"github.com/spf13/viper"
)

const (
	CoinDriverGPIO      = "gpio"
	CoinDriverSimulated = "simulated"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Sale          SaleConfig          `mapstructure:"sale"`
	Coin          CoinConfig          `mapstructure:"coin"`
	Mail          MailConfig          `mapstructure:"mail"`
	Display       DisplayConfig       `mapstructure:"display"`
	Paylink       PaylinkConfig       `mapstructure:"paylink"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// SaleConfig holds the payment windows of a sale.
type SaleConfig struct {
	CoinWait       time.Duration `mapstructure:"coin_wait"`
	ElectronicWait time.Duration `mapstructure:"electronic_wait"`
	ExtraWait      time.Duration `mapstructure:"extra_wait"`
	CheckInterval  time.Duration `mapstructure:"check_interval"`
}

// Longest is the worst-case duration of a single sale.
func (c SaleConfig) Longest() time.Duration {
	return max(c.CoinWait+c.ExtraWait, c.ElectronicWait)
}

type CoinConfig struct {
	Driver     string        `mapstructure:"driver"`
	Chip       string        `mapstructure:"chip"`
	Offset     int           `mapstructure:"offset"`
	Debounce   time.Duration `mapstructure:"debounce"`
	PulseValue int64         `mapstructure:"pulse_value"`
}

type MailConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	CredentialsFile   string        `mapstructure:"credentials_file"`
	Mailbox           string        `mapstructure:"mailbox"`
	Sender            string        `mapstructure:"sender"`
	Language          string        `mapstructure:"language"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout"`
	CommandTimeout    time.Duration `mapstructure:"command_timeout"`
	ConnectRetries    uint          `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// Locale returns the parsed notification language.
func (c MailConfig) Locale() (notification.Locale, error) {
	return notification.ParseLocale(c.Language)
}

type DisplayConfig struct {
	URL                     string        `mapstructure:"url"`
	Timeout                 time.Duration `mapstructure:"timeout"`
	CircuitBreakerThreshold uint32        `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

type PaylinkConfig struct {
	BaseURL string `mapstructure:"base_url"`
	QRSize  int    `mapstructure:"qr_size"`
}

type RedisConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    uint          `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
	SalesStream       string        `mapstructure:"sales_stream"`
	SettlementsStream string        `mapstructure:"settlements_stream"`
	DeadLetterStream  string        `mapstructure:"dead_letter_stream"`
	ConsumerGroup     string        `mapstructure:"consumer_group"`
	BlockDuration     time.Duration `mapstructure:"block_duration"`
	// ClaimMinIdle is how long a sale request may stay pending before
	// another run takes it over.
	ClaimMinIdle time.Duration `mapstructure:"claim_min_idle"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// KIOSK_MAIL_HOST -> mail.host
	v.SetEnvPrefix("KIOSK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/kioskpay")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Mail.loadCredentials(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// loadCredentials fills username and password from the credentials file
// (first line username, second line password) when they are not set.
func (c *MailConfig) loadCredentials() error {
	if c.Username != "" && c.Password != "" {
		return nil
	}
	if c.CredentialsFile == "" {
		return nil
	}

	f, err := os.Open(c.CredentialsFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open mail credentials: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && len(lines) < 2 {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read mail credentials: %w", err)
	}
	if len(lines) < 2 {
		return fmt.Errorf("mail credentials file %s needs a username and a password line", c.CredentialsFile)
	}

	if c.Username == "" {
		c.Username = lines[0]
	}
	if c.Password == "" {
		c.Password = lines[1]
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	} else if c.Server.WriteTimeout <= c.Sale.Longest() {
		// sales are answered synchronously
		errs = append(errs, fmt.Errorf("server.write_timeout must exceed the longest sale (%s)", c.Sale.Longest()))
	}

	if c.Sale.CoinWait <= 0 {
		errs = append(errs, fmt.Errorf("sale.coin_wait must be positive"))
	}
	if c.Sale.ElectronicWait <= 0 {
		errs = append(errs, fmt.Errorf("sale.electronic_wait must be positive"))
	}
	if c.Sale.ExtraWait < 0 {
		errs = append(errs, fmt.Errorf("sale.extra_wait must not be negative"))
	}
	if c.Sale.CheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("sale.check_interval must be positive"))
	}

	switch c.Coin.Driver {
	case CoinDriverGPIO:
		if c.Coin.Chip == "" {
			errs = append(errs, fmt.Errorf("coin.chip is required for the gpio driver"))
		}
		if c.Coin.Offset < 0 {
			errs = append(errs, fmt.Errorf("coin.offset must not be negative"))
		}
	case CoinDriverSimulated:
	default:
		errs = append(errs, fmt.Errorf("coin.driver must be %q or %q, got %q", CoinDriverGPIO, CoinDriverSimulated, c.Coin.Driver))
	}
	if c.Coin.PulseValue <= 0 {
		errs = append(errs, fmt.Errorf("coin.pulse_value must be positive"))
	}

	if c.Mail.Host == "" {
		errs = append(errs, fmt.Errorf("mail.host is required"))
	}
	if c.Mail.Port <= 0 {
		errs = append(errs, fmt.Errorf("mail.port must be positive"))
	}
	if c.Mail.Username == "" || c.Mail.Password == "" {
		errs = append(errs, fmt.Errorf("mail.username and mail.password are required (directly or via mail.credentials_file)"))
	}
	if c.Mail.Sender == "" {
		errs = append(errs, fmt.Errorf("mail.sender is required"))
	}
	if _, err := c.Mail.Locale(); err != nil {
		errs = append(errs, fmt.Errorf("mail.language: %w", err))
	}

	if c.Display.URL == "" {
		errs = append(errs, fmt.Errorf("display.url is required"))
	}
	if c.Paylink.BaseURL == "" {
		errs = append(errs, fmt.Errorf("paylink.base_url is required"))
	}

	if c.Redis.Enabled {
		if c.Redis.Port <= 0 {
			errs = append(errs, fmt.Errorf("redis.port must be positive"))
		}
		if c.Redis.SalesStream == "" || c.Redis.SettlementsStream == "" || c.Redis.DeadLetterStream == "" {
			errs = append(errs, fmt.Errorf("redis.sales_stream, redis.settlements_stream and redis.dead_letter_stream are required"))
		}
		if c.Redis.ClaimMinIdle <= c.Sale.Longest() {
			// a shorter idle time would take over a sale that is still running
			errs = append(errs, fmt.Errorf("redis.claim_min_idle must exceed the longest sale (%s)", c.Sale.Longest()))
		}
		if c.Redis.ConsumerGroup == "" {
			errs = append(errs, fmt.Errorf("redis.consumer_group is required"))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "150s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 60)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Sale defaults
	v.SetDefault("sale.coin_wait", "60s")
	v.SetDefault("sale.electronic_wait", "120s")
	v.SetDefault("sale.extra_wait", "10s")
	v.SetDefault("sale.check_interval", "1s")

	// Coin acceptor defaults
	v.SetDefault("coin.driver", CoinDriverGPIO)
	v.SetDefault("coin.chip", "gpiochip0")
	v.SetDefault("coin.offset", 17)
	v.SetDefault("coin.debounce", "100ms")
	v.SetDefault("coin.pulse_value", 10)

	// Mail defaults
	v.SetDefault("mail.host", "imap-mail.outlook.com")
	v.SetDefault("mail.port", 993)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.credentials_file", "credentials.txt")
	v.SetDefault("mail.mailbox", "INBOX")
	v.SetDefault("mail.sender", "service@paypal.de")
	v.SetDefault("mail.language", "DE")
	v.SetDefault("mail.dial_timeout", "10s")
	v.SetDefault("mail.command_timeout", "15s")
	v.SetDefault("mail.connect_retries", 5)
	v.SetDefault("mail.connect_retry_delay", "2s")

	// Display defaults
	v.SetDefault("display.url", "http://localhost:1880/image")
	v.SetDefault("display.timeout", "3s")
	v.SetDefault("display.circuit_breaker_threshold", 5)
	v.SetDefault("display.circuit_breaker_timeout", "30s")

	// Payment link defaults
	v.SetDefault("paylink.base_url", "https://www.paypal.me/roboyicecream/")
	v.SetDefault("paylink.qr_size", 256)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")
	v.SetDefault("redis.sales_stream", "kiosk:sales")
	v.SetDefault("redis.settlements_stream", "kiosk:settlements")
	v.SetDefault("redis.dead_letter_stream", "kiosk:sales:dlq")
	v.SetDefault("redis.consumer_group", "kiosk-engines")
	v.SetDefault("redis.block_duration", "2s")
	v.SetDefault("redis.claim_min_idle", "3m")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	v.SetDefault("instance_id", "kiosk-1")
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
