package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/roboyicecream/kioskpay/pkg/retry"
	"github.com/rs/zerolog"
)

// Session is the mail store the oracle reads payment notifications from.
type Session interface {
	// Search returns the sequence numbers of messages from sender with the
	// given subject, in ascending order.
	Search(ctx context.Context, sender, subject string) ([]uint32, error)
	// FetchRaw returns the full RFC 822 message.
	FetchRaw(ctx context.Context, seq uint32) ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

// IMAPConfig holds the IMAP connection settings.
type IMAPConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	Mailbox           string
	DialTimeout       time.Duration
	CommandTimeout    time.Duration
	ConnectRetries    uint
	ConnectRetryDelay time.Duration
}

func (c IMAPConfig) addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// IMAPSession is a long-lived logged-in IMAP connection. A command that
// fails at transport level drops the connection; the next command redials
// once before giving up.
type IMAPSession struct {
	cfg    IMAPConfig
	logger zerolog.Logger

	mu     sync.Mutex
	client *client.Client
}

// NewIMAPSession creates a session that is not connected yet. The first
// command dials.
func NewIMAPSession(cfg IMAPConfig, logger zerolog.Logger) *IMAPSession {
	return &IMAPSession{
		cfg:    cfg,
		logger: logger.With().Str("component", "imap").Str("host", cfg.Host).Logger(),
	}
}

// DialIMAP connects, logs in and selects the mailbox, retrying with backoff.
func DialIMAP(ctx context.Context, cfg IMAPConfig, logger zerolog.Logger) (*IMAPSession, error) {
	s := NewIMAPSession(cfg, logger)

	c, err := retry.DoWithResult(ctx, retry.Config{
		MaxAttempts:  max(cfg.ConnectRetries, 1),
		InitialDelay: cfg.ConnectRetryDelay,
		MaxDelay:     30 * time.Second,
		OnRetry: func(n uint, err error) {
			s.logger.Warn().Err(err).Uint("attempt", n).Msg("IMAP connect failed, retrying")
		},
	}, s.dial)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.addr(), err)
	}

	s.mu.Lock()
	s.client = c
	s.mu.Unlock()

	s.logger.Info().Str("mailbox", cfg.Mailbox).Msg("Mail session established")
	return s, nil
}

func (s *IMAPSession) dial() (*client.Client, error) {
	c, err := client.DialWithDialerTLS(&net.Dialer{Timeout: s.cfg.DialTimeout}, s.cfg.addr(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	c.Timeout = s.cfg.CommandTimeout

	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("login: %w", err)
	}
	if _, err := c.Select(s.cfg.Mailbox, true); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("select %s: %w", s.cfg.Mailbox, err)
	}
	return c, nil
}

// connect must be called with mu held.
func (s *IMAPSession) connect() error {
	c, err := s.dial()
	if err != nil {
		return err
	}
	s.client = c
	return nil
}

// do runs fn against a live connection.
func (s *IMAPSession) do(ctx context.Context, fn func(c *client.Client) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil || s.client.State() == imap.LogoutState {
		s.logger.Info().Msg("Reconnecting mail session")
		if err := s.connect(); err != nil {
			return err
		}
	}

	if err := fn(s.client); err != nil {
		// the connection state is unknown after a failed command
		_ = s.client.Logout()
		s.client = nil
		return err
	}
	return nil
}

func (s *IMAPSession) Search(ctx context.Context, sender, subject string) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("From", sender)
	criteria.Header.Add("Subject", subject)

	var ids []uint32
	err := s.do(ctx, func(c *client.Client) error {
		var err error
		ids, err = c.Search(criteria)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *IMAPSession) FetchRaw(ctx context.Context, seq uint32) ([]byte, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(seq)
	section := &imap.BodySectionName{}

	var raw []byte
	err := s.do(ctx, func(c *client.Client) error {
		messages := make(chan *imap.Message, 1)
		done := make(chan error, 1)
		go func() {
			done <- c.Fetch(seqset, []imap.FetchItem{section.FetchItem()}, messages)
		}()

		var readErr error
		for msg := range messages {
			body := msg.GetBody(section)
			if body == nil {
				readErr = errors.New("server returned no body")
				continue
			}
			raw, readErr = io.ReadAll(body)
		}
		if err := <-done; err != nil {
			return err
		}
		return readErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %d: %w", seq, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("fetch %d: message vanished", seq)
	}
	return raw, nil
}

func (s *IMAPSession) Ping(ctx context.Context) error {
	return s.do(ctx, func(c *client.Client) error { return c.Noop() })
}

// Close logs out. It is safe to call on a dropped connection.
func (s *IMAPSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Logout()
	s.client = nil
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.logger.Info().Msg("Mail session closed")
	return nil
}
