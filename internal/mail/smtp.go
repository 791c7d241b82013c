package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/wiki-engagement/internal/circuitbreaker"
	"github.com/wiki-engagement/internal/clock"
	"github.com/wiki-engagement/internal/logging"
)

// SMTPConfig configures the SMTP transport
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// Timeout bounds dialing plus the whole SMTP conversation
	Timeout         time.Duration
	RatePerSecond   float64
	BreakerFailures int
	BreakerTimeout  time.Duration

	Clock  clock.Clock
	Logger *logging.Logger
}

// transportFunc performs one delivery of a fully built message
type transportFunc func(ctx context.Context, to string, msg []byte) error

// SMTPSender delivers email over SMTP, paced by a rate limiter and guarded by a circuit breaker
type SMTPSender struct {
	cfg       SMTPConfig
	limiter   *rate.Limiter
	breaker   *circuitbreaker.CircuitBreaker
	transport transportFunc
	logger    *logging.Logger
}

// NewSMTPSender creates a new SMTP sender
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetGlobalLogger()
	}

	breakerCfg := circuitbreaker.DefaultConfig("smtp")
	if cfg.BreakerFailures > 0 {
		breakerCfg.MaxFailures = cfg.BreakerFailures
	}
	if cfg.BreakerTimeout > 0 {
		breakerCfg.Timeout = cfg.BreakerTimeout
	}
	breakerCfg.Clock = cfg.Clock
	breakerCfg.Logger = cfg.Logger

	s := &SMTPSender{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		breaker: circuitbreaker.NewCircuitBreaker(breakerCfg),
		logger:  cfg.Logger.WithField("component", "smtp"),
	}
	s.transport = s.deliver
	return s, nil
}

// Send builds the message and delivers it.
// An open breaker is reported as ErrTransportUnavailable.
func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	msg := buildMessage(s.cfg.From, to, subject, htmlBody, s.now())
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.transport(ctx, to, msg)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	return err
}

// BreakerState exposes the breaker state for health reporting
func (s *SMTPSender) BreakerState() circuitbreaker.State {
	return s.breaker.GetState()
}

func (s *SMTPSender) now() time.Time {
	if s.cfg.Clock != nil {
		return s.cfg.Clock.Now()
	}
	return time.Now().UTC()
}

func (s *SMTPSender) deliver(ctx context.Context, to string, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return client.Quit()
}

// buildMessage renders the RFC 5322 message for one HTML email
func buildMessage(from, to, subject, htmlBody string, now time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@wiki-engagement>\r\n", uuid.New().String())
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return b.Bytes()
}
