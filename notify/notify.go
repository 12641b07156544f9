// Package notify defines the outbound-notification boundary of the engine
// and ships a Mailgun implementation. The engine only sees the Sender
// contract; delivery failures surface as ErrDelivery.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrDelivery wraps every transport-level send failure.
var ErrDelivery = errors.New("notify: delivery failed")

// Message is a single outbound email.
type Message struct {
	To       string
	Subject  string
	Text     string
	FromName string
	ReplyTo  string
}

// Sender delivers messages to end users and tenant owners.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mailgun sends mail through the Mailgun HTTP API.
type Mailgun struct {
	endpoint    string
	apiKey      string
	fromAddress string
	client      *http.Client
}

// NewMailgun constructs a Mailgun sender. endpoint is the full messages URL
// for the sending domain; fromAddress is the envelope sender.
func NewMailgun(endpoint, apiKey, fromAddress string) (*Mailgun, error) {
	if endpoint == "" || apiKey == "" || fromAddress == "" {
		return nil, errors.New("notify: mailgun endpoint, key, and from address required")
	}

	return &Mailgun{
		endpoint:    endpoint,
		apiKey:      apiKey,
		fromAddress: fromAddress,
		client:      &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Send posts the message to Mailgun. Any non-200 response or transport
// error is reported as ErrDelivery.
func (m *Mailgun) Send(ctx context.Context, msg Message) error {
	form := url.Values{}
	form.Set("from", fmt.Sprintf("%s <%s>", msg.FromName, m.fromAddress))
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	form.Set("text", msg.Text)
	if msg.ReplyTo != "" {
		form.Set("h:Reply-To", msg.ReplyTo)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", m.apiKey)

	res, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("%w: mailgun status %d: %s", ErrDelivery, res.StatusCode, body)
	}

	return nil
}

// LogSender writes messages to the log instead of delivering them. Used in
// development and tests.
type LogSender struct {
	Logger *zap.Logger
}

// Send logs the message and always succeeds.
func (l *LogSender) Send(_ context.Context, msg Message) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("outbound email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("from_name", msg.FromName),
		zap.String("text", msg.Text),
	)
	return nil
}
