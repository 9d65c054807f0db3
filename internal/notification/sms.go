package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fieldops/auth-service/internal/observability"
)

// ErrGatewayNotConfigured is returned when the HTTP gateway lacks an endpoint or key.
var ErrGatewayNotConfigured = errors.New("sms: gateway not configured")

// SMSSender delivers a text message to a phone number.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

// HTTPSMSSender posts messages to a JSON SMS gateway.
type HTTPSMSSender struct {
	baseURL string
	apiKey  string
	sender  string
	client  *http.Client
}

// NewHTTPSMSSender returns a gateway client with the given request timeout.
func NewHTTPSMSSender(baseURL, apiKey, sender string, timeout time.Duration) *HTTPSMSSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSMSSender{
		baseURL: baseURL,
		apiKey:  apiKey,
		sender:  sender,
		client:  &http.Client{Timeout: timeout},
	}
}

type smsRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

// Send delivers message to phone. Any non-2xx response is an error; the body is never logged.
func (s *HTTPSMSSender) Send(ctx context.Context, phone, message string) error {
	if s.baseURL == "" || s.apiKey == "" {
		return ErrGatewayNotConfigured
	}
	raw, err := json.Marshal(smsRequest{To: phone, From: s.sender, Message: message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms: send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms: gateway responded with status %d", resp.StatusCode)
	}
	return nil
}

// LogSMSSender writes messages to the logger instead of sending them. For development only.
type LogSMSSender struct {
	logger      *zap.Logger
	withMessage bool
}

// NewLogSMSSender constructs a logging sender. The message body, which carries
// the verification code, is only logged when withMessage is set.
func NewLogSMSSender(logger *zap.Logger, withMessage bool) *LogSMSSender {
	return &LogSMSSender{logger: logger, withMessage: withMessage}
}

// Send logs the redacted recipient and, if enabled, the message.
func (s *LogSMSSender) Send(_ context.Context, phone, message string) error {
	if s == nil || s.logger == nil {
		return nil
	}
	fields := []zap.Field{zap.String("to", observability.RedactPhone(phone))}
	if s.withMessage {
		fields = append(fields, zap.String("message", message))
	}
	s.logger.Info("sms", fields...)
	return nil
}
