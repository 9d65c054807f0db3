package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fieldops/auth-service/internal/config"
	"github.com/fieldops/auth-service/internal/events"
	"github.com/fieldops/auth-service/internal/notification"
	"github.com/fieldops/auth-service/internal/observability"
)

// NotificationService reacts to account events with outbound messages.
type NotificationService struct {
	dispatcher events.Dispatcher
	mailer     notification.Mailer
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, mailer notification.Mailer, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		mailer:     mailer,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventPasswordResetRequested, n.handlePasswordResetRequested)
	n.dispatcher.Subscribe(events.EventPasswordChanged, n.handlePasswordChanged)
	n.dispatcher.Subscribe(events.EventAccountRegistered, n.handleAccountRegistered)
	n.dispatcher.Subscribe(events.EventPhoneLinked, n.handlePhoneLinked)
}

func (n *NotificationService) handlePasswordResetRequested(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PasswordResetRequestedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	link, err := n.resetLink(payload.Token)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Use the link below to choose a new password. It expires at %s.\n\n%s\n\nIf you did not ask for this, ignore this email.",
		payload.ExpiresAt.UTC().Format(time.RFC1123), link)
	return n.send(ctx, payload.Email, "Reset your password", body)
}

func (n *NotificationService) handlePasswordChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PasswordChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	n.logger.Info("PasswordChanged", zap.String("account_id", event.AccountID), zap.Bool("reset", payload.Reset))
	if payload.Email == "" {
		return nil
	}
	return n.send(ctx, payload.Email, "Your password was changed",
		"The password for your account was just changed. If this was not you, reset it immediately.")
}

func (n *NotificationService) handleAccountRegistered(_ context.Context, event events.Event) error {
	n.logger.Info("AccountRegistered", zap.String("account_id", event.AccountID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handlePhoneLinked(_ context.Context, event events.Event) error {
	n.logger.Info("PhoneLinked", zap.String("account_id", event.AccountID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) resetLink(token string) (string, error) {
	base, err := url.Parse(n.cfg.ResetURLBase)
	if err != nil {
		return "", fmt.Errorf("parse reset url base: %w", err)
	}
	query := base.Query()
	query.Set("token", token)
	base.RawQuery = query.Encode()
	return base.String(), nil
}

func (n *NotificationService) send(ctx context.Context, to, subject, body string) error {
	if n.mailer == nil || strings.TrimSpace(n.cfg.EmailFrom) == "" {
		n.logger.Debug("email delivery disabled", zap.String("to", observability.RedactEmail(to)))
		return nil
	}
	return n.mailer.Send(ctx, notification.Email{
		From:    n.cfg.EmailFrom,
		To:      to,
		Subject: subject,
		Body:    body,
	})
}
