package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/domain"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/mail"
)

var linkPaths = map[domain.TokenPurpose]string{
	domain.PurposeEmailConfirmation: "/confirm",
	domain.PurposeSignInLink:        "/email-sign-in",
	domain.PurposePasswordReset:     "/reset-password",
	domain.PurposeEmailChange:       "/confirm-new-email",
}

var subjects = map[events.EventType]string{
	events.EventConfirmationRequested:  "Confirm your email!",
	events.EventSignInLinkRequested:    "Your sign in Link!",
	events.EventPasswordResetRequested: "Reset your password!",
	events.EventEmailChangeRequested:   "Confirm your email!",
}

// NotificationService renders link emails for mail events and hands them to
// the sender.
type NotificationService struct {
	sender mail.Sender
	logger *zap.Logger
	cfg    config.MailConfig
}

// NewNotificationService creates the service.
func NewNotificationService(sender mail.Sender, logger *zap.Logger, cfg config.MailConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		sender: sender,
		logger: logger,
		cfg:    cfg,
	}
}

// Handle delivers the email belonging to event.
func (n *NotificationService) Handle(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MailPayload)
	if !ok {
		return fmt.Errorf("event %s: unexpected payload %T", event.Type, event.Payload)
	}
	msg, err := n.Render(event.Type, payload)
	if err != nil {
		return err
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		n.logger.Error("mail delivery failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return err
	}
	n.logger.Info("mail delivered",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("subject_id", event.SubjectID))
	return nil
}

// Render builds the message for a mail event.
func (n *NotificationService) Render(eventType events.EventType, payload events.MailPayload) (mail.Message, error) {
	path, ok := linkPaths[payload.Purpose]
	if !ok {
		return mail.Message{}, fmt.Errorf("no link for purpose %q", payload.Purpose)
	}
	link := n.cfg.PublicBaseURL + path + "?token=" + url.QueryEscape(payload.Token)

	var action string
	switch eventType {
	case events.EventSignInLinkRequested:
		action = "sign in"
	case events.EventPasswordResetRequested:
		action = "reset your password"
	default:
		action = "confirm your email"
	}

	body := strings.Join([]string{
		fmt.Sprintf("Please open this link to %s:", action),
		link,
		"",
		"If you did not request this, you can ignore this email.",
	}, "\n")

	return mail.Message{
		ToEmail:  payload.Recipient,
		Subject:  subjects[eventType],
		TextBody: body,
	}, nil
}
