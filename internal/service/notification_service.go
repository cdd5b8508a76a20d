package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/clinic-service/internal/events"
	"github.com/spec-kit/clinic-service/internal/mail"
)

// NotificationService delivers outbound email and reacts to auth events.
type NotificationService struct {
	dispatcher events.Dispatcher
	mailer     mail.Sender
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, mailer mail.Sender, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		mailer:     mailer,
		logger:     logger,
	}
}

// Send delivers one message. It satisfies otp.Sender.
func (n *NotificationService) Send(ctx context.Context, to, subject, body string) error {
	if err := n.mailer.Send(ctx, to, subject, body); err != nil {
		n.logger.Warn("email delivery failed", zap.String("to", to), zap.String("subject", subject), zap.Error(err))
		return err
	}
	n.logger.Debug("email delivered", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, t := range []events.EventType{
		events.EventAccountRegistered,
		events.EventLoginSucceeded,
		events.EventLoginFailed,
		events.EventPasswordResetRequested,
		events.EventDoctorAssigned,
	} {
		n.dispatcher.Subscribe(t, n.handleAudit)
	}
	n.dispatcher.Subscribe(events.EventPasswordReset, n.handlePasswordUpdated)
	n.dispatcher.Subscribe(events.EventPasswordChanged, n.handlePasswordUpdated)
}

func (n *NotificationService) handleAudit(_ context.Context, event events.Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.Time("timestamp", event.Timestamp),
	}
	if event.Subject.SubjectID > 0 {
		fields = append(fields,
			zap.Int64("subject_id", event.Subject.SubjectID),
			zap.String("role", string(event.Subject.Role)))
	}
	if event.Email != "" {
		fields = append(fields, zap.String("email", event.Email))
	}
	if event.Payload != nil {
		fields = append(fields, zap.Any("payload", event.Payload))
	}
	n.logger.Info("auth event", fields...)
	return nil
}

func (n *NotificationService) handlePasswordUpdated(ctx context.Context, event events.Event) error {
	_ = n.handleAudit(ctx, event)
	if event.Email == "" {
		return nil
	}
	return n.Send(ctx, event.Email, "Your password was changed",
		"The password for your account was just changed. If this was not you, reset it immediately.")
}
