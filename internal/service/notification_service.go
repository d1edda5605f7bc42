package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-ticket-service/internal/config"
	"github.com/spec-kit/civic-ticket-service/internal/events"
	"github.com/spec-kit/civic-ticket-service/internal/observability"
	"github.com/spec-kit/civic-ticket-service/internal/repository"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher  events.Dispatcher
	authorities repository.AuthorityRegistry
	logger      *zap.Logger
	cfg         config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, authorities repository.AuthorityRegistry, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher:  dispatcher,
		authorities: authorities,
		logger:      observability.OrNop(logger),
		cfg:         cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketEscalated, n.handleTicketEscalated)
	n.dispatcher.Subscribe(events.EventTicketVoted, n.handleTicketVoted)
	n.dispatcher.Subscribe(events.EventCommissionerResponded, n.handleCommissionerResponded)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	if p, ok := event.Payload.(events.TicketCreatedPayload); ok {
		n.sendAuthorityNotificationStub(ctx, event, p.AuthorityID)
	}
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTicketEscalated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketEscalated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTicketVoted(ctx context.Context, event events.Event) error {
	n.logger.Debug("TicketVoted", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleCommissionerResponded(ctx context.Context, event events.Event) error {
	n.logger.Info("CommissionerResponded", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendAuthorityNotificationStub(ctx context.Context, event events.Event, authorityID string) {
	if n.authorities == nil {
		return
	}
	authority, ok := n.authorities.GetByID(authorityID)
	if !ok {
		return
	}
	n.logger.Debug("sendAuthorityNotificationStub",
		zap.String("authority_id", authority.ID),
		zap.String("email", authority.Email),
		zap.String("whatsapp", authority.Whatsapp),
		zap.String("ticket_id", event.TicketID))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
