package messaging

import (
	"context"
	"errors"
	"strings"

	"github.com/wolfman30/clinic-scheduler/internal/messaging/telnyxclient"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// TextSender abstracts a plain SMS provider.
type TextSender interface {
	SendText(ctx context.Context, from, to, body string) error
}

// SMSSender renders the catalog fallback text and sends it over SMS.
type SMSSender struct {
	provider string
	text     TextSender
	from     string
	catalog  Catalog
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
}

// NewSMSSender wraps a TextSender. provider names the channel in logs and metrics.
func NewSMSSender(provider string, text TextSender, from string, catalog Catalog, m *metrics.SchedulingMetrics, logger *logging.Logger) *SMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &SMSSender{provider: provider, text: text, from: from, catalog: catalog, metrics: m, logger: logger}
}

var _ TemplateSender = (*SMSSender)(nil)

// Channel implements TemplateSender.
func (s *SMSSender) Channel() string { return "sms:" + s.provider }

// SendTemplate implements TemplateSender.
func (s *SMSSender) SendTemplate(ctx context.Context, msg TemplateMessage) error {
	if s.text == nil {
		return errors.New("messaging: sms provider not configured")
	}
	spec, err := s.catalog.Lookup(msg.Template)
	if err != nil {
		return err
	}
	body := spec.Fill(msg.Variables)
	if strings.TrimSpace(body) == "" {
		return errors.New("messaging: body required")
	}
	if err := s.text.SendText(ctx, s.from, msg.To, body); err != nil {
		s.metrics.ObserveOutbound(s.Channel(), "failed")
		return err
	}
	s.metrics.ObserveOutbound(s.Channel(), "sent")
	s.logger.Info("sms template sent", "provider", s.provider, "tenant_id", msg.TenantID, "template", msg.Template)
	return nil
}

type telnyxMessenger interface {
	SendMessage(ctx context.Context, req telnyxclient.SendMessageRequest) (*telnyxclient.MessageResponse, error)
}

// TelnyxText adapts the Telnyx client to TextSender.
type TelnyxText struct {
	client             telnyxMessenger
	messagingProfileID string
}

// NewTelnyxText builds a TextSender over a Telnyx client.
func NewTelnyxText(client telnyxMessenger, messagingProfileID string) *TelnyxText {
	return &TelnyxText{client: client, messagingProfileID: messagingProfileID}
}

// SendText implements TextSender.
func (t *TelnyxText) SendText(ctx context.Context, from, to, body string) error {
	if t == nil || t.client == nil {
		return errors.New("messaging: telnyx client not configured")
	}
	_, err := t.client.SendMessage(ctx, telnyxclient.SendMessageRequest{
		From:               from,
		To:                 to,
		Body:               body,
		MessagingProfileID: t.messagingProfileID,
	})
	return err
}
