package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

var emailTracer = otel.Tracer("scheduler.internal.notify.email")

const defaultFromName = "Clinic Scheduler"

// EmailSender delivers one email. SendGrid and SES implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is one rendered patient email. TenantID, MessageID and
// Template travel to the provider as metadata so bounces and complaints can
// be traced back to the message log row.
type EmailMessage struct {
	TenantID  uuid.UUID
	MessageID uuid.UUID
	Template  scheduling.MessageType
	To        string
	ToName    string
	Subject   string
	Body      string
	HTML      string
}

func (m EmailMessage) attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("tenant.id", m.TenantID.String()),
		attribute.String("message.id", m.MessageID.String()),
		attribute.String("message.template", string(m.Template)),
	}
}

type sendgridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender sends patient emails through the SendGrid v3 API.
type SendGridSender struct {
	client    sendgridClient
	fromEmail string
	fromName  string
	metrics   *metrics.SchedulingMetrics
	logger    *logging.Logger
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	Metrics   *metrics.SchedulingMetrics
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

var _ EmailSender = (*SendGridSender)(nil)

// build lays out one personalization with the message ids as custom args
// and the template as category.
func (s *SendGridSender) build(msg EmailMessage) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.fromName, s.fromEmail))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	if msg.TenantID != uuid.Nil {
		p.SetCustomArg("tenant_id", msg.TenantID.String())
	}
	if msg.MessageID != uuid.Nil {
		p.SetCustomArg("message_id", msg.MessageID.String())
	}
	m.AddPersonalizations(p)
	if msg.Template != "" {
		m.AddCategories(string(msg.Template))
	}

	m.AddContent(mail.NewContent("text/plain", msg.Body))
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	return m
}

// Send delivers msg. Any status of 400 or above is an error.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	ctx, span := emailTracer.Start(ctx, "notify.email.sendgrid", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(msg.attributes()...)

	response, err := s.client.SendWithContext(ctx, s.build(msg))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sendgrid request failed")
		s.metrics.ObserveOutbound("email:sendgrid", "error")
		s.logger.Error("sendgrid send failed", "error", err, "tenant_id", msg.TenantID, "message_id", msg.MessageID)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", response.StatusCode))
	if response.StatusCode >= 400 {
		span.SetStatus(codes.Error, "sendgrid rejected message")
		s.metrics.ObserveOutbound("email:sendgrid", "rejected")
		s.logger.Error("sendgrid returned error status",
			"status", response.StatusCode,
			"body", response.Body,
			"tenant_id", msg.TenantID,
			"message_id", msg.MessageID,
		)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.metrics.ObserveOutbound("email:sendgrid", "sent")
	s.logger.Info("email sent via sendgrid",
		"tenant_id", msg.TenantID,
		"message_id", msg.MessageID,
		"template", msg.Template,
		"status", response.StatusCode,
	)
	return nil
}

// StubEmailSender logs instead of sending. It stands in when the selected
// provider is not configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: would send email",
		"tenant_id", msg.TenantID,
		"message_id", msg.MessageID,
		"template", msg.Template,
		"subject", msg.Subject,
	)
	return nil
}
