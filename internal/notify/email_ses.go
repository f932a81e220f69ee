package notify

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// SESAPI is the subset of the sesv2 client the sender needs.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends patient emails through Amazon SES v2. Message ids are
// attached as email tags so SES event destinations can report per tenant.
type SESSender struct {
	client           SESAPI
	from             string
	configurationSet string
	metrics          *metrics.SchedulingMetrics
	logger           *logging.Logger
}

// SESConfig holds configuration for AWS SES.
type SESConfig struct {
	FromEmail        string
	FromName         string
	ConfigurationSet string
	Metrics          *metrics.SchedulingMetrics
}

// NewSESSender returns nil without a client.
func NewSESSender(client SESAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	from := (&mail.Address{Name: cfg.FromName, Address: cfg.FromEmail}).String()
	return &SESSender{
		client:           client,
		from:             from,
		configurationSet: cfg.ConfigurationSet,
		metrics:          cfg.Metrics,
		logger:           logger,
	}
}

var _ EmailSender = (*SESSender)(nil)

func utf8Content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}

func (s *SESSender) input(msg EmailMessage) *sesv2.SendEmailInput {
	body := &types.Body{Text: utf8Content(msg.Body)}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}
	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{Subject: utf8Content(msg.Subject), Body: body},
		},
	}
	if s.configurationSet != "" {
		in.ConfigurationSetName = aws.String(s.configurationSet)
	}
	if msg.TenantID != uuid.Nil {
		in.EmailTags = append(in.EmailTags, types.MessageTag{Name: aws.String("tenant_id"), Value: aws.String(msg.TenantID.String())})
	}
	if msg.MessageID != uuid.Nil {
		in.EmailTags = append(in.EmailTags, types.MessageTag{Name: aws.String("message_id"), Value: aws.String(msg.MessageID.String())})
	}
	if msg.Template != "" {
		in.EmailTags = append(in.EmailTags, types.MessageTag{Name: aws.String("template"), Value: aws.String(string(msg.Template))})
	}
	return in
}

// Send delivers msg through SES.
func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: SES client not configured")
	}
	ctx, span := emailTracer.Start(ctx, "notify.email.ses", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(msg.attributes()...)

	output, err := s.client.SendEmail(ctx, s.input(msg))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ses send failed")
		s.metrics.ObserveOutbound("email:ses", "error")
		s.logger.Error("SES send failed", "error", err, "tenant_id", msg.TenantID, "message_id", msg.MessageID)
		return fmt.Errorf("notify: SES send failed: %w", err)
	}

	s.metrics.ObserveOutbound("email:ses", "sent")
	s.logger.Info("email sent via SES",
		"tenant_id", msg.TenantID,
		"message_id", msg.MessageID,
		"template", msg.Template,
		"ses_message_id", aws.ToString(output.MessageId),
	)
	return nil
}
