package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-scheduler/internal/integrations"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

var whatsappTracer = otel.Tracer("scheduler.internal.messaging.whatsapp")

const (
	defaultWhatsAppBaseURL    = "https://graph.facebook.com"
	defaultWhatsAppAPIVersion = "v19.0"
)

// WhatsAppSender sends template messages through the WhatsApp Cloud API
// using each tenant's stored MetaWhatsApp credentials.
type WhatsAppSender struct {
	baseURL     string
	credentials integrations.Source
	catalog     Catalog
	httpClient  *http.Client
	maxAttempts int
	backoff     time.Duration
	metrics     *metrics.SchedulingMetrics
	logger      *logging.Logger
}

// WhatsAppConfig configures a WhatsAppSender.
type WhatsAppConfig struct {
	BaseURL     string
	Credentials integrations.Source
	Catalog     Catalog
	HTTPClient  *http.Client
	MaxAttempts int
	Backoff     time.Duration
	Metrics     *metrics.SchedulingMetrics
}

// NewWhatsAppSender builds a sender with sane defaults.
func NewWhatsAppSender(cfg WhatsAppConfig, logger *logging.Logger) *WhatsAppSender {
	if logger == nil {
		logger = logging.Default()
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultWhatsAppBaseURL
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	return &WhatsAppSender{
		baseURL:     baseURL,
		credentials: cfg.Credentials,
		catalog:     catalog,
		httpClient:  httpClient,
		maxAttempts: attempts,
		backoff:     backoff,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

var _ TemplateSender = (*WhatsAppSender)(nil)

// Channel implements TemplateSender.
func (s *WhatsAppSender) Channel() string { return "whatsapp" }

type waParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type waComponent struct {
	Type       string        `json:"type"`
	Parameters []waParameter `json:"parameters"`
}

type waTemplate struct {
	Name       string        `json:"name"`
	Language   waLanguage    `json:"language"`
	Components []waComponent `json:"components,omitempty"`
}

type waLanguage struct {
	Code string `json:"code"`
}

type waRequest struct {
	MessagingProduct string     `json:"messaging_product"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Template         waTemplate `json:"template"`
}

type waErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendTemplate posts one template message, retrying 429 and 5xx responses.
func (s *WhatsAppSender) SendTemplate(ctx context.Context, msg TemplateMessage) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("messaging: to required")
	}
	spec, err := s.catalog.Lookup(msg.Template)
	if err != nil {
		return err
	}
	creds, err := integrations.WhatsApp(ctx, s.credentials, msg.TenantID)
	if err != nil {
		return fmt.Errorf("messaging: whatsapp credentials: %w", err)
	}

	ctx, span := whatsappTracer.Start(ctx, "messaging.whatsapp.send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("scheduler.tenant_id", msg.TenantID.String()),
		attribute.String("scheduler.template", string(msg.Template)),
	)

	params := make([]waParameter, 0, len(msg.Variables))
	for _, v := range msg.Variables {
		params = append(params, waParameter{Type: "text", Text: v})
	}
	payload := waRequest{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(msg.To, "+"),
		Type:             "template",
		Template: waTemplate{
			Name:     spec.WhatsAppName,
			Language: waLanguage{Code: spec.Language},
		},
	}
	if len(params) > 0 {
		payload.Template.Components = []waComponent{{Type: "body", Parameters: params}}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("messaging: marshal whatsapp payload: %w", err)
	}

	version := creds.APIVersion
	if version == "" {
		version = defaultWhatsAppAPIVersion
	}
	endpoint := fmt.Sprintf("%s/%s/%s/messages", s.baseURL, version, creds.PhoneNumberID)

	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		retry, err := s.post(ctx, endpoint, creds.AccessToken, body)
		if err == nil {
			s.metrics.ObserveOutbound(s.Channel(), "sent")
			s.logger.Info("whatsapp template sent", "tenant_id", msg.TenantID, "template", msg.Template)
			return nil
		}
		lastErr = err
		if !retry || attempt == s.maxAttempts-1 {
			break
		}
		s.logger.Warn("whatsapp retry", "attempt", attempt+1, "error", err)
		timer := time.NewTimer(s.backoff * time.Duration(1<<attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			lastErr = ctx.Err()
			attempt = s.maxAttempts
		case <-timer.C:
		}
	}
	s.metrics.ObserveOutbound(s.Channel(), "failed")
	span.RecordError(lastErr)
	return lastErr
}

func (s *WhatsAppSender) post(ctx context.Context, endpoint, token string, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("messaging: build whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, fmt.Errorf("messaging: whatsapp http error: %w", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	var parsed waErrorBody
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error.Message != "" {
		return retry, fmt.Errorf("messaging: whatsapp status %d code %d: %s", resp.StatusCode, parsed.Error.Code, parsed.Error.Message)
	}
	return retry, fmt.Errorf("messaging: whatsapp status %d", resp.StatusCode)
}
