package bootstrap

import (
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/integrations"
	"github.com/wolfman30/clinic-scheduler/internal/messaging"
	"github.com/wolfman30/clinic-scheduler/internal/notify"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// BuildTemplateSender puts WhatsApp first and the configured SMS provider
// behind it as fallback. It returns the sender and a description of the
// chain for startup logs.
func BuildTemplateSender(
	cfg *appconfig.Config,
	credentials integrations.Source,
	m *metrics.SchedulingMetrics,
	logger *logging.Logger,
) (messaging.TemplateSender, string) {
	if cfg == nil {
		return nil, "missing config"
	}
	if logger == nil {
		logger = logging.Default()
	}

	catalog := messaging.DefaultCatalog()
	sms, provider, reason := messaging.BuildSMSSender(messaging.ProviderSelectionConfig{
		Preference:       cfg.SMSProvider,
		TelnyxAPIKey:     cfg.TelnyxAPIKey,
		TelnyxProfileID:  cfg.TelnyxMessagingProfileID,
		TelnyxFromNumber: cfg.TelnyxFromNumber,
		TwilioAccountSID: cfg.TwilioAccountSID,
		TwilioAuthToken:  cfg.TwilioAuthToken,
		TwilioFromNumber: cfg.TwilioFromNumber,
		Catalog:          catalog,
		Metrics:          m,
	}, logger)
	if sms == nil {
		logger.Warn("sms fallback disabled", "reason", reason)
	}

	if credentials == nil {
		if sms == nil {
			return nil, "none"
		}
		return sms, "sms:" + provider
	}

	whatsapp := messaging.NewWhatsAppSender(messaging.WhatsAppConfig{
		BaseURL:     cfg.WhatsAppAPIBaseURL,
		Credentials: credentials,
		Catalog:     catalog,
		Metrics:     m,
	}, logger)
	if sms == nil {
		return whatsapp, "whatsapp"
	}
	return messaging.NewFailoverSender(whatsapp, sms, logger), "whatsapp+sms:" + provider
}

// BuildNotifier assembles the patient notification service.
func BuildNotifier(
	cfg *appconfig.Config,
	credentials integrations.Source,
	ses notify.SESAPI,
	m *metrics.SchedulingMetrics,
	logger *logging.Logger,
) *notify.Service {
	if logger == nil {
		logger = logging.Default()
	}
	templates, chain := BuildTemplateSender(cfg, credentials, m, logger)
	email, emailProvider := BuildEmailSender(cfg, ses, m, logger)
	logger.Info("notifications configured", "templates", chain, "email", emailProvider)
	return notify.NewService(templates, email, logger)
}
