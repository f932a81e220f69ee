package bootstrap

import (
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/notify"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// BuildEmailSender selects the email provider named by EMAIL_PROVIDER.
// A provider that is selected but not configured degrades to the stub
// sender so patients without a phone are still recorded.
func BuildEmailSender(cfg *appconfig.Config, ses notify.SESAPI, m *metrics.SchedulingMetrics, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return nil, "none"
	}

	switch cfg.EmailProvider {
	case "none":
		return nil, "none"
	case "ses":
		if ses != nil && cfg.SESFromEmail != "" {
			return notify.NewSESSender(ses, notify.SESConfig{
				FromEmail:        cfg.SESFromEmail,
				FromName:         cfg.SendGridFromName,
				ConfigurationSet: cfg.SESConfigSet,
				Metrics:          m,
			}, logger), "ses"
		}
		logger.Warn("ses email selected but not configured; using stub sender")
	default:
		if cfg.SendGridAPIKey != "" && cfg.SendGridFromEmail != "" {
			return notify.NewSendGridSender(notify.SendGridConfig{
				APIKey:    cfg.SendGridAPIKey,
				FromEmail: cfg.SendGridFromEmail,
				FromName:  cfg.SendGridFromName,
				Metrics:   m,
			}, logger), "sendgrid"
		}
		logger.Warn("sendgrid email selected but not configured; using stub sender")
	}
	return notify.NewStubEmailSender(logger), "stub"
}
