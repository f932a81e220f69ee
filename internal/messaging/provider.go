package messaging

import (
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-scheduler/internal/messaging/telnyxclient"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const (
	// SMSProviderAuto tries Telnyx first, then Twilio.
	SMSProviderAuto = "auto"
	// SMSProviderTelnyx forces the Telnyx sender when credentials exist.
	SMSProviderTelnyx = "telnyx"
	// SMSProviderTwilio forces the Twilio sender when credentials exist.
	SMSProviderTwilio = "twilio"
)

// ProviderSelectionConfig captures the credentials required to build SMS senders.
type ProviderSelectionConfig struct {
	Preference       string
	TelnyxAPIKey     string
	TelnyxProfileID  string
	TelnyxFromNumber string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	Catalog          Catalog
	Metrics          *metrics.SchedulingMetrics
}

// BuildSMSSender instantiates the SMS fallback sender for the preferred
// provider. It returns the sender, the provider that was selected, and a
// reason when no provider could be initialized.
func BuildSMSSender(cfg ProviderSelectionConfig, logger *logging.Logger) (TemplateSender, string, string) {
	if logger == nil {
		logger = logging.Default()
	}
	preference := strings.ToLower(strings.TrimSpace(cfg.Preference))
	if preference == "" {
		preference = SMSProviderAuto
	}

	missing := map[string]string{}
	var telnyxSender, twilioSender TemplateSender

	if cfg.TelnyxAPIKey != "" && cfg.TelnyxProfileID != "" && cfg.TelnyxFromNumber != "" {
		client, err := telnyxclient.New(telnyxclient.Config{APIKey: cfg.TelnyxAPIKey, Logger: logger})
		if err != nil {
			missing[SMSProviderTelnyx] = err.Error()
		} else {
			text := NewTelnyxText(client, cfg.TelnyxProfileID)
			telnyxSender = NewSMSSender(SMSProviderTelnyx, text, cfg.TelnyxFromNumber, cfg.Catalog, cfg.Metrics, logger)
		}
	} else {
		var reasons []string
		if cfg.TelnyxAPIKey == "" {
			reasons = append(reasons, "TELNYX_API_KEY missing")
		}
		if cfg.TelnyxProfileID == "" {
			reasons = append(reasons, "TELNYX_MESSAGING_PROFILE_ID missing")
		}
		if cfg.TelnyxFromNumber == "" {
			reasons = append(reasons, "TELNYX_FROM_NUMBER missing")
		}
		missing[SMSProviderTelnyx] = strings.Join(reasons, ", ")
	}

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioFromNumber != "" {
		text := NewTwilioText(cfg.TwilioAccountSID, cfg.TwilioAuthToken, logger)
		twilioSender = NewSMSSender(SMSProviderTwilio, text, cfg.TwilioFromNumber, cfg.Catalog, cfg.Metrics, logger)
	} else {
		var reasons []string
		if cfg.TwilioAccountSID == "" {
			reasons = append(reasons, "TWILIO_ACCOUNT_SID missing")
		}
		if cfg.TwilioAuthToken == "" {
			reasons = append(reasons, "TWILIO_AUTH_TOKEN missing")
		}
		if cfg.TwilioFromNumber == "" {
			reasons = append(reasons, "TWILIO_FROM_NUMBER missing")
		}
		missing[SMSProviderTwilio] = strings.Join(reasons, ", ")
	}

	if preference != SMSProviderAuto {
		if preference == SMSProviderTelnyx && telnyxSender != nil {
			return telnyxSender, SMSProviderTelnyx, ""
		}
		if preference == SMSProviderTwilio && twilioSender != nil {
			return twilioSender, SMSProviderTwilio, ""
		}
		reason := missing[preference]
		if reason == "" {
			reason = fmt.Sprintf("%s sender not configured", preference)
		}
		return nil, "", reason
	}

	if telnyxSender != nil && twilioSender != nil {
		return NewFailoverSender(telnyxSender, twilioSender, logger), SMSProviderTelnyx + "+" + SMSProviderTwilio, ""
	}
	if telnyxSender != nil {
		return telnyxSender, SMSProviderTelnyx, ""
	}
	if twilioSender != nil {
		return twilioSender, SMSProviderTwilio, ""
	}

	var reasons []string
	for _, provider := range resolvePreferredOrder(preference) {
		if msg := missing[provider]; msg != "" {
			reasons = append(reasons, fmt.Sprintf("%s: %s", provider, msg))
		}
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "no SMS providers configured")
	}
	return nil, "", strings.Join(reasons, "; ")
}

func resolvePreferredOrder(preference string) []string {
	switch preference {
	case SMSProviderTelnyx:
		return []string{SMSProviderTelnyx}
	case SMSProviderTwilio:
		return []string{SMSProviderTwilio}
	default:
		return []string{SMSProviderTelnyx, SMSProviderTwilio}
	}
}
