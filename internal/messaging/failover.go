package messaging

import (
	"context"
	"errors"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// FailoverSender attempts a primary send, then falls back to a secondary provider on error.
type FailoverSender struct {
	primary   TemplateSender
	secondary TemplateSender
	logger    *logging.Logger
}

// NewFailoverSender builds a failover sender. secondary may be nil.
func NewFailoverSender(primary, secondary TemplateSender, logger *logging.Logger) *FailoverSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverSender{primary: primary, secondary: secondary, logger: logger}
}

var _ TemplateSender = (*FailoverSender)(nil)

// Channel reports the primary channel.
func (f *FailoverSender) Channel() string {
	if f == nil || f.primary == nil {
		return "none"
	}
	return f.primary.Channel()
}

// SendTemplate tries the primary provider first, then the secondary on failure.
func (f *FailoverSender) SendTemplate(ctx context.Context, msg TemplateMessage) error {
	if f == nil || f.primary == nil {
		return errors.New("messaging: failover primary sender not configured")
	}
	err := f.primary.SendTemplate(ctx, msg)
	if err == nil || f.secondary == nil {
		return err
	}
	f.logger.Warn("primary template send failed; attempting fallback",
		"provider", f.primary.Channel(),
		"fallback", f.secondary.Channel(),
		"tenant_id", msg.TenantID,
		"template", msg.Template,
		"error", err,
	)
	if fallbackErr := f.secondary.SendTemplate(ctx, msg); fallbackErr != nil {
		f.logger.Error("fallback template send failed",
			"provider", f.secondary.Channel(),
			"tenant_id", msg.TenantID,
			"error", fallbackErr,
		)
		return errors.Join(err, fallbackErr)
	}
	return nil
}
