package messaging

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
)

// TemplateMessage is a logical template addressed to one patient phone.
// Variables are positional and fill {{1}}, {{2}}, ... in the template.
type TemplateMessage struct {
	TenantID  uuid.UUID
	To        string
	Template  scheduling.MessageType
	Variables []string
}

// TemplateSender delivers template messages through one provider.
type TemplateSender interface {
	SendTemplate(ctx context.Context, msg TemplateMessage) error
	Channel() string
}

// TemplateSpec maps a logical template to provider-specific identifiers.
type TemplateSpec struct {
	WhatsAppName string
	Language     string
	Text         string
	EmailSubject string
}

// Catalog resolves logical template names.
type Catalog map[scheduling.MessageType]TemplateSpec

// DefaultCatalog holds the four templates the engine sends. Variables:
// {{1}} patient name, {{2}} local start time, {{3}} location name.
func DefaultCatalog() Catalog {
	return Catalog{
		scheduling.MessageAppointmentCreated: {
			WhatsAppName: "appointment_created",
			Language:     "en_US",
			Text:         "Hi {{1}}, your appointment at {{3}} on {{2}} is booked. Reply STOP to opt out.",
			EmailSubject: "Your appointment is booked",
		},
		scheduling.MessageReminder24h: {
			WhatsAppName: "reminder_24h",
			Language:     "en_US",
			Text:         "Hi {{1}}, reminder: you have an appointment at {{3}} tomorrow, {{2}}.",
			EmailSubject: "Appointment reminder",
		},
		scheduling.MessageReminder2h: {
			WhatsAppName: "reminder_2h",
			Language:     "en_US",
			Text:         "Hi {{1}}, see you soon at {{3}}. Your appointment starts at {{2}}.",
			EmailSubject: "Your appointment starts soon",
		},
		scheduling.MessageWaitlistOffer: {
			WhatsAppName: "waitlist_offer",
			Language:     "en_US",
			Text:         "Hi {{1}}, a slot opened at {{3}} on {{2}}. Reply YES to claim it.",
			EmailSubject: "An earlier slot is available",
		},
	}
}

// Lookup returns the catalog entry for name.
func (c Catalog) Lookup(name scheduling.MessageType) (TemplateSpec, error) {
	spec, ok := c[name]
	if !ok {
		return TemplateSpec{}, fmt.Errorf("messaging: unknown template %q", name)
	}
	return spec, nil
}

// Fill substitutes positional variables into the fallback text.
func (s TemplateSpec) Fill(vars []string) string {
	out := s.Text
	for i := len(vars); i >= 1; i-- {
		out = strings.ReplaceAll(out, "{{"+strconv.Itoa(i)+"}}", vars[i-1])
	}
	return out
}
