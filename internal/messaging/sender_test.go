package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/integrations"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
)

func TestNormalizeE164(t *testing.T) {
	cases := []struct {
		in, cc, want string
	}{
		{"+1 (555) 123-4567", "1", "+15551234567"},
		{"555.123.4567", "1", "+15551234567"},
		{"15551234567", "1", "+15551234567"},
		{"(11) 98765-4321", "55", "+5511987654321"},
		{"0055 11 98765 4321", "1", "+5511987654321"},
	}
	for _, tc := range cases {
		got, err := NormalizeE164(tc.in, tc.cc)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "abc", "+12", "+1234567890123456"} {
		_, err := NormalizeE164(bad, "1")
		assert.ErrorIs(t, err, ErrInvalidPhone, bad)
	}
	_, err := NormalizeE164("5551234567", "")
	assert.ErrorIs(t, err, ErrInvalidPhone)
}

func TestCatalogFill(t *testing.T) {
	spec, err := DefaultCatalog().Lookup(scheduling.MessageWaitlistOffer)
	require.NoError(t, err)
	text := spec.Fill([]string{"Ana", "Mon 4 Mar 10:00", "Centro"})
	assert.Equal(t, "Hi Ana, a slot opened at Centro on Mon 4 Mar 10:00. Reply YES to claim it.", text)

	_, err = DefaultCatalog().Lookup("unknown")
	assert.Error(t, err)
}

func TestWhatsAppSenderPostsTemplate(t *testing.T) {
	tenant := uuid.New()
	var captured waRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/10987/messages", r.URL.Path)
		assert.Equal(t, "Bearer EAAG", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer server.Close()

	sender := NewWhatsAppSender(WhatsAppConfig{
		BaseURL: server.URL,
		Credentials: integrations.StaticSource{
			tenant: {integrations.KindMetaWhatsApp: integrations.MetaWhatsApp{PhoneNumberID: "10987", AccessToken: "EAAG"}},
		},
	}, nil)

	err := sender.SendTemplate(context.Background(), TemplateMessage{
		TenantID:  tenant,
		To:        "+5511987654321",
		Template:  scheduling.MessageReminder24h,
		Variables: []string{"Ana", "10:00", "Centro"},
	})
	require.NoError(t, err)
	assert.Equal(t, "whatsapp", captured.MessagingProduct)
	assert.Equal(t, "5511987654321", captured.To)
	assert.Equal(t, "reminder_24h", captured.Template.Name)
	require.Len(t, captured.Template.Components, 1)
	assert.Len(t, captured.Template.Components[0].Parameters, 3)
}

func TestWhatsAppSenderRetriesAndFails(t *testing.T) {
	tenant := uuid.New()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"temporarily unavailable","code":2}}`))
	}))
	defer server.Close()

	sender := NewWhatsAppSender(WhatsAppConfig{
		BaseURL:     server.URL,
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
		Credentials: integrations.StaticSource{
			tenant: {integrations.KindMetaWhatsApp: integrations.MetaWhatsApp{PhoneNumberID: "1", AccessToken: "t"}},
		},
	}, nil)

	err := sender.SendTemplate(context.Background(), TemplateMessage{TenantID: tenant, To: "+15551234567", Template: scheduling.MessageReminder2h})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temporarily unavailable")
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestWhatsAppSenderWithoutCredentials(t *testing.T) {
	sender := NewWhatsAppSender(WhatsAppConfig{Credentials: integrations.StaticSource{}}, nil)
	err := sender.SendTemplate(context.Background(), TemplateMessage{TenantID: uuid.New(), To: "+15551234567", Template: scheduling.MessageReminder2h})
	assert.ErrorIs(t, err, integrations.ErrNotConfigured)
}

type recordingText struct {
	from, to, body string
	err            error
}

func (r *recordingText) SendText(_ context.Context, from, to, body string) error {
	r.from, r.to, r.body = from, to, body
	return r.err
}

func TestSMSSenderRendersFallbackText(t *testing.T) {
	text := &recordingText{}
	sender := NewSMSSender("telnyx", text, "+15550000000", nil, nil, nil)

	err := sender.SendTemplate(context.Background(), TemplateMessage{
		To:        "+15551234567",
		Template:  scheduling.MessageAppointmentCreated,
		Variables: []string{"Ana", "Mar 4 10:00", "Centro"},
	})
	require.NoError(t, err)
	assert.Equal(t, "+15550000000", text.from)
	assert.Equal(t, "Hi Ana, your appointment at Centro on Mar 4 10:00 is booked. Reply STOP to opt out.", text.body)
	assert.Equal(t, "sms:telnyx", sender.Channel())
}

func TestTwilioTextSender(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		assert.Equal(t, "+15551234567", form.Get("To"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer server.Close()

	sender := NewTwilioText("AC123", "secret", nil).WithBaseURL(server.URL)
	require.NoError(t, sender.SendText(context.Background(), "+15550000000", "+15551234567", "hello"))
}

func TestTwilioTextSenderStopsOnClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer server.Close()

	sender := NewTwilioText("AC123", "secret", nil).WithBaseURL(server.URL)
	err := sender.SendText(context.Background(), "+15550000000", "+1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code 21211")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

type stubTemplateSender struct {
	channel string
	err     error
	calls   int
}

func (s *stubTemplateSender) SendTemplate(context.Context, TemplateMessage) error {
	s.calls++
	return s.err
}

func (s *stubTemplateSender) Channel() string { return s.channel }

func TestFailoverSender(t *testing.T) {
	primary := &stubTemplateSender{channel: "whatsapp", err: errors.New("down")}
	secondary := &stubTemplateSender{channel: "sms:twilio"}
	f := NewFailoverSender(primary, secondary, nil)

	require.NoError(t, f.SendTemplate(context.Background(), TemplateMessage{}))
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
	assert.Equal(t, "whatsapp", f.Channel())

	secondary.err = errors.New("also down")
	err := f.SendTemplate(context.Background(), TemplateMessage{})
	assert.ErrorContains(t, err, "down")
	assert.ErrorContains(t, err, "also down")

	alone := NewFailoverSender(primary, nil, nil)
	assert.EqualError(t, alone.SendTemplate(context.Background(), TemplateMessage{}), "down")
}
