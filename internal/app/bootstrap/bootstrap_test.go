package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/integrations"
	"github.com/wolfman30/clinic-scheduler/internal/jobs"
	"github.com/wolfman30/clinic-scheduler/internal/messaging"
	"github.com/wolfman30/clinic-scheduler/internal/notify"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/store/memstore"
	"github.com/wolfman30/clinic-scheduler/internal/waitlist"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

func TestBuildRedisClient(t *testing.T) {
	logger := logging.New("error")
	assert.Nil(t, BuildRedisClient(context.Background(), nil, logger, true))
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, logger, true))

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, true)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	addr := mr.Addr()
	mr.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, logger, true))
}

func TestBuildTenantCacheResolvesThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, nil, false)
	t.Cleanup(func() { _ = client.Close() })

	store := memstore.New()
	tenant := store.AddTenant(scheduling.Tenant{Slug: "studio", Name: "Studio"})

	tenants := BuildTenantCache(client, store, &appconfig.Config{TenantCacheTTL: time.Minute}, nil)
	got, err := tenants.GetTenantBySlug(context.Background(), "studio")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, got.ID)
	assert.NotEmpty(t, mr.Keys())
}

type noCredentials struct{}

func (noCredentials) GetCredentials(context.Context, uuid.UUID, integrations.Kind) (integrations.Credentials, error) {
	return nil, integrations.ErrNotConfigured
}

func TestBuildTemplateSenderChains(t *testing.T) {
	logger := logging.New("error")

	sender, chain := BuildTemplateSender(&appconfig.Config{}, nil, nil, logger)
	assert.Nil(t, sender)
	assert.Equal(t, "none", chain)

	sender, chain = BuildTemplateSender(&appconfig.Config{}, noCredentials{}, nil, logger)
	require.NotNil(t, sender)
	assert.Equal(t, "whatsapp", chain)
	assert.Equal(t, "whatsapp", sender.Channel())

	withTwilio := &appconfig.Config{
		SMSProvider:      messaging.SMSProviderAuto,
		TwilioAccountSID: "AC123",
		TwilioAuthToken:  "token",
		TwilioFromNumber: "+15550001111",
	}
	sender, chain = BuildTemplateSender(withTwilio, noCredentials{}, nil, logger)
	require.NotNil(t, sender)
	assert.Equal(t, "whatsapp+sms:twilio", chain)
	assert.IsType(t, &messaging.FailoverSender{}, sender)

	sender, chain = BuildTemplateSender(withTwilio, nil, nil, logger)
	require.NotNil(t, sender)
	assert.Equal(t, "sms:twilio", chain)
}

type fakeSES struct{}

func (fakeSES) SendEmail(context.Context, *sesv2.SendEmailInput, ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	return &sesv2.SendEmailOutput{}, nil
}

func TestBuildEmailSender(t *testing.T) {
	logger := logging.New("error")

	cases := []struct {
		name string
		cfg  appconfig.Config
		ses  notify.SESAPI
		want string
	}{
		{"disabled", appconfig.Config{EmailProvider: "none"}, nil, "none"},
		{"sendgrid", appconfig.Config{EmailProvider: "sendgrid", SendGridAPIKey: "SG.key", SendGridFromEmail: "no-reply@clinic.test"}, nil, "sendgrid"},
		{"sendgrid without key", appconfig.Config{EmailProvider: "sendgrid"}, nil, "stub"},
		{"ses", appconfig.Config{EmailProvider: "ses", SESFromEmail: "no-reply@clinic.test"}, fakeSES{}, "ses"},
		{"ses without client", appconfig.Config{EmailProvider: "ses", SESFromEmail: "no-reply@clinic.test"}, nil, "stub"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender, provider := BuildEmailSender(&tc.cfg, tc.ses, nil, logger)
			assert.Equal(t, tc.want, provider)
			if tc.want == "none" {
				assert.Nil(t, sender)
			} else {
				assert.NotNil(t, sender)
			}
		})
	}
}

func TestBuildNotifier(t *testing.T) {
	svc := BuildNotifier(&appconfig.Config{EmailProvider: "none"}, noCredentials{}, nil, nil, logging.New("error"))
	require.NotNil(t, svc)
}

func TestBuildStoresFallsBackToMemory(t *testing.T) {
	stores := BuildStores(context.Background(), &appconfig.Config{}, logging.New("error"))
	t.Cleanup(stores.Close)

	assert.IsType(t, &memstore.Store{}, stores.Scopes)
	assert.Nil(t, stores.Admin)
	_, err := stores.Credentials.GetCredentials(context.Background(), uuid.New(), integrations.KindMetaWhatsApp)
	assert.ErrorIs(t, err, integrations.ErrNotConfigured)
}

func TestBuildJobsDispatchesWaitlist(t *testing.T) {
	cfg := &appconfig.Config{
		JobPollInterval:   4 * time.Minute,
		ReminderTolerance: 20 * time.Minute,
		WaitlistLookback:  5 * time.Minute,
		WaitlistHorizon:   48 * time.Hour,
		WaitlistBatchSize: 10,
	}
	notifier := notify.NewService(nil, nil, logging.New("error"))
	built := BuildJobs(cfg, memstore.New(), notifier, nil, nil, logging.New("error"))
	require.NotNil(t, built.Reminders)
	require.NotNil(t, built.Waitlist)

	run, err := built.Dispatcher.Dispatch(context.Background(), jobs.Trigger{Job: waitlist.JobName, Source: jobs.SourceTicker})
	require.NoError(t, err)
	assert.Equal(t, jobs.RunSucceeded, run.Status)
}
