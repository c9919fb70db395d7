package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lorrc/service-desk-notifier/internal/core/domain"
	"github.com/lorrc/service-desk-notifier/internal/infrastructure/logging"
)

const settingsKey = "trudesk:settings"

func startRedis(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client, err := Connect(ctx, fmt.Sprintf("redis://%s/0", endpoint), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSettingsRepository_GetSettingsByName(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Ping(ctx))
	require.NoError(t, client.rdb.HSet(ctx, settingsKey,
		domain.SettingMailerEnable, "true",
		domain.SettingPushEnable, "1",
		domain.SettingPushUsername, "desk",
	).Err())

	repo := NewSettingsRepository(client, settingsKey)
	settings, err := repo.GetSettingsByName(ctx, domain.SettingKeys(domain.EventCommentAdded))
	require.NoError(t, err)

	assert.ElementsMatch(t, []domain.Setting{
		{Name: domain.SettingMailerEnable, Value: "true"},
		{Name: domain.SettingPushEnable, Value: "1"},
		{Name: domain.SettingPushUsername, Value: "desk"},
	}, settings)

	fs := domain.NewFeatureSettings(settings)
	assert.True(t, fs.MailerEnabled)
	assert.False(t, fs.PushEnabled(), "api key is missing")
}

func TestSettingsRepository_MissingHash(t *testing.T) {
	client := startRedis(t)

	settings, err := NewSettingsRepository(client, "no:such:hash").
		GetSettingsByName(context.Background(), []string{domain.SettingMailerEnable})

	require.NoError(t, err)
	assert.Empty(t, settings)
}

func TestSettingsRepository_Unreachable(t *testing.T) {
	client, err := Connect(context.Background(), "redis://127.0.0.1:1/0", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = NewSettingsRepository(client, settingsKey).
		GetSettingsByName(context.Background(), []string{domain.SettingMailerEnable})

	assert.Error(t, err)
	assert.Error(t, client.Ping(context.Background()))
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "http://not-redis", logging.Discard())
	assert.Error(t, err)
}

func TestNilClient(t *testing.T) {
	var c *Client
	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}
