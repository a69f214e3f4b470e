//go:build integration

package redis

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

var (
	testAddr    string
	skipReason  string
	testCleanup func()
)

func TestMain(m *testing.M) {
	testAddr, skipReason, testCleanup = startRedis()
	code := m.Run()
	if testCleanup != nil {
		testCleanup()
	}
	os.Exit(code)
}

// startRedis prefers TEST_REDIS_ADDR and otherwise runs redis:7-alpine in Docker.
func startRedis() (string, string, func()) {
	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		return addr, "", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		return "", "Docker not available and TEST_REDIS_ADDR not set", nil
	}

	ctx = context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return "", fmt.Sprintf("start redis container: %v", err), nil
	}
	cleanup := func() { _ = container.Terminate(context.Background()) }

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		cleanup()
		return "", fmt.Sprintf("container endpoint: %v", err), nil
	}
	return endpoint, "", cleanup
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	if skipReason != "" {
		t.Skip(skipReason)
	}
	c, err := NewFromOptions(context.Background(), zaptest.NewLogger(t), &redis.Options{Addr: testAddr})
	require.NoError(t, err)
	require.NoError(t, c.GetClient().FlushDB(context.Background()).Err())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_SetGetDeletePattern(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, ok := c.GetBytes(ctx, HistoryKey(social.Instagram, "alice"))
	assert.False(t, ok)

	for i := 0; i < 1200; i++ {
		c.SetBytes(ctx, HistoryKey(social.Instagram, fmt.Sprintf("user%d", i)), []byte("{}"), time.Minute)
	}
	c.SetBytes(ctx, InfluencersKey(social.TikTok), []byte(`[1]`), time.Minute)

	got, ok := c.GetBytes(ctx, HistoryKey(social.Instagram, "user7"))
	require.True(t, ok)
	assert.Equal(t, "{}", string(got))

	n, err := c.DeletePattern(ctx, PlatformPattern(social.Instagram))
	require.NoError(t, err)
	assert.Equal(t, int64(1200), n)

	_, ok = c.GetBytes(ctx, HistoryKey(social.Instagram, "user7"))
	assert.False(t, ok)
	_, ok = c.GetBytes(ctx, InfluencersKey(social.TikTok))
	assert.True(t, ok, "other platform untouched")
}

func TestCache_TTL(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	key := InfluencersKey(social.Instagram)
	c.SetBytes(ctx, key, []byte("x"), 10*time.Minute)
	ttl, err := c.GetClient().TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 9*time.Minute)
}

func TestPublishIngestCompleted(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub := c.PSubscribe(ctx, EventPattern)
	defer func() { _ = sub.Close() }()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	c.PublishIngestCompleted(ctx, IngestCompletedEvent{Platform: social.TikTok, Accounts: 2})

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "social:tiktok:ingest.completed", msg.Channel)
		var ev IngestCompletedEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.Equal(t, 2, ev.Accounts)
	case <-ctx.Done():
		t.Fatal("event not received")
	}
}
