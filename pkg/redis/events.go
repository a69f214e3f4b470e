package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/canopy-network/socialx/pkg/db/models/social"
	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"
)

const (
	// EventIngestCompleted is the event type relayed to websocket clients.
	EventIngestCompleted = "ingest.completed"
	// EventPattern matches the ingestion channel of every platform.
	EventPattern = KeyPrefix + ":*:" + EventIngestCompleted
)

// IngestCompletedEvent is published once per successful scheduled or manual ingestion.
type IngestCompletedEvent struct {
	Platform     social.Platform `json:"platform"`
	Accounts     int             `json:"accounts"`
	Created      int             `json:"created"`
	Updated      int             `json:"updated"`
	Observations int             `json:"observations"`
	Swept        int64           `json:"swept"`
	CompletedAt  time.Time       `json:"completed_at"`
}

// NewIngestCompletedEvent summarizes an ingestion and its optional sweep.
func NewIngestCompletedEvent(ingest *social.IngestResult, sweep *social.SweepResult, at time.Time) IngestCompletedEvent {
	ev := IngestCompletedEvent{
		Platform:     ingest.Platform,
		Accounts:     ingest.Accounts,
		Created:      ingest.Created,
		Updated:      ingest.Updated,
		Observations: ingest.Observations,
		CompletedAt:  at.UTC(),
	}
	if sweep != nil {
		ev.Swept = sweep.Total()
	}
	return ev
}

// EventChannel is "social:<platform>:ingest.completed".
func EventChannel(p social.Platform) string {
	return fmt.Sprintf("%s:%s:%s", KeyPrefix, p, EventIngestCompleted)
}

// PlatformFromChannel extracts the platform from an event channel name.
func PlatformFromChannel(channel string) (string, bool) {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 || parts[0] != KeyPrefix || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// PublishIngestCompleted notifies subscribers. Best-effort like Publish.
func (c *Client) PublishIngestCompleted(ctx context.Context, ev IngestCompletedEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		c.logger.Warn("Failed to encode ingestion event", zap.Error(err))
		return
	}
	c.Publish(ctx, EventChannel(ev.Platform), payload)
}
