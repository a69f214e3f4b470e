// Command query serves account history, leaderboards and the influencer listing over HTTP.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/canopy-network/socialx/app/query"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := query.Initialize(ctx)

	if err := query.NewServer(app); err != nil {
		app.Logger.Fatal("Unable to build query server", zap.Error(err))
	}
	app.Logger.Info("Query service ready",
		zap.Int("platforms", app.Stores.Size()),
		zap.Bool("cache", app.RedisClient != nil))

	app.Start(ctx)
}
