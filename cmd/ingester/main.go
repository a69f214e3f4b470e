package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/canopy-network/socialx/app/ingester"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := ingester.Initialize(ctx)
	if err != nil {
		panic(err)
	}

	app.SetupServer()

	if err := app.Start(ctx); err != nil {
		app.Logger.Fatal("Ingester stopped", zap.Error(err))
	}
}
