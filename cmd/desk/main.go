package main

import (
	"context"

	"agencydesk/internal/bootstrap"
	"agencydesk/internal/health"
	"agencydesk/pkg/app"
	"agencydesk/pkg/config"
)

const ServiceName = "agency-desk"

func main() {
	ctx := context.Background()
	cfg := config.Load(ServiceName)

	cfg.Log.Info("Starting Agency Desk service")
	desk, err := bootstrap.NewDesk(ctx, cfg, ServiceName)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize services", "error", err)
	}

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(desk, health.NewHealthHandler(cfg.Client, desk.Notifier, desk.KafkaMetrics, cfg.Log))

	desk.Reaper.Start(ctx)
	serverApp.OnShutdown(func(context.Context) { desk.Reaper.Stop() })
	serverApp.OnShutdown(func(ctx context.Context) {
		if err := desk.Close(ctx); err != nil {
			cfg.Log.Error("Failed to drain notifications", "error", err)
		}
	})

	serverApp.Run(ctx)
}
