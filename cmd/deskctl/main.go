package main

import (
	"context"
	"fmt"
	"os"

	"agencydesk/internal/bootstrap"
	"agencydesk/internal/cli"
	"agencydesk/pkg/config"

	"github.com/alecthomas/kong"
)

const ServiceName = "deskctl"

var CLI struct {
	JSON bool `help:"Print JSON instead of text."`

	Lock struct {
		Status       cli.LockStatusCmd       `cmd:"" help:"Show who holds a request lock."`
		ForceRelease cli.LockForceReleaseCmd `cmd:"" help:"Release a request lock regardless of holder."`
	} `cmd:"" help:"Inspect and manage request locks."`

	Sweep struct {
		Locks cli.SweepLocksCmd `cmd:"" help:"Release expired locks once."`
		Slots cli.SweepSlotsCmd `cmd:"" help:"Retire started slots of today once."`
	} `cmd:"" help:"Run a reaper pass."`

	Availability struct {
		Show    cli.AvailabilityShowCmd    `cmd:"" help:"Show the slots of an agency day."`
		Refresh cli.AvailabilityRefreshCmd `cmd:"" help:"Rebuild an agency day from its requests and blocks."`
	} `cmd:"" help:"Inspect agency availability."`

	Agency struct {
		List cli.AgencyListCmd `cmd:"" help:"List catalog agencies."`
	} `cmd:"" help:"Inspect the agency catalog."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("deskctl"),
		kong.Description("Operator tool for the agency desk."),
		kong.UsageOnError(),
	)

	if err := run(kctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(kctx *kong.Context) error {
	ctx := context.Background()
	cfg := config.Load(ServiceName)
	defer cfg.GracefulShutdown()

	desk, err := bootstrap.NewDesk(ctx, cfg, ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		if err := desk.Close(ctx); err != nil {
			cfg.Log.Warn("Failed to drain notifications", "error", err)
		}
	}()

	return kctx.Run(&cli.Context{Ctx: ctx, Desk: desk, Out: os.Stdout, JSON: CLI.JSON})
}
