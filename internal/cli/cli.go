package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"agencydesk/internal/bootstrap"
	"agencydesk/pkg/model"
)

// Context is handed to every command by kong.
type Context struct {
	Ctx  context.Context
	Desk *bootstrap.Desk
	Out  io.Writer
	JSON bool
}

func (c *Context) print(v any, text func(w io.Writer)) error {
	if c.JSON {
		enc := json.NewEncoder(c.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(c.Out)
	return nil
}

type LockStatusCmd struct {
	RequestID string `arg:"" help:"Request id."`
}

func (c *LockStatusCmd) Run(ctx *Context) error {
	status, err := ctx.Desk.Locks.Status(ctx.Ctx, c.RequestID)
	if err != nil {
		return err
	}
	return ctx.print(status, func(w io.Writer) {
		if !status.Locked {
			fmt.Fprintf(w, "%s: %s\n", c.RequestID, status.Message)
			return
		}
		fmt.Fprintf(w, "%s: held by %s (%s) until %s\n",
			c.RequestID, status.HolderName, status.HolderID, status.ExpiresAt.Format("15:04:05"))
	})
}

type LockForceReleaseCmd struct {
	RequestID string `arg:"" help:"Request id."`
}

func (c *LockForceReleaseCmd) Run(ctx *Context) error {
	if err := ctx.Desk.Locks.ForceRelease(ctx.Ctx, c.RequestID); err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "Lock on %s released\n", c.RequestID)
	return nil
}

type SweepLocksCmd struct{}

func (c *SweepLocksCmd) Run(ctx *Context) error {
	n, err := ctx.Desk.Reaper.SweepLocks(ctx.Ctx)
	fmt.Fprintf(ctx.Out, "Expired locks released: %d\n", n)
	return err
}

type SweepSlotsCmd struct{}

func (c *SweepSlotsCmd) Run(ctx *Context) error {
	n, err := ctx.Desk.Reaper.SweepSlots(ctx.Ctx)
	fmt.Fprintf(ctx.Out, "Elapsed slots retired: %d\n", n)
	return err
}

type AvailabilityShowCmd struct {
	AgencyID string `arg:"" help:"Agency id."`
	Date     string `arg:"" help:"Day as YYYY-MM-DD."`
}

func (c *AvailabilityShowCmd) Run(ctx *Context) error {
	set, err := ctx.Desk.Availability.GetOrCreate(ctx.Ctx, c.AgencyID, c.Date)
	if err != nil {
		return err
	}
	return ctx.printSet(set)
}

type AvailabilityRefreshCmd struct {
	AgencyID string `arg:"" help:"Agency id."`
	Date     string `arg:"" help:"Day as YYYY-MM-DD."`
}

func (c *AvailabilityRefreshCmd) Run(ctx *Context) error {
	set, err := ctx.Desk.Availability.Refresh(ctx.Ctx, c.AgencyID, c.Date)
	if err != nil {
		return err
	}
	return ctx.printSet(set)
}

func (c *Context) printSet(set *model.AvailabilitySet) error {
	details := c.Desk.Availability.SlotDetails(set)
	return c.print(set, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s (version %d)\n", set.AgencyID, set.Date, set.Version)

		slots := make([]string, 0, len(details))
		for slot := range details {
			slots = append(slots, slot)
		}
		sort.Strings(slots)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, slot := range slots {
			fmt.Fprintf(tw, "  %s\t%s\n", slot, details[slot])
		}
		_ = tw.Flush()
	})
}

type AgencyListCmd struct{}

func (c *AgencyListCmd) Run(ctx *Context) error {
	agencies, err := ctx.Desk.Repos.Agencies.List(ctx.Ctx)
	if err != nil {
		return err
	}
	return ctx.print(agencies, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, a := range agencies {
			var open []string
			for _, h := range a.Hours {
				if !h.Closed {
					open = append(open, fmt.Sprintf("%s %s-%s", h.Weekday, h.Open, h.Close))
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", a.ID, a.Name, strings.Join(open, ", "))
		}
		_ = tw.Flush()
	})
}
