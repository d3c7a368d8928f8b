package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/ride-booking/internal/api"
	"github.com/example/ride-booking/internal/fleet"
	"github.com/example/ride-booking/internal/geo"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/session"
)

func (a *app) adminCmd() *cobra.Command {
	admin := &cobra.Command{Use: "admin", Short: "Admin console"}

	drivers := &cobra.Command{Use: "drivers", Short: "List drivers"}
	drivers.AddCommand(
		a.adminList("pending", "Drivers awaiting approval", func(ctx context.Context, c *api.Client) (any, error) { return c.PendingDrivers(ctx) }),
		a.adminList("online", "Drivers currently online", func(ctx context.Context, c *api.Client) (any, error) { return c.OnlineDrivers(ctx) }),
		a.adminList("all", "Every driver", func(ctx context.Context, c *api.Client) (any, error) { return c.AllDrivers(ctx) }),
	)

	admin.AddCommand(
		drivers,
		a.adminAction("approve", "Approve a pending driver", (*api.Client).ApproveDriver),
		a.adminAction("reject", "Reject a pending driver", (*api.Client).RejectDriver),
		a.adminAction("toggle-block", "Block or unblock a driver", (*api.Client).ToggleBlock),
		a.adminList("orders", "Every order", func(ctx context.Context, c *api.Client) (any, error) { return c.AllOrders(ctx) }),
		a.adminList("reviews", "Customer reviews", func(ctx context.Context, c *api.Client) (any, error) { return c.Reviews(ctx) }),
		a.adminList("wallets", "Driver wallets", func(ctx context.Context, c *api.Client) (any, error) { return c.DriverWallets(ctx) }),
		a.adminList("dashboard", "Totals and order-status breakdown", func(ctx context.Context, c *api.Client) (any, error) {
			return fleet.LoadDashboard(ctx, c)
		}),
		a.pricingCmd(),
		a.watchCmd(),
	)
	return admin
}

func (a *app) adminList(use, short string, fetch func(context.Context, *api.Client) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(session.RoleAdmin)
			if err != nil {
				return err
			}
			v, err := fetch(cmd.Context(), c)
			if err != nil {
				return err
			}
			return a.print(v)
		},
	}
}

func (a *app) adminAction(use, short string, act func(*api.Client, context.Context, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " DRIVER_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := a.client(session.RoleAdmin)
			if err != nil {
				return err
			}
			if err := act(c, cmd.Context(), id); err != nil {
				return fmt.Errorf("%s: %s", use, api.Message(err, err.Error()))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "driver %d: %s ok\n", id, use)
			return nil
		},
	}
}

func (a *app) pricingCmd() *cobra.Command {
	var base, perKm float64
	cmd := &cobra.Command{
		Use:   "pricing VEHICLE_TYPE_ID",
		Short: "Change a vehicle type's fares",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var upd models.PricingUpdate
			if cmd.Flags().Changed("base-fare") {
				upd.BaseFare = &base
			}
			if cmd.Flags().Changed("per-km") {
				upd.PricePerKm = &perKm
			}
			if upd.BaseFare == nil && upd.PricePerKm == nil {
				return fmt.Errorf("set --base-fare and/or --per-km")
			}
			if (upd.BaseFare != nil && base < 0) || (upd.PricePerKm != nil && perKm < 0) {
				return fmt.Errorf("fares cannot be negative")
			}
			c, err := a.client(session.RoleAdmin)
			if err != nil {
				return err
			}
			vt, err := c.UpdatePricing(cmd.Context(), id, upd)
			if err != nil {
				return fmt.Errorf("pricing: %s", api.Message(err, err.Error()))
			}
			return a.print(vt)
		},
	}
	cmd.Flags().Float64Var(&base, "base-fare", 0, "new base fare")
	cmd.Flags().Float64Var(&perKm, "per-km", 0, "new price per km")
	return cmd
}

// watchCmd follows the live fleet map and prints it on an interval.
func (a *app) watchCmd() *cobra.Command {
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow online drivers over the push channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(session.RoleAdmin)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			idx := geo.NewIndex()
			w := &fleet.Watcher{Source: c, Index: idx, Logger: a.logger, Timeout: a.cfg.RequestTimeout}

			pc := a.pushClient()
			pc.Start(ctx)
			defer pc.Close()
			stop, err := w.Watch(ctx, pc)
			if err != nil {
				return err
			}
			defer stop()

			tick := time.NewTicker(every)
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-tick.C:
					ds, err := idx.All(ctx)
					if err != nil {
						return err
					}
					if err := a.print(map[string]any{"at": time.Now().UTC(), "connected": pc.Connected(), "drivers": ds}); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().DurationVar(&every, "every", 5*time.Second, "print interval")
	return cmd
}
