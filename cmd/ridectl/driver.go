package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/ride-booking/internal/api"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/push"
	"github.com/example/ride-booking/internal/session"
)

const destDriverLocation = "/app/driver-location"

func (a *app) driverCmd() *cobra.Command {
	driver := &cobra.Command{Use: "driver", Short: "Driver duties"}
	driver.AddCommand(
		a.driverListCmd("pending", "Orders waiting for a driver", (*api.Client).PendingOrders),
		a.driverListCmd("active", "My accepted orders", (*api.Client).MyActiveOrders),
		&cobra.Command{
			Use:   "accept ORDER_ID",
			Short: "Accept a pending order",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				c, err := a.client(session.RoleDriver)
				if err != nil {
					return err
				}
				o, err := c.AcceptOrder(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("accept: %s", api.Message(err, err.Error()))
				}
				return a.print(o)
			},
		},
		&cobra.Command{
			Use:   "status ORDER_ID STATUS",
			Short: "Advance an order (ARRIVED, IN_TRANSIT, COMPLETED)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				status := models.ParseStatus(args[1])
				switch status {
				case models.StatusArrived, models.StatusInTransit, models.StatusCompleted:
				default:
					return fmt.Errorf("unsupported status %q", args[1])
				}
				c, err := a.client(session.RoleDriver)
				if err != nil {
					return err
				}
				o, err := c.UpdateOrderStatus(cmd.Context(), id, status)
				if err != nil {
					return fmt.Errorf("status: %s", api.Message(err, err.Error()))
				}
				return a.print(o)
			},
		},
		&cobra.Command{
			Use:   "availability DRIVER_ID on|off",
			Short: "Go online or offline",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				var on bool
				switch args[1] {
				case "on", "true":
					on = true
				case "off", "false":
				default:
					return fmt.Errorf("availability must be on or off")
				}
				c, err := a.client(session.RoleDriver)
				if err != nil {
					return err
				}
				return c.SetAvailability(cmd.Context(), id, on)
			},
		},
		a.driverLocationCmd(),
	)
	return driver
}

func (a *app) driverListCmd(use, short string, list func(*api.Client, context.Context) ([]models.Order, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(session.RoleDriver)
			if err != nil {
				return err
			}
			orders, err := list(c, cmd.Context())
			if err != nil {
				return err
			}
			return a.print(orders)
		},
	}
}

// driverLocationCmd publishes one position over the push channel.
func (a *app) driverLocationCmd() *cobra.Command {
	var orderID int64
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "location DRIVER_ID LAT LON",
		Short: "Publish the driver's position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			lat, err1 := strconv.ParseFloat(args[1], 64)
			lon, err2 := strconv.ParseFloat(args[2], 64)
			if err1 != nil || err2 != nil || !(models.Coord{Lat: lat, Lon: lon}).Valid() {
				return fmt.Errorf("invalid coordinates %s,%s", args[1], args[2])
			}
			if _, err := a.client(session.RoleDriver); err != nil {
				return err
			}
			pc := a.pushClient()
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			pc.Start(ctx)
			defer pc.Close()
			if err := waitConnected(ctx, pc); err != nil {
				return err
			}
			u := models.LocationUpdate{OrderID: orderID, DriverID: id, Latitude: lat, Longitude: lon}
			return pc.Send(ctx, destDriverLocation, u)
		},
	}
	cmd.Flags().Int64Var(&orderID, "order", 0, "order being driven, if any")
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long to wait for the push connection")
	return cmd
}

func (a *app) pushClient() *push.Client {
	token := a.token
	if token == "" {
		token = a.cfg.Token
	}
	return push.NewClient(push.Config{
		URL:            a.cfg.WSURL,
		Token:          token,
		ReconnectDelay: a.cfg.ReconnectDelay,
		HeartbeatOut:   a.cfg.HeartbeatOut,
		HeartbeatIn:    a.cfg.HeartbeatIn,
	}, a.logger)
}

func waitConnected(ctx context.Context, pc *push.Client) error {
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for !pc.Connected() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("push connection: %w", ctx.Err())
		case <-tick.C:
		}
	}
	return nil
}
