package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/example/ride-booking/internal/api"
	"github.com/example/ride-booking/internal/distance"
	"github.com/example/ride-booking/internal/fare"
	"github.com/example/ride-booking/internal/geocode"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/session"
)

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and print the session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := api.NewClient(a.cfg.APIURL, nil, a.logger)
			c.HTTP.Timeout = a.cfg.RequestTimeout
			sess, err := c.Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("login: %s", api.Message(err, err.Error()))
			}
			return a.print(map[string]any{"token": sess.Token, "email": sess.Email, "role": sess.Role, "expires": sess.Expires})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

type quote struct {
	Pickup      models.Coord `json:"pickup"`
	Drop        models.Coord `json:"drop"`
	DistanceKm  float64      `json:"distanceKm"`
	VehicleType string       `json:"vehicleType,omitempty"`
	Price       string       `json:"price,omitempty"`
}

func (a *app) quoteCmd() *cobra.Command {
	var pickup, drop string
	var vehicleID int64
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Geocode two addresses and price the trip",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			g := geocode.NewNominatimClient(a.cfg.GeocodeURL, a.cfg.Country, a.logger)
			g.UserAgent = a.cfg.UserAgent
			from, err1 := g.Resolve(ctx, pickup)
			to, err2 := g.Resolve(ctx, drop)
			if err1 != nil || err2 != nil {
				return fmt.Errorf("could not find one or both locations; please check the spelling")
			}
			est := &distance.Estimator{Router: distance.NewOSRMClient(a.cfg.RoutingURL), Logger: a.logger}
			km := est.Estimate(ctx, from, to)
			q := quote{Pickup: from, Drop: to, DistanceKm: km}
			if vehicleID != 0 {
				c, err := a.client(session.RoleCustomer)
				if err != nil {
					return err
				}
				vts, err := c.VehicleTypes(ctx)
				if err != nil {
					return err
				}
				for i := range vts {
					if vts[i].ID == vehicleID {
						q.VehicleType = vts[i].Name
						q.Price = fare.Format(fare.Estimate(&vts[i], km))
					}
				}
				if q.VehicleType == "" {
					return fmt.Errorf("unknown vehicle type %d", vehicleID)
				}
			}
			return a.print(q)
		},
	}
	cmd.Flags().StringVar(&pickup, "pickup", "", "pickup address")
	cmd.Flags().StringVar(&drop, "drop", "", "drop address")
	cmd.Flags().Int64Var(&vehicleID, "vehicle", 0, "vehicle type id to price")
	_ = cmd.MarkFlagRequired("pickup")
	_ = cmd.MarkFlagRequired("drop")
	return cmd
}

func (a *app) ordersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List my orders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(session.RoleCustomer)
			if err != nil {
				return err
			}
			orders, err := c.MyOrders(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(orders)
		},
	}
}

func (a *app) cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ORDER_ID",
		Short: "Cancel a pending order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := a.client(session.RoleCustomer)
			if err != nil {
				return err
			}
			if err := c.CancelOrder(cmd.Context(), id); err != nil {
				return fmt.Errorf("cancel: %s", api.Message(err, err.Error()))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "order %d cancelled\n", id)
			return nil
		},
	}
}

func (a *app) walletCmd() *cobra.Command {
	wallet := &cobra.Command{Use: "wallet", Short: "Wallet balance, history and top-up"}
	wallet.AddCommand(&cobra.Command{
		Use:   "balance",
		Short: "Show the wallet balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(session.RoleCustomer, session.RoleDriver)
			if err != nil {
				return err
			}
			w, err := c.WalletBalance(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(w)
		},
	}, &cobra.Command{
		Use:   "top-up AMOUNT",
		Short: "Add funds to the wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[0], 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("amount must be a positive number")
			}
			c, err := a.client(session.RoleCustomer, session.RoleDriver)
			if err != nil {
				return err
			}
			w, err := c.TopUp(cmd.Context(), amount)
			if err != nil {
				return fmt.Errorf("top-up: %s", api.Message(err, err.Error()))
			}
			return a.print(w)
		},
	}, &cobra.Command{
		Use:   "history",
		Short: "List wallet transactions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(session.RoleCustomer, session.RoleDriver)
			if err != nil {
				return err
			}
			txs, err := c.WalletTransactions(cmd.Context())
			if err != nil {
				return err
			}
			var credit, debit float64
			for _, tx := range txs {
				switch tx.Type {
				case models.TxCredit:
					credit += tx.Amount
				case models.TxDebit:
					debit += tx.Amount
				}
			}
			return a.print(map[string]any{"credited": credit, "debited": debit, "count": len(txs), "transactions": txs})
		},
	})
	return wallet
}

func (a *app) profileCmd() *cobra.Command {
	profile := &cobra.Command{Use: "profile", Short: "Show or edit my profile"}
	profile.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show my profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			p, err := c.Profile(cmd.Context(), "")
			if err != nil {
				return err
			}
			return a.print(p)
		},
	})

	var name, phone string
	update := &cobra.Command{
		Use:   "update",
		Short: "Change my name or phone number",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			cur, err := c.Profile(ctx, "")
			if err != nil {
				return err
			}
			upd := models.ProfileUpdate{FullName: cur.FullName, PhoneNumber: cur.PhoneNumber}
			if cmd.Flags().Changed("name") {
				upd.FullName = name
			}
			if cmd.Flags().Changed("phone") {
				upd.PhoneNumber = phone
			}
			p, err := c.UpdateProfile(ctx, cur.ID, upd)
			if err != nil {
				return fmt.Errorf("profile: %s", api.Message(err, err.Error()))
			}
			return a.print(p)
		},
	}
	update.Flags().StringVar(&name, "name", "", "full name")
	update.Flags().StringVar(&phone, "phone", "", "phone number")
	profile.AddCommand(update)
	return profile
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
