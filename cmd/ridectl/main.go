// Command ridectl drives the ride-hailing backend from a terminal: quotes,
// orders, driver duties and the admin console.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/ride-booking/internal/api"
	"github.com/example/ride-booking/internal/config"
	"github.com/example/ride-booking/internal/logging"
	"github.com/example/ride-booking/internal/session"
)

// app is the state shared by every subcommand.
type app struct {
	envFile string
	token   string
	out     io.Writer

	cfg    config.Config
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:           "ridectl",
		Short:         "Command-line client for the ride-hailing backend",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.envFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel, false)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "env file to load (defaults to .env when present)")
	root.PersistentFlags().StringVar(&a.token, "token", "", "bearer token (overrides AUTH_TOKEN)")
	root.SetOut(out)

	root.AddCommand(
		a.loginCmd(),
		a.quoteCmd(),
		a.ordersCmd(),
		a.cancelCmd(),
		a.walletCmd(),
		a.profileCmd(),
		a.driverCmd(),
		a.adminCmd(),
	)
	return root
}

// client returns an API client for the configured session, checked for role.
func (a *app) client(roles ...session.Role) (*api.Client, error) {
	token := a.token
	if token == "" {
		token = a.cfg.Token
	}
	sess, err := session.New(token, a.cfg.Email, a.cfg.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: set AUTH_TOKEN or pass --token", err)
	}
	if len(roles) > 0 {
		if err := sess.Require(roles...); err != nil {
			return nil, err
		}
	}
	c := api.NewClient(a.cfg.APIURL, sess, a.logger)
	c.HTTP.Timeout = a.cfg.RequestTimeout
	return c, nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
