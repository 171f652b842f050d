package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/coffersTech/filelog/internal/diag"
	"github.com/coffersTech/filelog/internal/server"
)

func (a *app) newServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve read-only queries and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			srv := server.NewQueryServer(a.engine(), server.Options{
				Dir:       a.cfg.Log.Dir,
				TokenHash: a.cfg.Server.TokenHash,
				Log:       diag.Component(a.diag, "http"),
			})
			a.diag.Info().Stringer("server", srv).Msg("starting")

			errc := make(chan error, 1)
			go func() {
				errc <- srv.Start(addr)
			}()

			select {
			case err := <-errc:
				return err
			case <-cmd.Context().Done():
			}

			a.diag.Info().Msg("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			return <-errc
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func (a *app) newTokenHashCommand() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "token-hash <token>",
		Short: "Print the bcrypt hash to put in server.token_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(args[0])
			if token == "" {
				return errors.New("token is empty")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
			if err != nil {
				return fmt.Errorf("failed to hash token: %w", err)
			}
			_, err = fmt.Fprintln(a.out, string(hash))
			return err
		},
	}

	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}
