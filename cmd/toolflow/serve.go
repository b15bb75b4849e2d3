package main

import (
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/dispatcher"
	"github.com/effective-security/toolflow/server"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var addr, sampler string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools, resources and prompts over JSON-RPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var opts []dispatcher.Option
			if sampler != "" {
				model, err := newModel(a.cfg, sampler)
				if err != nil {
					return errors.WithMessage(err, "failed to create sampling model")
				}
				opts = append(opts, dispatcher.WithSampler(model))
			}

			c, err := a.buildCatalog(opts...)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Server.ListenAddr
			}

			srv := server.New(c.dispatcher, c.prompts,
				server.WithName("toolflow", version),
				server.WithResultFormat(a.cfg.Dispatcher.ResultFormat),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = srv.ListenAndServe(ctx, addr)
			logger.KV(xlog.INFO, "status", "stopped", "addr", addr)
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "", "listen address, defaults to server.listen_addr")
	cmd.Flags().StringVar(&sampler, "sample-model", "", "model that answers sampling requests from tools, such as process_data")
	return cmd
}
