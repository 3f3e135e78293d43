package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-formsync/httpapi"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the webhook sync workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if address != "" {
				opts.config.HTTP.Address = address
			}
			return serve(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&address, "addr", "", "listen address (overrides http.address)")
	return cmd
}

func serve(ctx context.Context, opts *rootOptions) error {
	cfg := opts.config
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	sessions, err := httpapi.NewSessions(cfg.HTTP.SessionSecret, cfg.SessionTTL())
	if err != nil {
		return err
	}
	handler, err := httpapi.NewHandler(a.client, sessions,
		httpapi.WithReceiver(a.runtime.Receiver),
		httpapi.WithOwnerLookup(a.runtime.Service),
		httpapi.WithLogger(opts.logger),
		httpapi.WithFrontendURL(cfg.HTTP.FrontendURL),
		httpapi.WithSecureCookies(strings.HasPrefix(cfg.HTTP.FrontendURL, "https://")),
	)
	if err != nil {
		return err
	}
	if cfg.NotificationURL() == "" {
		opts.logger.Warn("webhooks.public_url is not set, forms will not receive change notifications")
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.runtime.Run(ctx)
	})
	group.Go(func() error {
		opts.logger.Info("http server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
