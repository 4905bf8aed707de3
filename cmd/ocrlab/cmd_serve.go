package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ocrlab/ocrlab/internal/evaluation"
	"github.com/ocrlab/ocrlab/internal/jsonrpc"
	"github.com/ocrlab/ocrlab/internal/webapi"
	"github.com/ocrlab/ocrlab/internal/webserver"
)

type serveOptions struct {
	host      string
	port      int
	noBrowser bool
	rpcAddr   string
}

func newServeCommand(global *globalOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard and REST API",
		Long: `Serve the dashboard and REST API.

The dashboard lists datasets, accepts uploads, starts evaluations and polls
their progress. Host and port default to server.host and server.port from
.ocrlab.yaml (127.0.0.1:8000).

Use --rpc-tcp to also serve JSON-RPC on a TCP address, sharing the same
evaluation state as the dashboard.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, global, opts)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "Address to bind (default server.host)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "Port to listen on (default server.port)")
	cmd.Flags().BoolVar(&opts.noBrowser, "no-browser", false, "Do not open the dashboard in a browser")
	cmd.Flags().StringVar(&opts.rpcAddr, "rpc-tcp", "", "Also serve JSON-RPC on this TCP address (loopback only)")

	return cmd
}

func serve(cmd *cobra.Command, global *globalOptions, opts *serveOptions) error {
	var (
		hub   *jsonrpc.Hub
		extra []evaluation.ServiceOption
	)
	if opts.rpcAddr != "" {
		hub = jsonrpc.NewHub(slog.Default())
		extra = append(extra, evaluation.WithListener(hub.Publish))
	}
	a, err := newApp(global, extra...)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	host, port := a.cfg.Server.Host, a.cfg.Server.Port
	if opts.host != "" {
		host = opts.host
	}
	if opts.port != 0 {
		port = opts.port
	}

	handlers := webapi.NewHandlers(a.svc, a.uploader, a.logger)
	srv, err := webserver.New(webserver.Config{
		Host:      host,
		Port:      port,
		NoBrowser: opts.noBrowser,
		Logger:    a.logger,
	}, webapi.NewRouter(handlers, a.cfg.Server.AllowedOrigins...))
	if err != nil {
		return err
	}

	var rpcListener *jsonrpc.TCPListener
	if opts.rpcAddr != "" {
		server := jsonrpc.NewServer(a.svc, hub, a.logger)
		rpcListener, err = server.ListenTCP(resolveTCPAddr(opts.rpcAddr, false, a.logger))
		if err != nil {
			return fmt.Errorf("failed to start TCP server: %w", err)
		}
		fmt.Fprintf(os.Stderr, "JSON-RPC server listening on %s\n", rpcListener.Addr())
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error { return srv.ListenAndServe(ctx) })
	if rpcListener != nil {
		g.Go(func() error { return rpcListener.Serve(ctx) })
	}

	err = g.Wait()
	// Cancel a run still in flight so Close does not wait for it.
	a.svc.Reset()
	return err
}
