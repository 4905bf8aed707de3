package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/ocrlab/ocrlab/internal/evaluation"
	"github.com/ocrlab/ocrlab/internal/jsonrpc"
	"github.com/spf13/cobra"
)

func newRPCCommand(global *globalOptions) *cobra.Command {
	var tcpAddr string
	var tcpAllowRemote bool

	cmd := &cobra.Command{
		Use:   "rpc",
		Short: "Start a JSON-RPC 2.0 server for editor integration",
		Long: `Start a JSON-RPC 2.0 server for editor integration.

By default, the server communicates over stdin/stdout using newline-delimited JSON.

Use --tcp to start a TCP server instead (useful for debugging).
TCP defaults to loopback (127.0.0.1). Use --tcp-allow-remote to bind
to all interfaces.

Supported methods:
  run.start      Start an evaluation (returns run ID)
  run.status     Get the current job status
  run.reset      Return the job to idle, canceling any running evaluation
  run.watch      Receive run.progress notifications on this connection
  run.unwatch    Stop receiving run.progress notifications
  dataset.list   List available datasets
  history.list   List recorded runs
  history.get    Get one recorded run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hub := jsonrpc.NewHub(slog.Default())
			a, err := newApp(global, evaluation.WithListener(hub.Publish))
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck
			defer a.svc.Reset()

			server := jsonrpc.NewServer(a.svc, hub, a.logger)
			if tcpAddr != "" {
				listener, err := server.ListenTCP(resolveTCPAddr(tcpAddr, tcpAllowRemote, a.logger))
				if err != nil {
					return fmt.Errorf("failed to start TCP server: %w", err)
				}
				defer listener.Close() //nolint:errcheck
				fmt.Fprintf(os.Stderr, "JSON-RPC server listening on %s\n", listener.Addr())
				return listener.Serve(cmd.Context())
			}

			fmt.Fprintln(os.Stderr, "JSON-RPC server running on stdio")
			server.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVar(&tcpAddr, "tcp", "", "TCP address to listen on (e.g., :9000)")
	cmd.Flags().BoolVar(&tcpAllowRemote, "tcp-allow-remote", false,
		"Allow binding to non-loopback addresses (WARNING: exposes the server to the network with no authentication)")

	return cmd
}

// resolveTCPAddr ensures TCP addresses default to loopback unless allowRemote is set.
func resolveTCPAddr(addr string, allowRemote bool, logger *slog.Logger) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// Likely just a port like "9000"; treat as ":9000".
		host = ""
		port = addr
	}

	if allowRemote {
		logger.Warn("TCP server binding to all interfaces, no authentication is provided",
			"address", addr)
		return addr
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		logger.Info("JSON-RPC server listening on TCP (local only)")
		return net.JoinHostPort("127.0.0.1", port)
	}

	return addr
}
