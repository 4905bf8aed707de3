// Package webserver serves the embedded dashboard next to the REST API.
package webserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

// DefaultPort is used when Config.Port is zero.
const DefaultPort = 8000

// Config holds the HTTP server configuration.
type Config struct {
	Host      string
	Port      int
	NoBrowser bool
	Logger    *slog.Logger
}

// Server wraps the HTTP server with configuration.
type Server struct {
	cfg    Config
	srv    *http.Server
	logger *slog.Logger
}

// New creates a server that routes /api/ to api and everything else to the
// dashboard. Responses are gzip-compressed when the client accepts it.
func New(cfg Config, api http.Handler) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if api == nil {
		return nil, errors.New("webserver: api handler is required")
	}

	mux := http.NewServeMux()
	if err := registerRoutes(mux, api); err != nil {
		return nil, err
	}

	return &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		srv: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           gzhttp.GzipHandler(mux),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// URL is the address printed for users to open.
func (s *Server) URL() string {
	host := s.cfg.Host
	if host == "0.0.0.0" || host == "::" || host == "127.0.0.1" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(s.cfg.Port))
}

// ListenAndServe starts the HTTP server and blocks until ctx is canceled or
// the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	url := s.URL()
	s.logger.Info("HTTP server starting", "address", s.srv.Addr, "url", url)
	fmt.Printf("ocrlab dashboard: %s\n", url)

	if !s.cfg.NoBrowser {
		go func() {
			time.Sleep(500 * time.Millisecond)
			if err := openBrowser(url); err != nil {
				s.logger.Debug("failed to open browser", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error", "error", err)
		}
	}()

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler (useful for testing).
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}
