package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/ocrlab/ocrlab/internal/evaluation"
)

type method func(ctx context.Context, c *conn, params json.RawMessage) (any, *Error)

// Server exposes an evaluation service to JSON-RPC clients.
type Server struct {
	svc     *evaluation.Service
	hub     *Hub
	methods map[string]method
	logger  *slog.Logger
}

// NewServer creates a server for svc. Progress reaches run.watch clients
// only if hub.Publish is registered as a listener on svc.
func NewServer(svc *evaluation.Service, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	s := &Server{svc: svc, hub: hub, logger: logger}
	s.methods = map[string]method{
		"run.start":    s.runStart,
		"run.status":   s.runStatus,
		"run.reset":    s.runReset,
		"run.watch":    s.runWatch,
		"run.unwatch":  s.runUnwatch,
		"dataset.list": s.datasetList,
		"history.list": s.historyList,
		"history.get":  s.historyGet,
	}
	return s
}

// Methods returns the served method names in order.
func (s *Server) Methods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Serve answers requests read from r on w until r is exhausted. A line
// that cannot be read ends the session after a parse error response.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) {
	c := newConn(r, w)
	go c.pump()
	defer close(c.closed)
	defer s.hub.unwatch(c)

	for {
		line, err := c.read()
		if err == io.EOF || errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			s.logger.Debug("read error", "error", err)
			s.reply(c, nullID, nil, newError(CodeParseError, err.Error()))
			return
		}
		if err := s.handle(ctx, c, line); err != nil {
			s.logger.Debug("write error", "error", err)
			return
		}
	}
}

func (s *Server) handle(ctx context.Context, c *conn, line []byte) error {
	if line[0] == '[' {
		return s.reply(c, nullID, nil, newError(CodeInvalidRequest, "batch requests are not supported"))
	}
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return s.reply(c, nullID, nil, newError(CodeParseError, err.Error()))
	}

	var (
		result any
		rpcErr *Error
	)
	switch m, ok := s.methods[req.Method]; {
	case req.JSONRPC != version:
		rpcErr = newError(CodeInvalidRequest, `jsonrpc field must be "2.0"`)
	case !ok:
		rpcErr = newError(CodeMethodNotFound, req.Method)
	default:
		start := time.Now()
		result, rpcErr = m(ctx, c, req.Params)
		s.logger.Debug("rpc call", "method", req.Method, "ok", rpcErr == nil, "duration", time.Since(start))
	}

	if req.IsNotification() {
		return nil
	}
	return s.reply(c, req.ID, result, rpcErr)
}

func (s *Server) reply(c *conn, id json.RawMessage, result any, rpcErr *Error) error {
	resp := &Response{JSONRPC: version, ID: id}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	return c.write(resp)
}

// TCPListener serves one session per accepted connection.
type TCPListener struct {
	ln     net.Listener
	server *Server

	wg    sync.WaitGroup
	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// ListenTCP binds addr. Call Serve to start accepting.
func (s *Server) ListenTCP(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPListener{ln: ln, server: s, conns: make(map[net.Conn]struct{})}, nil
}

// Addr returns the bound address.
func (l *TCPListener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting connections.
func (l *TCPListener) Close() error { return l.ln.Close() }

// Serve accepts connections until ctx is canceled or the listener is
// closed, then closes open connections and waits for their sessions.
func (l *TCPListener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.ln.Close() }) //nolint:errcheck
	defer stop()
	defer func() {
		l.mu.Lock()
		for nc := range l.conns {
			nc.Close() //nolint:errcheck
		}
		l.mu.Unlock()
		l.wg.Wait()
	}()

	for {
		nc, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		l.mu.Lock()
		l.conns[nc] = struct{}{}
		l.mu.Unlock()

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer func() {
				l.mu.Lock()
				delete(l.conns, nc)
				l.mu.Unlock()
				nc.Close() //nolint:errcheck
			}()
			l.server.Serve(ctx, nc, nc)
		}()
	}
}
