package jsonrpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"sync"
)

const (
	// maxLine bounds a single request.
	maxLine = 1 << 20
	// noteQueue is the number of progress notifications buffered per client.
	noteQueue = 256
)

// conn is one client: requests arrive one per line, and responses and
// notifications leave one per line in any interleaving.
type conn struct {
	scanner *bufio.Scanner

	mu  sync.Mutex
	enc *json.Encoder

	notes  chan *Notification
	closed chan struct{}
}

func newConn(r io.Reader, w io.Writer) *conn {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &conn{
		scanner: sc,
		enc:     enc,
		notes:   make(chan *Notification, noteQueue),
		closed:  make(chan struct{}),
	}
}

// read returns the next non-blank line, or io.EOF once input ends. The
// slice is only valid until the next call.
func (c *conn) read() ([]byte, error) {
	for c.scanner.Scan() {
		if line := bytes.TrimSpace(c.scanner.Bytes()); len(line) > 0 {
			return line, nil
		}
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (c *conn) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(v)
}

// pump writes queued notifications until the connection closes or a write
// fails.
func (c *conn) pump() {
	for {
		select {
		case n := <-c.notes:
			if err := c.write(n); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
