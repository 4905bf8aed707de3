package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/ocrlab/ocrlab/internal/evaluation"
	"github.com/ocrlab/ocrlab/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve runs one stdio session over input and returns the response lines.
func serve(t *testing.T, server *Server, input string) []string {
	t.Helper()
	var out strings.Builder
	server.Serve(context.Background(), strings.NewReader(input), &out)
	text := strings.TrimSpace(out.String())
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func decode(t *testing.T, line string) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	assert.Equal(t, version, resp.JSONRPC)
	return resp
}

func TestServer_StatusOverStdio(t *testing.T) {
	f := newFixture(t, false)
	lines := serve(t, f.server, `{"jsonrpc":"2.0","method":"run.status","id":42}`+"\n")
	require.Len(t, lines, 1)

	resp := decode(t, lines[0])
	assert.Equal(t, "42", string(resp.ID))
	snap := resultAs[models.Snapshot](t, resp)
	assert.Equal(t, models.JobIdle, snap.Status)
}

func TestServer_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  int
	}{
		{"unknown method", `{"jsonrpc":"2.0","method":"run.pause","id":1}`, CodeMethodNotFound},
		{"wrong version", `{"jsonrpc":"1.0","method":"run.status","id":1}`, CodeInvalidRequest},
		{"batch", `[{"jsonrpc":"2.0","method":"run.status","id":1}]`, CodeInvalidRequest},
		{"invalid json", `{run.status}`, CodeParseError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			lines := serve(t, f.server, tt.input+"\n")
			require.Len(t, lines, 1)
			resp := decode(t, lines[0])
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Nil(t, resp.Result)
		})
	}
}

func TestServer_KeepsServingAfterBadLine(t *testing.T) {
	f := newFixture(t, false)
	input := "{oops\n\n   \n" + `{"jsonrpc":"2.0","method":"dataset.list","id":2}` + "\n"
	lines := serve(t, f.server, input)
	require.Len(t, lines, 2)

	first := decode(t, lines[0])
	require.NotNil(t, first.Error)
	assert.Equal(t, CodeParseError, first.Error.Code)
	assert.Equal(t, "null", string(first.ID))

	second := decode(t, lines[1])
	assert.Equal(t, "2", string(second.ID))
	res := resultAs[DatasetListResult](t, second)
	assert.Len(t, res.Datasets, 1)
}

func TestServer_NotificationsGetNoResponse(t *testing.T) {
	f := newFixture(t, false)
	input := `{"jsonrpc":"2.0","method":"run.reset"}` + "\n" +
		`{"jsonrpc":"2.0","method":"run.pause"}` + "\n" +
		`{"jsonrpc":"2.0","method":"run.status","id":null}` + "\n"
	lines := serve(t, f.server, input)

	require.Len(t, lines, 1, "only the call with an explicit null id is answered")
	resp := decode(t, lines[0])
	assert.Equal(t, "null", string(resp.ID))
	assert.Nil(t, resp.Error)
}

func TestServer_NotificationStillStartsRun(t *testing.T) {
	f := newFixture(t, false)
	lines := serve(t, f.server, `{"jsonrpc":"2.0","method":"run.start","params":{"dataset_type":"sample"}}`+"\n")
	assert.Empty(t, lines)
	assert.Equal(t, models.JobCompleted, f.waitDone(t).Status)
}

func TestServer_ErrorCarriesData(t *testing.T) {
	err := newError(CodeAlreadyRunning, "abc123")
	assert.Equal(t, "Evaluation already running", err.Message)
	assert.Equal(t, "Evaluation already running (-32002): abc123", err.Error())
	assert.Equal(t, "Method not found (-32601)", (&Error{Code: CodeMethodNotFound, Message: "Method not found"}).Error())
}

// client speaks line-delimited JSON-RPC over a TCP connection.
type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

// message is either a response or a server notification.
type message struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
	Method string          `json:"method"`
	Params ProgressParams  `json:"params"`
}

func dial(t *testing.T, ln *TCPListener) *client {
	t.Helper()
	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() }) //nolint:errcheck
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(line string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(5*time.Second)))
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(c.t, err)
}

func (c *client) next() message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	line, err := c.r.ReadBytes('\n')
	require.NoError(c.t, err)
	var m message
	require.NoError(c.t, json.Unmarshal(line, &m))
	return m
}

func listen(t *testing.T, f *fixture) (*TCPListener, context.CancelFunc, <-chan error) {
	t.Helper()
	ln, err := f.server.ListenTCP("127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ln.Serve(ctx) }()
	t.Cleanup(cancel)
	return ln, cancel, done
}

func TestServer_WatchStreamsRunProgress(t *testing.T) {
	f := newFixture(t, true)
	ln, _, _ := listen(t, f)
	c := dial(t, ln)

	c.send(`{"jsonrpc":"2.0","method":"run.watch","id":1}`)
	watched := c.next()
	require.Nil(t, watched.Error)
	var w RunWatchResult
	require.NoError(t, json.Unmarshal(watched.Result, &w))
	assert.True(t, w.Watching)
	assert.Equal(t, models.JobIdle, w.Status.Status)
	assert.Equal(t, 1, f.hub.Watchers())

	c.send(`{"jsonrpc":"2.0","method":"run.start","params":{"dataset_type":"sample"},"id":2}`)

	var (
		runID  string
		events []ProgressParams
	)
	for len(events) == 0 || events[len(events)-1].Event != string(evaluation.EventRunComplete) {
		m := c.next()
		if m.Method == "" {
			require.Nil(t, m.Error)
			var started RunStartResult
			require.NoError(t, json.Unmarshal(m.Result, &started))
			runID = started.RunID
			continue
		}
		assert.Equal(t, MethodProgress, m.Method)
		assert.Empty(t, m.ID)
		events = append(events, m.Params)
	}

	require.Len(t, events, 4)
	assert.Equal(t, string(evaluation.EventRunStart), events[0].Event)
	assert.Nil(t, events[0].Correct)
	for i, e := range events[1:3] {
		assert.Equal(t, string(evaluation.EventSampleComplete), e.Event)
		assert.Equal(t, i+1, e.SampleNum)
		assert.Equal(t, 2, e.TotalSamples)
		require.NotNil(t, e.Correct)
		assert.True(t, *e.Correct)
	}
	assert.Equal(t, 100, events[3].Progress)
	if runID != "" {
		for _, e := range events {
			assert.Equal(t, runID, e.RunID)
		}
	}
}

func TestServer_UnwatchStopsNotifications(t *testing.T) {
	f := newFixture(t, false)
	ln, _, _ := listen(t, f)
	c := dial(t, ln)

	c.send(`{"jsonrpc":"2.0","method":"run.watch","id":1}`)
	c.next()
	c.send(`{"jsonrpc":"2.0","method":"run.unwatch","id":2}`)
	unwatched := c.next()
	var w RunWatchResult
	require.NoError(t, json.Unmarshal(unwatched.Result, &w))
	assert.False(t, w.Watching)
	assert.Equal(t, 0, f.hub.Watchers())

	c.send(`{"jsonrpc":"2.0","method":"run.start","params":{"dataset_type":"sample"},"id":3}`)
	assert.Equal(t, "3", string(c.next().ID))
	f.waitDone(t)

	c.send(`{"jsonrpc":"2.0","method":"run.status","id":4}`)
	m := c.next()
	assert.Empty(t, m.Method)
	assert.Equal(t, "4", string(m.ID))
}

func TestServer_DisconnectUnwatches(t *testing.T) {
	f := newFixture(t, false)
	ln, _, _ := listen(t, f)
	c := dial(t, ln)

	c.send(`{"jsonrpc":"2.0","method":"run.watch","id":1}`)
	c.next()
	require.Equal(t, 1, f.hub.Watchers())

	require.NoError(t, c.conn.Close())
	assert.Eventually(t, func() bool { return f.hub.Watchers() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestTCPListener_ShutsDownOnCancel(t *testing.T) {
	f := newFixture(t, false)
	ln, cancel, done := listen(t, f)
	c := dial(t, ln)

	c.send(`{"jsonrpc":"2.0","method":"run.status","id":1}`)
	assert.Equal(t, "1", string(c.next().ID))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := c.r.ReadBytes('\n')
	assert.ErrorIs(t, err, io.EOF, "open sessions are closed on shutdown")

	_, err = net.Dial("tcp", ln.Addr().String())
	assert.Error(t, err)
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := NewHub(nil)
	c := newConn(strings.NewReader(""), io.Discard)
	hub.watch(c)

	for i := range noteQueue + 10 {
		hub.Publish(evaluation.ProgressEvent{EventType: evaluation.EventSampleComplete, RunID: "r1", SampleNum: i + 1})
	}
	assert.Len(t, c.notes, noteQueue)

	n := <-c.notes
	p, ok := n.Params.(ProgressParams)
	require.True(t, ok)
	assert.Equal(t, "r1", p.RunID)
	assert.Equal(t, 1, p.SampleNum)
	require.NotNil(t, p.Correct)
	assert.False(t, *p.Correct)
}
