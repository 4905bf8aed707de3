package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ocrlab/ocrlab/internal/dataset"
	"github.com/ocrlab/ocrlab/internal/evaluation"
	"github.com/ocrlab/ocrlab/internal/history"
	"github.com/ocrlab/ocrlab/internal/jobstate"
	"github.com/ocrlab/ocrlab/internal/models"
	"github.com/ocrlab/ocrlab/internal/ocr"
	"github.com/ocrlab/ocrlab/internal/ocr/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper to send a JSON-RPC request and decode the response
func rpcCall(t *testing.T, server *Server, method string, params any) Response {
	t.Helper()
	paramsJSON, err := json.Marshal(params)
	require.NoError(t, err)

	reqLine := fmt.Sprintf(`{"jsonrpc":"2.0","method":"%s","params":%s,"id":1}`, method, string(paramsJSON))
	var out bytes.Buffer
	server.Serve(context.Background(), strings.NewReader(reqLine+"\n"), &out)

	var resp Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	return resp
}

// resultAs re-decodes a generic result into T.
func resultAs[T any](t *testing.T, resp Response) T {
	t.Helper()
	require.Nil(t, resp.Error)
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

type fixture struct {
	server *Server
	svc    *evaluation.Service
	hub    *Hub
}

func newFixture(t *testing.T, withHistory bool) *fixture {
	t.Helper()
	root := t.TempDir()
	sample := filepath.Join(root, "sample")
	require.NoError(t, os.MkdirAll(sample, 0o755))
	for _, name := range []string{"one.png", "two.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(sample, name), []byte("img"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(sample, dataset.LabelsFile), []byte("one.png\tone\ntwo.png\ttwo\n"), 0o644))

	hub := NewHub(nil)
	opts := []evaluation.ServiceOption{
		evaluation.WithListener(hub.Publish),
		evaluation.WithEngineFactory(func(_ string, cfg ocr.Config) (ocr.Engine, error) {
			cfg.Options = map[string]any{"error_rate": 0}
			return mock.New(cfg)
		}),
		evaluation.WithDefaults(models.RunConfig{Engine: mock.Name, Languages: []string{"en"}}),
	}
	if withHistory {
		opts = append(opts, evaluation.WithHistory(history.NewFileStore(filepath.Join(root, "results"))))
	}
	catalog := &dataset.Catalog{SampleDir: sample, UploadDir: filepath.Join(root, "uploads")}
	svc := evaluation.NewService(jobstate.New(), catalog, opts...)
	t.Cleanup(svc.Wait)

	return &fixture{server: NewServer(svc, hub, nil), svc: svc, hub: hub}
}

func (f *fixture) waitDone(t *testing.T) models.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := f.svc.Status()
		if snap.Status != models.JobRunning {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run did not finish")
	return models.Snapshot{}
}

func TestHandler_RegistersAllMethods(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, []string{
		"dataset.list", "history.get", "history.list",
		"run.reset", "run.start", "run.status", "run.unwatch", "run.watch",
	}, f.server.Methods())
}

func TestHandler_RunStatus_Idle(t *testing.T) {
	f := newFixture(t, false)
	snap := resultAs[models.Snapshot](t, rpcCall(t, f.server, "run.status", nil))
	assert.Equal(t, models.JobIdle, snap.Status)
	assert.Equal(t, 0, snap.Progress)
}

func TestHandler_RunStart_CompletesAndIsRecorded(t *testing.T) {
	f := newFixture(t, true)

	started := resultAs[RunStartResult](t, rpcCall(t, f.server, "run.start", map[string]any{
		"dataset_type": "sample",
		"languages":    []string{"en"},
	}))
	require.NotEmpty(t, started.RunID)

	snap := f.waitDone(t)
	require.Equal(t, models.JobCompleted, snap.Status)
	require.NotNil(t, snap.Results)
	assert.Equal(t, 2, snap.Results.TotalSamples)
	assert.InDelta(t, 100.0, snap.Results.Accuracy, 0.001)

	list := resultAs[HistoryListResult](t, rpcCall(t, f.server, "history.list", map[string]string{"order": "desc"}))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, started.RunID, list.Runs[0].ID)

	rec := resultAs[history.Record](t, rpcCall(t, f.server, "history.get", map[string]string{"run_id": started.RunID}))
	assert.Equal(t, mock.Name, rec.Engine)
	require.NotNil(t, rec.Results)
	assert.Len(t, rec.Results.Details, 2)
}

func TestHandler_RunStart_Errors(t *testing.T) {
	tests := []struct {
		name   string
		params any
		code   int
	}{
		{"missing dataset type", map[string]any{"languages": []string{"en"}}, CodeValidationFailed},
		{"unknown dataset type", map[string]any{"dataset_type": "remote"}, CodeValidationFailed},
		{"uploaded without path", map[string]any{"dataset_type": "uploaded"}, CodeValidationFailed},
		{"empty languages", map[string]any{"dataset_type": "sample", "languages": []string{}}, CodeInvalidParams},
		{"missing upload", map[string]any{"dataset_type": "uploaded", "dataset_path": "nope"}, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			resp := rpcCall(t, f.server, "run.start", tt.params)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, models.JobIdle, f.svc.Status().Status)
		})
	}
}

func TestHandler_RunReset(t *testing.T) {
	f := newFixture(t, false)
	resultAs[RunStartResult](t, rpcCall(t, f.server, "run.start", map[string]any{"dataset_type": "sample"}))
	f.waitDone(t)

	res := resultAs[RunResetResult](t, rpcCall(t, f.server, "run.reset", nil))
	assert.True(t, res.Reset)
	assert.Equal(t, models.JobIdle, f.svc.Status().Status)
	assert.Nil(t, f.svc.Status().Results)
}

func TestHandler_DatasetList(t *testing.T) {
	f := newFixture(t, false)
	res := resultAs[DatasetListResult](t, rpcCall(t, f.server, "dataset.list", nil))
	require.Len(t, res.Datasets, 1)
	assert.Equal(t, dataset.KindSample, res.Datasets[0].Type)
	assert.Equal(t, 2, res.Datasets[0].ImageCount)
}

func TestHandler_HistoryWithoutStore(t *testing.T) {
	f := newFixture(t, false)

	list := resultAs[HistoryListResult](t, rpcCall(t, f.server, "history.list", nil))
	assert.Empty(t, list.Runs)

	resp := rpcCall(t, f.server, "history.get", map[string]string{"run_id": "abc"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)
}

func TestHandler_HistoryGet_InvalidParams(t *testing.T) {
	f := newFixture(t, true)

	resp := rpcCall(t, f.server, "history.get", map[string]string{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)

	resp = rpcCall(t, f.server, "history.get", "not an object")
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)

	resp = rpcCall(t, f.server, "history.get", map[string]string{"run_id": "missing"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)
}

func TestHandler_HistoryList_BadOrder(t *testing.T) {
	f := newFixture(t, true)
	resp := rpcCall(t, f.server, "history.list", map[string]string{"order": "sideways"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}
