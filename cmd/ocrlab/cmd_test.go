package main

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocrlab/ocrlab/internal/dataset"
	"github.com/ocrlab/ocrlab/internal/history"
	"github.com/ocrlab/ocrlab/internal/models"
	"github.com/ocrlab/ocrlab/internal/reporting"
)

// project is a temp directory holding .ocrlab.yaml and a small dataset.
type project struct {
	dir     string
	dataset string
}

func newProject(t *testing.T, extraConfig string) *project {
	t.Helper()
	dir := t.TempDir()
	config := `defaults:
  engine: mock
  languages: [en]
ocr:
  options:
    mock:
      error_rate: 0
` + extraConfig
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".ocrlab.yaml"), []byte(config), 0o644))

	ds := filepath.Join(dir, "sample_dataset")
	require.NoError(t, os.MkdirAll(ds, 0o755))
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(ds, name), []byte("img"), 0o644))
	}
	labels := "a.png\tHello\nb.png\tWorld\nc.png\tocrlab\n"
	require.NoError(t, os.WriteFile(filepath.Join(ds, dataset.LabelsFile), []byte(labels), 0o644))
	return &project{dir: dir, dataset: ds}
}

// exec runs the root command with args and returns stdout and stderr.
func (p *project) exec(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config-dir", p.dir}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (p *project) runJSON(t *testing.T, args ...string) history.Record {
	t.Helper()
	stdout, _, err := p.exec(t, append([]string{"run", p.dataset, "--format", "json"}, args...)...)
	require.NoError(t, err)
	var rec history.Record
	require.NoError(t, json.Unmarshal([]byte(stdout), &rec))
	return rec
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func TestRunCommand_RequiresExactlyOneArg(t *testing.T) {
	for _, args := range [][]string{{}, {"a", "b"}} {
		cmd := newRunCommand(&globalOptions{configDir: t.TempDir()})
		cmd.SetArgs(args)
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		assert.Error(t, cmd.Execute(), "args=%v", args)
	}
}

func TestRunCommand_JSON(t *testing.T) {
	p := newProject(t, "")
	rec := p.runJSON(t)

	assert.Equal(t, models.JobCompleted, rec.Status)
	assert.Equal(t, "mock", rec.Engine)
	assert.Equal(t, []string{"en"}, rec.Languages)
	require.NotNil(t, rec.Results)
	assert.Equal(t, 3, rec.Results.TotalSamples)
	assert.Equal(t, 3, rec.Results.CorrectPredictions)
	assert.InDelta(t, 100.0, rec.Results.Accuracy, 0.001)
}

func TestRunCommand_TableWithProgress(t *testing.T) {
	p := newProject(t, "")
	stdout, stderr, err := p.exec(t, "run", p.dataset, "--lang", "en,fr")

	require.NoError(t, err)
	assert.Contains(t, stdout, "OCR EVALUATION RESULTS")
	assert.Contains(t, stdout, "Accuracy:    100.00%")
	assert.Contains(t, stdout, "Languages:   en, fr")
	assert.Contains(t, stderr, "✓ [3/3] c.png")
}

func TestRunCommand_Formats(t *testing.T) {
	p := newProject(t, "")

	stdout, _, err := p.exec(t, "run", p.dataset, "--format", "junit")
	require.NoError(t, err)
	var suites reporting.JUnitTestSuites
	require.NoError(t, xml.Unmarshal([]byte(stdout), &suites))

	stdout, _, err = p.exec(t, "run", p.dataset, "--format", "markdown")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "# OCR evaluation: sample_dataset"))

	_, _, err = p.exec(t, "run", p.dataset, "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestRunCommand_OutputFile(t *testing.T) {
	p := newProject(t, "")
	out := filepath.Join(t.TempDir(), "report.json")

	stdout, stderr, err := p.exec(t, "run", p.dataset, "--format", "json", "--output", out)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Report written to: "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var rec history.Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, models.JobCompleted, rec.Status)
}

func TestRunCommand_FailedRunExitsWithRunFailedError(t *testing.T) {
	p := newProject(t, "")
	// Reconfigure the mock to fail on one image.
	cfg := `defaults:
  engine: mock
ocr:
  options:
    mock:
      error_rate: 0
      fail_on: [b.png]
`
	require.NoError(t, os.WriteFile(filepath.Join(p.dir, ".ocrlab.yaml"), []byte(cfg), 0o644))

	stdout, _, err := p.exec(t, "run", p.dataset)
	var runErr *RunFailedError
	require.True(t, errors.As(err, &runErr), "got %v", err)
	assert.Equal(t, ExitRunFailed, exitCode(err))
	assert.Contains(t, runErr.Message, "b.png")
	assert.Contains(t, stdout, "Status:      failed")
}

func TestRunCommand_ConfigAndDatasetErrors(t *testing.T) {
	p := newProject(t, "")

	_, _, err := p.exec(t, "run", filepath.Join(p.dir, "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitError, exitCode(err))

	_, _, err = p.exec(t, "run", p.dataset, "--engine", "nope")
	var runErr *RunFailedError
	require.True(t, errors.As(err, &runErr), "unknown engine fails the run: %v", err)

	require.NoError(t, os.WriteFile(filepath.Join(p.dir, ".ocrlab.yaml"), []byte("history:\n  backend: postgres\n"), 0o644))
	_, _, err = p.exec(t, "run", p.dataset)
	require.Error(t, err)
	assert.Equal(t, ExitError, exitCode(err))
	assert.Contains(t, err.Error(), "/history/backend")
}

// ---------------------------------------------------------------------------
// runs
// ---------------------------------------------------------------------------

func TestRunsCommands(t *testing.T) {
	p := newProject(t, "")
	rec := p.runJSON(t)

	stdout, _, err := p.exec(t, "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, rec.ID)
	assert.Contains(t, stdout, "100.00%")

	stdout, _, err = p.exec(t, "runs", "list", "--json")
	require.NoError(t, err)
	var runs []history.Summary
	require.NoError(t, json.Unmarshal([]byte(stdout), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].TotalSamples)

	stdout, _, err = p.exec(t, "runs", "show", rec.ID, "--interpret")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Run:         "+rec.ID)
	assert.Contains(t, stdout, "Hello")

	stdout, _, err = p.exec(t, "runs", "export", rec.ID, "--format", "md", "--output", "-")
	require.NoError(t, err)
	assert.Contains(t, stdout, "| Accuracy |")

	out := filepath.Join(t.TempDir(), "run.xlsx")
	_, stderr, err := p.exec(t, "runs", "export", rec.ID, "--format", "xlsx", "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Exported "+rec.ID)
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestRunsCommands_Errors(t *testing.T) {
	p := newProject(t, "")

	_, _, err := p.exec(t, "runs", "show", "does-not-exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, _, err = p.exec(t, "runs", "export", "x", "--format", "pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")

	_, _, err = p.exec(t, "runs", "list", "--order", "up")
	require.Error(t, err)

	q := newProject(t, "history:\n  backend: none\n")
	_, _, err = q.exec(t, "runs", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

// ---------------------------------------------------------------------------
// datasets, engines, detect
// ---------------------------------------------------------------------------

func TestDatasetsCommand(t *testing.T) {
	p := newProject(t, "")

	stdout, _, err := p.exec(t, "datasets")
	require.NoError(t, err)
	assert.Contains(t, stdout, "sample")
	assert.Contains(t, stdout, p.dataset)

	stdout, _, err = p.exec(t, "datasets", "--json")
	require.NoError(t, err)
	var infos []dataset.Info
	require.NoError(t, json.Unmarshal([]byte(stdout), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, 3, infos[0].ImageCount)
}

func TestEnginesCommand(t *testing.T) {
	p := newProject(t, "")
	stdout, _, err := p.exec(t, "engines")
	require.NoError(t, err)
	assert.Contains(t, stdout, "mock\n")
	assert.Contains(t, stdout, "tesseract\n")
}

func TestDetectCommand(t *testing.T) {
	p := newProject(t, "")

	stdout, _, err := p.exec(t, "detect", filepath.Join(p.dataset, "a.png"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Full text: Hello")

	stdout, _, err = p.exec(t, "detect", filepath.Join(p.dataset, "b.png"), "--json")
	require.NoError(t, err)
	var fragments []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &fragments))
	require.Len(t, fragments, 1)
	assert.Equal(t, "World", fragments[0]["text"])

	_, _, err = p.exec(t, "detect", filepath.Join(p.dataset, "nope.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detection failed")
}

// ---------------------------------------------------------------------------
// session
// ---------------------------------------------------------------------------

func TestSessionCommands(t *testing.T) {
	p := newProject(t, "session_log:\n  enabled: true\n")
	rec := p.runJSON(t)

	stdout, _, err := p.exec(t, "session", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "-session.jsonl")
	assert.Contains(t, stdout, rec.ID[:8])
	assert.Contains(t, stdout, "completed")
	assert.Contains(t, stdout, "3/3")
	assert.Contains(t, stdout, "100.0%")

	logDir := filepath.Join(p.dir, ".ocrlab", "sessions")
	entries, err := os.ReadDir(logDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	stdout, _, err = p.exec(t, "session", "view", filepath.Join(logDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, stdout, "EVALUATION TIMELINE")
	assert.Contains(t, stdout, rec.ID[:8])
	assert.Contains(t, stdout, "3/3 correct")
}

// ---------------------------------------------------------------------------
// rpc
// ---------------------------------------------------------------------------

func TestRPCCommand_Stdio(t *testing.T) {
	p := newProject(t, "")
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(
		`{"jsonrpc":"2.0","method":"run.watch","id":1}` + "\n" +
			`{"jsonrpc":"2.0","method":"dataset.list","id":2}` + "\n"))
	cmd.SetArgs([]string{"--config-dir", p.dir, "rpc"})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)

	var watch struct {
		ID     int `json:"id"`
		Result struct {
			Watching bool            `json:"watching"`
			Status   models.Snapshot `json:"status"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &watch))
	assert.Equal(t, 1, watch.ID)
	assert.True(t, watch.Result.Watching)
	assert.Equal(t, models.JobIdle, watch.Result.Status.Status)

	var list struct {
		ID     int `json:"id"`
		Result struct {
			Datasets []dataset.Info `json:"datasets"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &list))
	assert.Equal(t, 2, list.ID)
	require.Len(t, list.Result.Datasets, 1)
	assert.Equal(t, 3, list.Result.Datasets[0].ImageCount)
}
