package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestJobStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{JobIdle, false},
		{JobRunning, false},
		{JobCompleted, true},
		{JobFailed, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResults_Clone(t *testing.T) {
	var nilResults *Results
	if nilResults.Clone() != nil {
		t.Fatal("Clone() of nil should be nil")
	}

	r := &Results{
		Accuracy:     50,
		TotalSamples: 2,
		Details: []SampleResult{
			{Filename: "a.png", GroundTruth: "a", Predicted: "a", Correct: true},
			{Filename: "b.png", GroundTruth: "b", Predicted: "x"},
		},
	}
	c := r.Clone()
	c.Details[0].Predicted = "changed"
	c.Accuracy = 0

	if r.Details[0].Predicted != "a" {
		t.Error("Clone() shares Details with the original")
	}
	if r.Accuracy != 50 {
		t.Error("Clone() shares the struct with the original")
	}
}

func TestSnapshot_OmitsUnsetFields(t *testing.T) {
	data, err := json.Marshal(Snapshot{Status: JobIdle, Message: "Ready"})
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, field := range []string{"results", "error", "start_time", "run_id"} {
		if strings.Contains(s, `"`+field+`"`) {
			t.Errorf("idle snapshot %s should omit %q", s, field)
		}
	}
	if !strings.Contains(s, `"progress":0`) {
		t.Errorf("idle snapshot %s should carry progress", s)
	}
}
