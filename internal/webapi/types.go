package webapi

import (
	"github.com/ocrlab/ocrlab/internal/dataset"
	"github.com/ocrlab/ocrlab/internal/ocr"
)

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
}

// DatasetsResponse lists the datasets available for evaluation.
type DatasetsResponse struct {
	Datasets []dataset.Info `json:"datasets"`
}

// UploadResponse describes a saved upload.
type UploadResponse struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	DatasetPath string   `json:"dataset_path"`
	ImageCount  int      `json:"image_count"`
	Skipped     []string `json:"skipped,omitempty"`
}

// TrainResponse is returned when an evaluation starts.
type TrainResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  string `json:"status"`
	RunID   string `json:"run_id"`
}

// ResetResponse is returned by the reset endpoint.
type ResetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SampleDatasetResponse describes the bundled dataset.
type SampleDatasetResponse struct {
	Path        string          `json:"path"`
	SampleCount int             `json:"sample_count"`
	Samples     []dataset.Label `json:"samples"`
}

// DetectResponse holds the text fragments found in one image.
type DetectResponse struct {
	Success bool           `json:"success"`
	Results []ocr.Fragment `json:"results"`
	Count   int            `json:"count"`
}

// ErrorResponse is returned for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
