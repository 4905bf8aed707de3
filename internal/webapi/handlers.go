// Package webapi exposes the evaluation service as a JSON HTTP API.
package webapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ocrlab/ocrlab/internal/dataset"
	"github.com/ocrlab/ocrlab/internal/evaluation"
	"github.com/ocrlab/ocrlab/internal/history"
	"github.com/ocrlab/ocrlab/internal/jobstate"
	"github.com/ocrlab/ocrlab/internal/models"
	"github.com/ocrlab/ocrlab/internal/ocr"
	"github.com/ocrlab/ocrlab/internal/reporting"
	"github.com/ocrlab/ocrlab/internal/validation"
)

// Version is set at build time or defaults to dev.
var Version = "0.1.0-dev"

const (
	maxTrainBody     = 1 << 20
	maxMultipartMem  = 32 << 20
	uploadBodyExtra  = 1 << 20
	detectFormField  = "file"
	uploadFilesField = "files"
	uploadLabelField = "labels"
)

// Handlers holds the HTTP handler methods for the web API.
type Handlers struct {
	svc      *evaluation.Service
	uploader *dataset.Uploader
	logger   *slog.Logger
}

// NewHandlers creates handlers around svc. Uploads are written by uploader.
func NewHandlers(svc *evaluation.Service, uploader *dataset.Uploader, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{svc: svc, uploader: uploader, logger: logger}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Message: "OCR evaluation API is running",
		Version: Version,
	})
}

// HandleDatasets lists the sample dataset and every uploaded dataset.
func (h *Handlers) HandleDatasets(w http.ResponseWriter, _ *http.Request) {
	infos, err := h.svc.Catalog().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if infos == nil {
		infos = []dataset.Info{}
	}
	writeJSON(w, http.StatusOK, DatasetsResponse{Datasets: infos})
}

// HandleUpload stores a multipart upload of images ("files") and a labels
// file ("labels") as a new dataset.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	lim := h.uploader.Limits
	r.Body = http.MaxBytesReader(w, r.Body, int64(lim.MaxFiles)*lim.MaxImageBytes+lim.MaxLabelsBytes+uploadBodyExtra)
	if err := r.ParseMultipartForm(maxMultipartMem); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	labelHeaders := r.MultipartForm.File[uploadLabelField]
	if len(labelHeaders) == 0 {
		writeError(w, http.StatusBadRequest, "labels file is required")
		return
	}

	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			c.Close() //nolint:errcheck
		}
	}()
	open := func(fh *multipart.FileHeader) (dataset.UploadFile, error) {
		f, err := fh.Open()
		if err != nil {
			return dataset.UploadFile{}, err
		}
		closers = append(closers, f)
		return dataset.UploadFile{Name: fh.Filename, Content: f}, nil
	}

	labels, err := open(labelHeaders[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading labels: "+err.Error())
		return
	}
	var images []dataset.UploadFile
	for _, fh := range r.MultipartForm.File[uploadFilesField] {
		f, err := open(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("reading %s: %v", fh.Filename, err))
			return
		}
		images = append(images, f)
	}

	saved, err := h.uploader.Save(images, labels)
	if err != nil {
		var uerr *dataset.UploadError
		if errors.As(err, &uerr) {
			writeError(w, http.StatusBadRequest, uerr.Msg)
			return
		}
		h.logger.Error("upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Upload failed: "+err.Error())
		return
	}
	h.logger.Info("dataset uploaded", "path", saved.Path, "images", saved.ImageCount, "skipped", len(saved.Skipped))
	writeJSON(w, http.StatusOK, UploadResponse{
		Success:     true,
		Message:     fmt.Sprintf("Dataset uploaded successfully with %d images", saved.ImageCount),
		DatasetPath: saved.Path,
		ImageCount:  saved.ImageCount,
		Skipped:     saved.Skipped,
	})
}

// HandleTrain validates a start request and begins an evaluation run.
func (h *Handlers) HandleTrain(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTrainBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request: "+err.Error())
		return
	}
	if errs := validation.ValidateStartRequest(body); len(errs) > 0 {
		writeError(w, http.StatusBadRequest, "invalid request: "+strings.Join(errs, "; "))
		return
	}
	var req evaluation.StartRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	id, err := h.svc.Start(r.Context(), req)
	if err != nil {
		writeError(w, startErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, TrainResponse{
		Success: true,
		Message: "Evaluation started",
		Status:  string(models.JobRunning),
		RunID:   id,
	})
}

// startErrorStatus maps a Service.Start error to an HTTP status.
func startErrorStatus(err error) int {
	var (
		running *jobstate.AlreadyRunningError
		format  *dataset.FormatError
	)
	switch {
	case errors.As(err, &running):
		return http.StatusConflict
	case errors.As(err, &format):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dataset.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, evaluation.ErrInvalidRequest), errors.Is(err, dataset.ErrInvalidDataset):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// HandleStatus returns the current job snapshot.
func (h *Handlers) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// HandleReset returns the job to idle.
func (h *Handlers) HandleReset(w http.ResponseWriter, _ *http.Request) {
	h.svc.Reset()
	writeJSON(w, http.StatusOK, ResetResponse{Success: true, Message: "Evaluation state reset"})
}

// HandleSampleDataset describes the bundled dataset.
func (h *Handlers) HandleSampleDataset(w http.ResponseWriter, _ *http.Request) {
	cat := h.svc.Catalog()
	labels, err := cat.SampleLabels()
	if err != nil {
		if errors.Is(err, dataset.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Sample dataset not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if labels == nil {
		labels = []dataset.Label{}
	}
	writeJSON(w, http.StatusOK, SampleDatasetResponse{
		Path:        cat.SampleDir,
		SampleCount: len(labels),
		Samples:     labels,
	})
}

// HandleSampleImage serves one image of the bundled dataset.
func (h *Handlers) HandleSampleImage(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Catalog().SampleImagePath(chi.URLParam(r, "filename"))
	switch {
	case errors.Is(err, dataset.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "Invalid filename")
		return
	case errors.Is(err, dataset.ErrNotFound):
		writeError(w, http.StatusNotFound, "Image not found")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	http.ServeFile(w, r, p)
}

// HandleDetect runs OCR over one uploaded image. The optional form fields
// "engine" and "languages" (comma separated) override the defaults.
func (h *Handlers) HandleDetect(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.uploader.Limits.MaxImageBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+uploadBodyExtra)
	if err := r.ParseMultipartForm(maxMultipartMem); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := r.FormFile(detectFormField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close() //nolint:errcheck

	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		writeError(w, http.StatusBadRequest, "File must be an image")
		return
	}
	if header.Size > maxBytes {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("File size exceeds %dMB limit", maxBytes>>20))
		return
	}

	tmp, err := os.CreateTemp("", "ocrlab-detect-*"+filepath.Ext(header.Filename))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Detection failed: "+err.Error())
		return
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	_, err = io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Detection failed: "+err.Error())
		return
	}

	var languages []string
	if v := r.FormValue("languages"); v != "" {
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				languages = append(languages, l)
			}
		}
	}

	frags, err := h.svc.Detect(r.Context(), tmp.Name(), r.FormValue("engine"), languages)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ocr.ErrUnknownEngine) || errors.Is(err, ocr.ErrUnsupportedLanguage) ||
			errors.Is(err, ocr.ErrUnreadableImage) {
			status = http.StatusBadRequest
		}
		h.logger.Warn("detection failed", "file", header.Filename, "error", err)
		writeError(w, status, "Detection failed: "+err.Error())
		return
	}
	if frags == nil {
		frags = []ocr.Fragment{}
	}
	writeJSON(w, http.StatusOK, DetectResponse{Success: true, Results: frags, Count: len(frags)})
}

// HandleRuns returns a list of all recorded runs, with optional sort/order
// query params.
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	store := h.svc.History()
	if store == nil {
		writeJSON(w, http.StatusOK, []history.Summary{})
		return
	}
	runs, err := store.List(r.Context(), r.URL.Query().Get("sort"), r.URL.Query().Get("order"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []history.Summary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// HandleSummary returns aggregate metrics across all recorded runs.
func (h *Handlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	store := h.svc.History()
	if store == nil {
		writeJSON(w, http.StatusOK, history.Stats{})
		return
	}
	stats, err := store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handlers) lookupRun(w http.ResponseWriter, r *http.Request) (*history.Record, bool) {
	store := h.svc.History()
	if store == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return nil, false
	}
	rec, err := store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, history.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return rec, true
}

// HandleRunDetail returns a full run record with per-sample results.
func (h *Handlers) HandleRunDetail(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleExport downloads a run as json, xlsx, junit, md or html.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	contentType, _, ok := reporting.ExportFormat(format)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported export format %q", format))
		return
	}
	rec, ok := h.lookupRun(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := reporting.Export(&buf, rec, format); err != nil {
		writeError(w, http.StatusInternalServerError, "export failed: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", reporting.ExportFilename(rec, format)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck
}

// RegisterRoutes registers all web API routes on r.
func RegisterRoutes(r chi.Router, h *Handlers) {
	r.Get("/api/health", h.HandleHealth)
	r.Get("/api/datasets", h.HandleDatasets)
	r.Post("/api/upload", h.HandleUpload)
	r.Post("/api/train", h.HandleTrain)
	r.Get("/api/status", h.HandleStatus)
	r.Post("/api/reset", h.HandleReset)
	r.Get("/api/sample-dataset", h.HandleSampleDataset)
	r.Get("/api/sample-image/{filename}", h.HandleSampleImage)
	r.Post("/api/detect", h.HandleDetect)
	r.Get("/api/summary", h.HandleSummary)
	r.Get("/api/runs", h.HandleRuns)
	r.Get("/api/runs/{id}", h.HandleRunDetail)
	r.Get("/api/runs/{id}/export", h.HandleExport)
}

// NewRouter builds the API router with request ids, panic recovery, request
// logging and CORS.
func NewRouter(h *Handlers, allowedOrigins ...string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler { return CORSMiddleware(next, allowedOrigins...) })
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	RegisterRoutes(r, h)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code})
}
