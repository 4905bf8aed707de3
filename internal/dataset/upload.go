package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Limits bounds a single upload.
type Limits struct {
	MaxFiles       int   `yaml:"max_files" json:"max_files"`
	MaxImageBytes  int64 `yaml:"max_image_bytes" json:"max_image_bytes"`
	MaxLabelsBytes int64 `yaml:"max_labels_bytes" json:"max_labels_bytes"`
}

// DefaultLimits returns 100 images of at most 10 MiB and a 1 MiB labels file.
func DefaultLimits() Limits {
	return Limits{MaxFiles: 100, MaxImageBytes: 10 << 20, MaxLabelsBytes: 1 << 20}
}

// UploadFile is one submitted file.
type UploadFile struct {
	Name    string
	Content io.Reader
}

// UploadError is returned when a submission violates a limit or format rule.
// Nothing is written to disk when it is returned.
type UploadError struct {
	Msg string
}

func (e *UploadError) Error() string { return e.Msg }

// Uploaded describes a saved dataset.
type Uploaded struct {
	Path       string   `json:"dataset_path"`
	ImageCount int      `json:"image_count"`
	Skipped    []string `json:"skipped,omitempty"`
}

// Uploader writes new datasets below Dir.
type Uploader struct {
	Dir    string
	Limits Limits

	now func() time.Time
}

// NewUploader returns an Uploader using DefaultLimits for any zero limit.
func NewUploader(dir string, limits Limits) *Uploader {
	def := DefaultLimits()
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = def.MaxFiles
	}
	if limits.MaxImageBytes <= 0 {
		limits.MaxImageBytes = def.MaxImageBytes
	}
	if limits.MaxLabelsBytes <= 0 {
		limits.MaxLabelsBytes = def.MaxLabelsBytes
	}
	return &Uploader{Dir: dir, Limits: limits, now: time.Now}
}

type pending struct {
	name string
	data []byte
}

// Save validates the whole submission, then writes it to a new
// dataset_<YYYYmmdd_HHMMSS> directory. Files without an image extension are
// skipped and listed in the result.
func (u *Uploader) Save(images []UploadFile, labels UploadFile) (*Uploaded, error) {
	if len(images) > u.Limits.MaxFiles {
		return nil, &UploadError{Msg: fmt.Sprintf("Maximum %d files allowed per upload", u.Limits.MaxFiles)}
	}

	labelData, err := u.readLabels(labels)
	if err != nil {
		return nil, err
	}

	var (
		files   []pending
		skipped []string
		index   = map[string]int{}
	)
	for _, f := range images {
		name := sanitize(f.Name)
		if name == "" || !IsImageName(name) {
			skipped = append(skipped, f.Name)
			continue
		}
		data, err := readLimited(f.Content, u.Limits.MaxImageBytes)
		if err != nil {
			if errors.Is(err, errTooLarge) {
				return nil, &UploadError{Msg: fmt.Sprintf("File %s exceeds %s limit", name, humanBytes(u.Limits.MaxImageBytes))}
			}
			return nil, fmt.Errorf("dataset: read %s: %w", name, err)
		}
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			return nil, &UploadError{Msg: fmt.Sprintf("File %s is not a valid image: %v", name, err)}
		}
		// A repeated name replaces the earlier file.
		if i, ok := index[name]; ok {
			files[i].data = data
			continue
		}
		index[name] = len(files)
		files = append(files, pending{name: name, data: data})
	}

	dir, err := u.makeDir()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), f.data, 0o644); err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("dataset: write %s: %w", f.name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, LabelsFile), labelData, 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("dataset: write labels: %w", err)
	}
	return &Uploaded{Path: dir, ImageCount: len(files), Skipped: skipped}, nil
}

func (u *Uploader) readLabels(labels UploadFile) ([]byte, error) {
	if labels.Content == nil {
		return nil, &UploadError{Msg: "Labels file is required"}
	}
	data, err := readLimited(labels.Content, u.Limits.MaxLabelsBytes)
	if err != nil {
		if errors.Is(err, errTooLarge) {
			return nil, &UploadError{Msg: fmt.Sprintf("Labels file exceeds %s limit", humanBytes(u.Limits.MaxLabelsBytes))}
		}
		return nil, fmt.Errorf("dataset: read labels: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, &UploadError{Msg: "Labels file must be valid UTF-8 text"}
	}
	n := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n++
		if !strings.Contains(line, "\t") {
			return nil, &UploadError{Msg: fmt.Sprintf("Invalid labels format at line %d. Expected: filename<TAB>text", n)}
		}
	}
	return data, nil
}

func (u *Uploader) makeDir() (string, error) {
	if err := os.MkdirAll(u.Dir, 0o755); err != nil {
		return "", fmt.Errorf("dataset: create upload dir: %w", err)
	}
	now := time.Now
	if u.now != nil {
		now = u.now
	}
	name := "dataset_" + now().Format("20060102_150405")
	dir := filepath.Join(u.Dir, name)
	err := os.Mkdir(dir, 0o755)
	if errors.Is(err, os.ErrExist) {
		dir = filepath.Join(u.Dir, name+"_"+uuid.NewString()[:8])
		err = os.Mkdir(dir, 0o755)
	}
	if err != nil {
		return "", fmt.Errorf("dataset: create %s: %w", dir, err)
	}
	return dir, nil
}

// sanitize keeps only the base name and drops hidden files.
func sanitize(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" || strings.HasPrefix(base, ".") {
		return ""
	}
	return base
}

var errTooLarge = errors.New("too large")

func readLimited(r io.Reader, max int64) ([]byte, error) {
	if r == nil {
		return nil, errors.New("no content")
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, errTooLarge
	}
	return data, nil
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dMB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%dKB", n>>10)
	}
	return fmt.Sprintf("%d bytes", n)
}
