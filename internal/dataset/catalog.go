package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Kind distinguishes the bundled sample dataset from user uploads.
type Kind string

const (
	KindSample   Kind = "sample"
	KindUploaded Kind = "uploaded"
)

// SampleName is the display name of the bundled dataset.
const SampleName = "Sample Dataset"

var (
	// ErrInvalidDataset means the dataset reference itself is malformed.
	ErrInvalidDataset = errors.New("invalid dataset")
	// ErrInvalidName means a requested file name is unsafe or not an image.
	ErrInvalidName = errors.New("invalid filename")
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImageName reports whether name has a supported image extension.
func IsImageName(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// Info describes a dataset available for evaluation.
type Info struct {
	Name       string `json:"name"`
	Type       Kind   `json:"type"`
	Path       string `json:"path"`
	ImageCount int    `json:"image_count"`
}

// Catalog knows where datasets live on disk.
type Catalog struct {
	SampleDir string
	UploadDir string
}

// List returns the sample dataset (when present) followed by every uploaded
// directory that contains a labels file, oldest name first.
func (c *Catalog) List() ([]Info, error) {
	var out []Info
	if n, err := CountLabels(filepath.Join(c.SampleDir, LabelsFile)); err == nil {
		out = append(out, Info{Name: SampleName, Type: KindSample, Path: c.SampleDir, ImageCount: n})
	}

	entries, err := os.ReadDir(c.UploadDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return nil, fmt.Errorf("dataset: list %s: %w", c.UploadDir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(c.UploadDir, e.Name())
		n, err := CountLabels(filepath.Join(dir, LabelsFile))
		if err != nil {
			continue
		}
		out = append(out, Info{Name: e.Name(), Type: KindUploaded, Path: dir, ImageCount: n})
	}
	return out, nil
}

// Resolve returns the directory for a dataset reference. Uploaded paths may be
// absolute or relative to UploadDir but must stay inside it.
func (c *Catalog) Resolve(kind Kind, path string) (string, error) {
	switch kind {
	case KindSample:
		return c.SampleDir, nil
	case KindUploaded:
	default:
		return "", fmt.Errorf("%w: unknown dataset type %q", ErrInvalidDataset, kind)
	}

	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: dataset path required for uploaded datasets", ErrInvalidDataset)
	}
	root, err := filepath.Abs(c.UploadDir)
	if err != nil {
		return "", err
	}
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p, err = filepath.Abs(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the uploads directory", ErrInvalidDataset, path)
	}
	return p, nil
}

// SampleLabels returns the labels of the bundled dataset.
func (c *Catalog) SampleLabels() ([]Label, error) {
	p := filepath.Join(c.SampleDir, LabelsFile)
	if _, err := os.Stat(p); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return ReadLabels(p)
}

// SampleImagePath returns the path of an image in the sample dataset.
func (c *Catalog) SampleImagePath(name string) (string, error) {
	base := filepath.Base(name)
	if name == "" || base != name || strings.HasPrefix(base, ".") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !IsImageName(base) {
		return "", fmt.Errorf("%w: %q is not an image", ErrInvalidName, name)
	}
	p := filepath.Join(c.SampleDir, base)
	fi, err := os.Stat(p)
	if err != nil || !fi.Mode().IsRegular() {
		return "", fmt.Errorf("%w: image %s", ErrNotFound, base)
	}
	return p, nil
}
