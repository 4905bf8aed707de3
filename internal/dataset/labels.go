// Package dataset reads and writes OCR evaluation datasets: a directory of
// images plus a labels.txt file with one "filename<TAB>text" entry per line.
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LabelsFile is the name of the ground-truth file inside a dataset directory.
const LabelsFile = "labels.txt"

// Label is one parsed line of a labels file.
type Label struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

// FormatError reports a malformed labels file or a dataset whose labels
// reference images that do not exist.
type FormatError struct {
	File string
	// Line is 1-based; 0 when the problem is not tied to a line.
	Line int
	Msg  string
}

func (e *FormatError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("dataset: %s:%d: %s", e.File, e.Line, e.Msg)
	case e.File != "":
		return fmt.Sprintf("dataset: %s: %s", e.File, e.Msg)
	case e.Line > 0:
		return fmt.Sprintf("dataset: line %d: %s", e.Line, e.Msg)
	}
	return "dataset: " + e.Msg
}

// ParseLabels reads labels in file order. Blank lines are skipped. The text is
// everything after the first TAB, kept verbatim apart from a trailing CR.
func ParseLabels(r io.Reader) ([]Label, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)

	var labels []Label
	seen := map[string]int{}
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSuffix(sc.Text(), "\r")
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, text, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, &FormatError{Line: lineNo, Msg: "expected filename<TAB>text"}
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, &FormatError{Line: lineNo, Msg: "empty filename"}
		}
		if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			return nil, &FormatError{Line: lineNo, Msg: fmt.Sprintf("filename %q must not contain a path", name)}
		}
		if prev, dup := seen[name]; dup {
			return nil, &FormatError{Line: lineNo, Msg: fmt.Sprintf("duplicate filename %q (first on line %d)", name, prev)}
		}
		seen[name] = lineNo
		labels = append(labels, Label{Filename: name, Text: text})
	}
	if err := sc.Err(); err != nil {
		return nil, &FormatError{Line: lineNo + 1, Msg: err.Error()}
	}
	return labels, nil
}

// ReadLabels parses the labels file at path.
func ReadLabels(path string) ([]Label, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	labels, err := ParseLabels(f)
	var fe *FormatError
	if errors.As(err, &fe) {
		fe.File = path
	}
	return labels, err
}

// CountLabels returns the number of non-blank lines in a labels file.
func CountLabels(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close() //nolint:errcheck

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	n := 0
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n, sc.Err()
}
