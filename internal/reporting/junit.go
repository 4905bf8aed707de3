// Package reporting renders finished runs as JUnit XML, XLSX workbooks,
// Markdown and HTML.
package reporting

import (
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/ocrlab/ocrlab/internal/history"
	"github.com/ocrlab/ocrlab/internal/models"
)

// JUnit XML schema types

// JUnitTestSuites is the top-level container.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite maps to one evaluation run.
type JUnitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase maps to one sample.
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
}

// JUnitFailure is a prediction that does not match its ground truth.
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// JUnitError is a run that did not complete.
type JUnitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// JUnitProperty is a key-value metadata entry.
type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// SuiteName is the name used for a run's testsuite: the dataset directory
// name, or the run id when the dataset is unknown.
func SuiteName(rec *history.Record) string {
	if rec.Dataset != "" {
		return filepath.Base(rec.Dataset)
	}
	return rec.ID
}

func runSeconds(rec *history.Record) float64 {
	if rec.EndTime.IsZero() {
		return 0
	}
	return rec.EndTime.Sub(rec.StartTime).Seconds()
}

// ConvertToJUnit converts a run record to JUnit XML.
func ConvertToJUnit(rec *history.Record) *JUnitTestSuites {
	suite := JUnitTestSuite{
		Name:      SuiteName(rec),
		Time:      runSeconds(rec),
		Timestamp: rec.StartTime.UTC().Format(time.RFC3339),
		Properties: []JUnitProperty{
			{Name: "run_id", Value: rec.ID},
			{Name: "engine", Value: rec.Engine},
			{Name: "languages", Value: strings.Join(rec.Languages, ",")},
			{Name: "gpu", Value: fmt.Sprint(rec.GPU)},
		},
	}

	switch {
	case rec.Status == models.JobFailed:
		suite.Tests, suite.Errors = 1, 1
		suite.TestCases = []JUnitTestCase{{
			Name:      "evaluation",
			Classname: rec.Engine,
			Time:      suite.Time,
			Error:     &JUnitError{Message: rec.Error, Type: "EvaluationError"},
		}}
	case rec.Results != nil:
		r := rec.Results
		suite.Tests = r.TotalSamples
		suite.Failures = r.TotalSamples - r.CorrectPredictions
		suite.Properties = append(suite.Properties,
			JUnitProperty{Name: "accuracy", Value: fmt.Sprintf("%.2f", r.Accuracy)},
			JUnitProperty{Name: "mean_cer", Value: fmt.Sprintf("%.4f", r.MeanCER)},
		)
		for _, d := range r.Details {
			suite.TestCases = append(suite.TestCases, convertSample(rec.Engine, d))
		}
	}

	return &JUnitTestSuites{
		Tests:      suite.Tests,
		Failures:   suite.Failures,
		Errors:     suite.Errors,
		Time:       suite.Time,
		TestSuites: []JUnitTestSuite{suite},
	}
}

func convertSample(engine string, d models.SampleResult) JUnitTestCase {
	tc := JUnitTestCase{Name: d.Filename, Classname: engine}
	if !d.Correct {
		tc.Failure = &JUnitFailure{
			Message: fmt.Sprintf("expected %q, got %q", d.GroundTruth, d.Predicted),
			Type:    "Mismatch",
			Body:    fmt.Sprintf("cer=%.4f confidence=%.2f\n", d.CER, d.Confidence),
		}
	}
	return tc
}

// WriteJUnit writes rec as an indented JUnit XML document.
func WriteJUnit(w io.Writer, rec *history.Record) error {
	data, err := xml.MarshalIndent(ConvertToJUnit(rec), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JUnit XML: %w", err)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
