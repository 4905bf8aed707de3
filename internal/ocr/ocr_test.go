package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct{ cfg Config }

func (s *stubEngine) Name() string { return "stub" }
func (s *stubEngine) Recognize(context.Context, Request) ([]Fragment, error) {
	return nil, nil
}
func (s *stubEngine) Close() error { return nil }

func TestFullText(t *testing.T) {
	tests := []struct {
		name      string
		fragments []Fragment
		want      string
	}{
		{"none", nil, ""},
		{"one", []Fragment{{Text: "Hello"}}, "Hello"},
		{"ordered", []Fragment{{Text: "Hello"}, {Text: "World"}}, "Hello World"},
		{"keeps inner spacing", []Fragment{{Text: "a  b"}, {Text: "c"}}, "a  b c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FullText(tt.fragments))
		})
	}
}

func TestMeanConfidence(t *testing.T) {
	assert.Zero(t, MeanConfidence(nil))
	assert.InDelta(t, 0.75, MeanConfidence([]Fragment{{Confidence: 0.5}, {Confidence: 1}}), 1e-9)
}

func TestBoxFromRect(t *testing.T) {
	b := BoxFromRect(10, 20, 30, 40)
	assert.Equal(t, Point{X: 10, Y: 20}, b[0])
	assert.Equal(t, Point{X: 40, Y: 60}, b[2])
}

func TestRegistry(t *testing.T) {
	Register("stub-test", func(cfg Config) (Engine, error) {
		return &stubEngine{cfg: cfg}, nil
	})

	assert.Contains(t, Engines(), "stub-test")

	e, err := Open("stub-test", Config{Languages: []string{"en"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"en"}, e.(*stubEngine).cfg.Languages)

	assert.Panics(t, func() {
		Register("stub-test", func(Config) (Engine, error) { return nil, nil })
	})
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open("does-not-exist", Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownEngine))

	var ocrErr *Error
	require.ErrorAs(t, err, &ocrErr)
	assert.Equal(t, "open", ocrErr.Op)
}

func TestErrorFormatting(t *testing.T) {
	err := &Error{Op: "recognize", Image: "a.png", Err: ErrUnreadableImage}
	assert.Equal(t, "ocr recognize a.png: unreadable image", err.Error())
	assert.True(t, errors.Is(err, ErrUnreadableImage))

	err = &Error{Op: "open", Err: ErrUnsupportedLanguage}
	assert.Equal(t, "ocr open: unsupported language", err.Error())
}

func TestFragmentJSON(t *testing.T) {
	f := Fragment{Text: "Hi", Confidence: 0.5, Box: BoxFromRect(1, 2, 3, 4)}
	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"Hi","confidence":0.5,"bbox":[[1,2],[4,2],[4,6],[1,6]]}`, string(b))

	var back Fragment
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, f, back)
}
