package ocr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreadableImage means the image is missing or cannot be decoded.
	ErrUnreadableImage = errors.New("unreadable image")
	// ErrUnsupportedLanguage means a requested language has no model.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrUnknownEngine is returned by Open for an unregistered engine name.
	ErrUnknownEngine = errors.New("unknown OCR engine")
)

// Error is the failure type returned by engines.
type Error struct {
	// Op is the engine operation, e.g. "open" or "recognize".
	Op    string
	Image string
	Err   error
}

func (e *Error) Error() string {
	if e.Image != "" {
		return fmt.Sprintf("ocr %s %s: %v", e.Op, e.Image, e.Err)
	}
	return fmt.Sprintf("ocr %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
