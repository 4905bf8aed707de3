//go:build gosseract

package main

import _ "github.com/ocrlab/ocrlab/internal/ocr/gosseract"
