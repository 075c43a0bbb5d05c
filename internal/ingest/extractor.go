// Package ingest turns denial letters and policy documents into parsed
// text with stable byte offsets for downstream citation anchoring.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Extractor extracts text content from a document file.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// NewExtractor creates an Extractor based on the configured provider.
func NewExtractor(provider, pdfToTextPath, mistralKey string) (Extractor, error) {
	switch provider {
	case "local", "":
		return NewPdfToText(pdfToTextPath), nil
	case "mistral":
		if mistralKey == "" {
			return nil, eris.New("ingest: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(mistralKey, ""), nil
	default:
		return nil, eris.Errorf("ingest: unknown provider %q", provider)
	}
}

// FileExtractor dispatches on file extension: PDFs go through the configured
// PDF extractor, everything else is read as plain text.
type FileExtractor struct {
	pdf Extractor
}

// NewFileExtractor wraps a PDF extractor with plain-text passthrough.
func NewFileExtractor(pdf Extractor) *FileExtractor {
	return &FileExtractor{pdf: pdf}
}

// ExtractText extracts text from the file at path.
func (f *FileExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return f.pdf.ExtractText(ctx, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "ingest: read %s", path)
	}
	return string(data), nil
}
