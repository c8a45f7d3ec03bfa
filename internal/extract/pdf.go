// Package extract reads the text layer of PDF documents.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"pdfchat/internal/domain"
)

var errNoText = errors.New("no extractable text found (PDF might be scanned images)")

// Extractor extracts plain text from PDF files.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor returns an Extractor. A nil logger disables logging.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract reads the PDF at path and returns its pages' text joined by newlines
// together with the page count. Pages without a text layer contribute an empty
// string. The call fails when the joined text is blank.
func (e *Extractor) Extract(path string) (string, int, error) {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return "", 0, &domain.ExtractionError{Path: path, Err: fmt.Errorf("unsupported file type %q", filepath.Ext(path))}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", 0, &domain.ExtractionError{Path: path, Err: fmt.Errorf("read file: %w", err)}
	}
	text, pages, err := e.ExtractBytes(content)
	if err != nil {
		var ee *domain.ExtractionError
		if errors.As(err, &ee) {
			ee.Path = path
		}
		return "", 0, err
	}
	e.logger.Debug("pdf extracted",
		zap.String("path", path),
		zap.Int("pages", pages),
		zap.Int("chars", len(text)),
	)
	return text, pages, nil
}

// ExtractBytes extracts the text of an in-memory PDF. Failures are
// *domain.ExtractionError with Path "<memory>".
func (e *Extractor) ExtractBytes(content []byte) (text string, pages int, err error) {
	defer func() {
		if err != nil {
			err = &domain.ExtractionError{Path: "<memory>", Err: err}
		}
	}()
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, pages, err = "", 0, fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", 0, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	parts := make([]string, numPages)
	for i := 0; i < numPages; i++ {
		page := r.Page(i + 1)
		if page.V.IsNull() || page.V.Key("Contents").IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("extract page %d: %w", i+1, err)
		}
		parts[i] = pageText
	}
	text = strings.Join(parts, "\n")
	if strings.TrimSpace(text) == "" {
		return "", 0, errNoText
	}
	return text, numPages, nil
}
