package reader

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/kailas-cloud/flatrag/internal/domain"
)

// PDFReader extracts plain text from PDF files. PDFs carry no metadata header.
type PDFReader struct{}

// CanRead accepts .pdf files.
func (r *PDFReader) CanRead(path string) bool {
	return hasExt(path, ".pdf")
}

// Read extracts the text of every page.
func (r *PDFReader) Read(path string) (domain.Document, error) {
	if err := checkExists(path); err != nil {
		return domain.Document{}, err
	}

	f, pr, err := pdf.Open(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to read pdf document: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	text, err := pr.GetPlainText()
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(text); err != nil {
		return domain.Document{}, fmt.Errorf("failed to extract pdf text: %w", err)
	}

	return newDocument(path, nil, buf.String()), nil
}
