package extraction

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	maxTextBytes     = 512 * 1024 // cap for extracted text
	scannedThreshold = 50         // chars per page below which a PDF is considered scanned
)

// DocumentText is the plain text of an uploaded document.
type DocumentText struct {
	Text      string `json:"text"`
	Format    string `json:"format"` // "pdf" or "text"
	PageCount int    `json:"page_count"`
	Truncated bool   `json:"truncated"`
}

// ReadDocument converts an uploaded file to plain text. PDFs are detected by
// signature or extension; anything else must be UTF-8 text.
func ReadDocument(data []byte, filename string) (*DocumentText, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, invalidDocument("document is empty", nil)
	}

	if bytes.HasPrefix(data, []byte("%PDF-")) || strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return readPDF(data)
	}

	if !utf8.Valid(data) {
		return nil, invalidDocument("document is neither a PDF nor UTF-8 text", nil)
	}
	text, truncated := capText(string(data))
	return &DocumentText{Text: text, Format: "text", PageCount: 1, Truncated: truncated}, nil
}

func readPDF(data []byte) (doc *DocumentText, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("recovered from panic while reading PDF", "panic", r)
			doc, err = nil, invalidDocument("PDF could not be parsed", fmt.Errorf("panic: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, invalidDocument("open PDF reader", err)
	}

	pages := max(reader.NumPage(), 1)

	plainText, err := reader.GetPlainText()
	if err != nil {
		return nil, invalidDocument("extract plain text", err)
	}

	textBytes, err := io.ReadAll(io.LimitReader(plainText, int64(maxTextBytes)+1))
	if err != nil {
		return nil, invalidDocument("read plain text", err)
	}

	text, truncated := capText(string(textBytes))
	if len(strings.TrimSpace(text))/pages < scannedThreshold {
		return nil, invalidDocument("PDF has no extractable text (scanned image?)", nil)
	}
	return &DocumentText{Text: text, Format: "pdf", PageCount: pages, Truncated: truncated}, nil
}

func capText(s string) (string, bool) {
	if len(s) <= maxTextBytes {
		return s, false
	}
	return truncate(s, maxTextBytes), true
}

func invalidDocument(msg string, cause error) *ExtractionError {
	return &ExtractionError{Code: ErrInvalidDocument, Message: msg, Method: "document", Cause: cause}
}
