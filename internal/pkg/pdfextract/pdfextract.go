package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MaxUploadSize bounds PDFs accepted for knowledge ingestion.
const MaxUploadSize = 20 << 20

var ErrTooLarge = errors.New("pdf exceeds upload size limit")

// ExtractText returns the plain text of every page, pages separated by a
// blank line. A PDF without extractable text yields "".
func ExtractText(r io.ReaderAt, size int64) (string, error) {
	if size <= 0 {
		return "", nil
	}
	if size > MaxUploadSize {
		return "", ErrTooLarge
	}

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("open pdf failed: %w", err)
	}

	pages := make([]string, 0, reader.NumPage())
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("extract pdf page %d failed: %w", i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

// ExtractFromReader buffers r and extracts its text.
func ExtractFromReader(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return "", fmt.Errorf("read pdf failed: %w", err)
	}
	return ExtractText(bytes.NewReader(b), int64(len(b)))
}
