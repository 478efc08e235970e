// Package extract reads the text of documents on disk.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Supported lists the file extensions Extract understands.
var Supported = []string{".txt", ".md", ".pdf"}

// FileExtractor extracts plain text from .txt, .md and .pdf files.
type FileExtractor struct{}

func New() *FileExtractor { return &FileExtractor{} }

// IsSupported reports whether path has an extension Extract can read.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range Supported {
		if ext == s {
			return true
		}
	}
	return false
}

func (e *FileExtractor) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	case ".pdf":
		return extractPDF(ctx, path)
	default:
		return "", fmt.Errorf("unsupported document type %q (supported: %s)", filepath.Ext(path), strings.Join(Supported, ", "))
	}
}

// extractPDF prefixes each page's text with "[Page N]" so answers can be
// traced back to a page.
func extractPDF(ctx context.Context, path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read page %d of %s: %w", i, path, err)
		}
		fmt.Fprintf(&b, "[Page %d] %s\n\n", i, text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("no text extracted from %s", path)
	}
	return b.String(), nil
}
