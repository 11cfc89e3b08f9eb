package internal

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// MaxExtractedRunes caps the text returned for a single file.
const MaxExtractedRunes = 10_000_000

// SupportedExtensions lists the file types picked up by discovery.
var SupportedExtensions = map[string]bool{
	".md": true, ".markdown": true,
	".txt": true,
	".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".java": true, ".cpp": true, ".c": true, ".h": true,
	".go": true, ".rs": true, ".rb": true, ".php": true, ".swift": true,
	".kt": true, ".scala": true,
	".html": true, ".css": true, ".scss": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".pdf": true,
}

// FormatExtractor turns one family of files into plain text.
type FormatExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Extractor dispatches files to a FormatExtractor by extension.
type Extractor struct {
	logger   *slog.Logger
	markdown FormatExtractor
	pdf      FormatExtractor
	text     FormatExtractor
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		logger:   logger,
		markdown: MarkdownExtractor{},
		pdf:      PDFExtractor{},
		text:     CodeExtractor{},
	}
}

// Extract returns the text of path, or "" when the file cannot be read or
// parsed. It never fails.
func (e *Extractor) Extract(ctx context.Context, path string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extractor panicked", "path", path, "panic", fmt.Sprint(r))
			text = ""
		}
	}()

	text, err := e.forPath(path).Extract(ctx, path)
	if err != nil {
		e.logger.Warn("extraction failed", "path", path, "error", err)
		return ""
	}
	return truncateRunes(text, MaxExtractedRunes)
}

func (e *Extractor) forPath(path string) FormatExtractor {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return e.markdown
	case ".pdf":
		return e.pdf
	default:
		return e.text
	}
}

func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
