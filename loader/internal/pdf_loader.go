package internal

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// Keep pdfcpu from creating a config directory under the user's home.
	model.ConfigPath = "disable"
}

var (
	spaceRunRe = regexp.MustCompile(`[ \t]+`)
	hyphenRe   = regexp.MustCompile(`-\s*\n\s*`)
)

// PDFExtractor validates a document with pdfcpu, then reads every page's
// text through the page fonts, so simple encodings and ToUnicode CMaps
// (Type0/Identity-H included) decode to real characters.
type PDFExtractor struct{}

func (PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return "", fmt.Errorf("validate pdf: %w", err)
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var pages []string
	for nr := 1; nr <= r.NumPage(); nr++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(nr)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		for _, name := range page.Fonts() {
			font := page.Font(name)
			fonts[name] = &font
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", nr, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, fmt.Sprintf("[Page %d]\n%s", nr, text))
	}
	return cleanPDFText(strings.Join(pages, "\n\n")), nil
}

func cleanPDFText(text string) string {
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	text = hyphenRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
