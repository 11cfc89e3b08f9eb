package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const maxStructures = 20

var extLanguage = map[string]string{
	".py":    "python",
	".js":    "javascript",
	".ts":    "javascript",
	".jsx":   "javascript",
	".tsx":   "javascript",
	".java":  "java",
	".cpp":   "java",
	".c":     "java",
	".h":     "java",
	".go":    "java",
	".rs":    "java",
	".swift": "java",
	".kt":    "java",
}

type structurePattern struct {
	re     *regexp.Regexp
	prefix string
}

// structurePatterns are per language family; "java" stands for every
// C-like syntax.
var structurePatterns = map[string][]structurePattern{
	"python": {
		{regexp.MustCompile(`(?m)^class\s+(\w+)`), "class"},
		{regexp.MustCompile(`(?m)^def\s+(\w+)`), "def"},
	},
	"javascript": {
		{regexp.MustCompile(`class\s+(\w+)`), "class"},
		{regexp.MustCompile(`function\s+(\w+)`), "function"},
		{regexp.MustCompile(`(?:const|let)\s+(\w+)\s*=\s*(?:async\s*)?\(`), "const"},
	},
	"java": {
		{regexp.MustCompile(`class\s+(\w+)`), "class"},
		{regexp.MustCompile(`(?:public|private|protected)?\s*(?:static)?\s*\w+\s+(\w+)\s*\(`), "method"},
	},
}

var controlKeywords = map[string]bool{"if": true, "for": true, "while": true, "switch": true}

// CodeExtractor is the generic text path: source code and every other
// non-markdown, non-PDF file.
type CodeExtractor struct{}

func (CodeExtractor) Extract(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	content := strings.ToValidUTF8(string(data), "")
	lang, ok := extLanguage[strings.ToLower(filepath.Ext(path))]
	if !ok {
		lang = "unknown"
	}

	out := fmt.Sprintf("[File: %s]\n[Language: %s]\n\n%s", filepath.Base(path), lang, content)
	if s := extractStructures(content, lang); s != "" {
		out += "\n\n[Structures: " + s + "]"
	}
	return strings.TrimSpace(out), nil
}

func extractStructures(content, lang string) string {
	var found []string
	for _, p := range structurePatterns[lang] {
		for _, m := range p.re.FindAllStringSubmatch(content, -1) {
			if p.prefix == "method" && controlKeywords[m[1]] {
				continue
			}
			found = append(found, p.prefix+" "+m[1])
		}
	}
	if len(found) > maxStructures {
		found = found[:maxStructures]
	}
	return strings.Join(found, ", ")
}
