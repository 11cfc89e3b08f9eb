package internal

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	frontmatterRe = regexp.MustCompile(`(?s)\A---[ \t]*\r?\n(.*?)\r?\n---[ \t]*\r?\n`)
	wikilinkRe    = regexp.MustCompile(`\[\[([^\]|]+)(?:\|([^\]]+))?\]\]`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
)

// frontmatterKeys are the frontmatter fields worth keeping in the index.
var frontmatterKeys = map[string]bool{
	"title": true, "tags": true, "topics": true, "summary": true,
	"description": true, "author": true, "date": true,
}

// MarkdownExtractor handles Obsidian-style notes: frontmatter becomes a
// metadata line and wiki links become their display text.
type MarkdownExtractor struct{}

func (MarkdownExtractor) Extract(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return processMarkdown(strings.ToValidUTF8(string(data), "")), nil
}

func processMarkdown(content string) string {
	var meta string
	if m := frontmatterRe.FindStringSubmatchIndex(content); m != nil {
		meta = frontmatterSummary(content[m[2]:m[3]])
		content = content[m[1]:]
	}

	content = wikilinkRe.ReplaceAllStringFunc(content, func(link string) string {
		parts := wikilinkRe.FindStringSubmatch(link)
		if parts[2] != "" {
			return parts[2]
		}
		return parts[1]
	})
	content = blankLinesRe.ReplaceAllString(content, "\n\n")

	if meta != "" {
		content = fmt.Sprintf("[Metadata: %s]\n\n%s", meta, content)
	}
	return strings.TrimSpace(content)
}

// frontmatterSummary renders the useful keys as "key: value, key: value" in
// document order.
func frontmatterSummary(raw string) string {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil || len(doc.Content) == 0 {
		return frontmatterLines(raw)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return ""
	}

	var parts []string
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := strings.ToLower(strings.TrimSpace(root.Content[i].Value))
		if !frontmatterKeys[key] {
			continue
		}
		if value := nodeText(root.Content[i+1]); value != "" {
			parts = append(parts, key+": "+value)
		}
	}
	return strings.Join(parts, ", ")
}

func nodeText(n *yaml.Node) string {
	switch n.Kind {
	case yaml.ScalarNode:
		return strings.TrimSpace(n.Value)
	case yaml.SequenceNode:
		items := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			if v := nodeText(c); v != "" {
				items = append(items, v)
			}
		}
		return strings.Join(items, ", ")
	}
	return ""
}

// frontmatterLines is the fallback for frontmatter that is not valid YAML,
// e.g. Obsidian notes with unquoted colons.
func frontmatterLines(raw string) string {
	var parts []string
	for _, line := range strings.Split(raw, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.Trim(strings.TrimSpace(value), "[]")
		if frontmatterKeys[key] && value != "" {
			parts = append(parts, key+": "+value)
		}
	}
	return strings.Join(parts, ", ")
}
