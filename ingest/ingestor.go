package ingest

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// RawDocument is one normalized source document before chunking.
type RawDocument struct {
	// Source identifies the originating file (plus an item index for JSON
	// exports holding multiple conversations).
	Source string
	Text   string
	// Timestamp is the unix time the content refers to. Zero means unknown.
	Timestamp int64
}

var supportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".json": true,
}

// Ingestor loads local text, markdown, and JSON chat-export sources into a
// common document form.
type Ingestor struct {
	md goldmark.Markdown
}

func NewIngestor() *Ingestor {
	return &Ingestor{md: goldmark.New()}
}

// IngestPaths loads every supported file under the given paths.
// Directories are walked recursively; unsupported extensions are skipped.
func (i *Ingestor) IngestPaths(paths []string) ([]*RawDocument, error) {
	documents := []*RawDocument{}
	for _, raw := range paths {
		info, err := os.Stat(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to stat %s", raw)
		}
		if info.IsDir() {
			err := filepath.WalkDir(raw, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() || !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
					return nil
				}
				docs, err := i.loadFile(path)
				if err != nil {
					return err
				}
				documents = append(documents, docs...)
				return nil
			})
			if err != nil {
				return nil, errors.Wrapf(err, "failed to walk %s", raw)
			}
			continue
		}
		docs, err := i.loadFile(raw)
		if err != nil {
			return nil, err
		}
		documents = append(documents, docs...)
	}
	return documents, nil
}

func (i *Ingestor) loadFile(path string) ([]*RawDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return []*RawDocument{{
			Source:    path,
			Text:      normalizeText(string(raw)),
			Timestamp: timestampFromFilename(path),
		}}, nil
	case ".md":
		plain, err := i.markdownToPlain(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse markdown %s", path)
		}
		return []*RawDocument{{
			Source:    path,
			Text:      normalizeText(plain),
			Timestamp: timestampFromFilename(path),
		}}, nil
	case ".json":
		return loadJSON(path, raw)
	}
	return nil, nil
}

// markdownToPlain strips markdown structure, keeping block boundaries as
// blank lines so the chunker still sees paragraph breaks.
func (i *Ingestor) markdownToPlain(source []byte) (string, error) {
	doc := i.md.Parser().Parse(text.NewReader(source))

	var sb strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				sb.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteString("\n")
			}
		case *ast.AutoLink:
			sb.Write(node.URL(source))
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

func loadJSON(path string, raw []byte) ([]*RawDocument, error) {
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		// Not valid JSON; treat as plain text rather than dropping content.
		return []*RawDocument{{Source: path, Text: normalizeText(string(raw))}}, nil
	}

	switch v := data.(type) {
	case []any:
		documents := []*RawDocument{}
		for idx, item := range v {
			texts := []string{}
			extractStrings(item, &texts)
			joined := normalizeText(strings.Join(dedupe(texts), "\n\n"))
			if joined == "" {
				continue
			}
			documents = append(documents, &RawDocument{
				Source:    fmt.Sprintf("%s#%d", path, idx),
				Text:      joined,
				Timestamp: timestampFromItem(item),
			})
		}
		return documents, nil
	case map[string]any:
		texts := []string{}
		extractStrings(v, &texts)
		joined := normalizeText(strings.Join(dedupe(texts), "\n\n"))
		if joined == "" {
			return nil, nil
		}
		return []*RawDocument{{
			Source:    path,
			Text:      joined,
			Timestamp: timestampFromItem(v),
		}}, nil
	}
	return nil, nil
}

// contentKeys are the content-bearing keys checked first in chat-export
// objects, so noisy metadata fields do not drown the actual messages.
var contentKeys = []string{"parts", "text", "content", "message"}

func extractStrings(node any, out *[]string) {
	switch v := node.(type) {
	case string:
		if cleaned := strings.TrimSpace(v); cleaned != "" {
			*out = append(*out, cleaned)
		}
	case []any:
		for _, item := range v {
			extractStrings(item, out)
		}
	case map[string]any:
		seen := map[string]bool{}
		for _, key := range contentKeys {
			if value, ok := v[key]; ok {
				extractStrings(value, out)
				seen[key] = true
			}
		}
		for key, value := range v {
			if !seen[key] {
				extractStrings(value, out)
			}
		}
	}
}

func dedupe(items []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

var multiBlankPattern = regexp.MustCompile(`\n{3,}`)

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = multiBlankPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

var filenameDatePattern = regexp.MustCompile(`(20\d{2})[-_](\d{2})[-_](\d{2})`)

// timestampFromFilename extracts a date like 2024-06-01 from the file name.
func timestampFromFilename(path string) int64 {
	match := filenameDatePattern.FindStringSubmatch(filepath.Base(path))
	if match == nil {
		return 0
	}
	t, err := time.Parse("2006-01-02", match[1]+"-"+match[2]+"-"+match[3])
	if err != nil {
		return 0
	}
	return t.Unix()
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// timestampFromItem reads a creation time from a chat-export object.
func timestampFromItem(item any) int64 {
	obj, ok := item.(map[string]any)
	if !ok {
		return 0
	}
	for _, key := range []string{"create_time", "timestamp", "update_time"} {
		switch v := obj[key].(type) {
		case float64:
			if v > 0 {
				return int64(v)
			}
		case string:
			for _, layout := range timestampLayouts {
				if t, err := time.Parse(layout, v); err == nil {
					return t.Unix()
				}
			}
		}
	}
	return 0
}
