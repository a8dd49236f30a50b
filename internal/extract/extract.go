// Package extract turns uploaded document bytes into clean plain text.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrUnsupportedFormat reports a file extension with no registered extractor.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var (
	pageNumberRe = regexp.MustCompile(`(?i)\bPage\s*\d+\b`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Extract returns the plain text content of a document, dispatching on the
// filename extension. Supported: .txt, .md, .markdown. PDF and DOCX parsing
// are external collaborator concerns and are not handled here.
func Extract(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return extractText(data)
	case ".md", ".markdown":
		return extractMarkdown(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

func extractText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.New("file is not valid UTF-8 text")
	}
	return string(data), nil
}

// Clean strips page-number artifacts, collapses whitespace runs, and drops
// non-ASCII bytes. Scanned-document exports commonly carry "Page N" markers
// and control characters that pollute embeddings.
func Clean(text string) string {
	text = pageNumberRe.ReplaceAllString(text, "")

	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' || (r >= 0x20 && r < 0x7f) {
			sb.WriteRune(r)
		}
	}

	return strings.TrimSpace(whitespaceRe.ReplaceAllString(sb.String(), " "))
}
