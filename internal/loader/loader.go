// Package loader collects supported documents from the filesystem for
// batch ingestion.
package loader

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Document is one file collected for ingestion.
type Document struct {
	// Name is the path relative to the scanned root, used as the
	// document identifier in the index.
	Name    string
	Path    string
	Content []byte
}

// SupportedExtensions lists the file extensions collected by Scan.
var SupportedExtensions = []string{".txt", ".md", ".markdown"}

func supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Scan walks root and returns every readable supported file, sorted by
// name. Unreadable entries are skipped with a warning instead of failing
// the whole batch.
func Scan(root string, logger *slog.Logger) ([]Document, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var docs []Document
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logger.Warn("skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		if d.IsDir() || !supported(path) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable file", "path", path, "error", err)
			return nil
		}

		name, err := filepath.Rel(root, path)
		if err != nil {
			name = filepath.Base(path)
		}
		docs = append(docs, Document{Name: name, Path: path, Content: content})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}
