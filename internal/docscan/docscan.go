// Package docscan discovers shared documents inside a working copy.
// Results are always derived from a fresh directory walk, never cached.
package docscan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mkrav/gitdocs/schema"
)

// Scan walks root recursively and returns all files whose extension is in
// exts. Dot directories (including .git) are skipped. Paths in the result
// are slash-separated and relative to root.
func Scan(root string, exts []string) ([]schema.Document, error) {
	var docs []schema.Document
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !hasExtension(d.Name(), exts) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		docs = append(docs, schema.Document{
			Name:    d.Name(),
			RelPath: filepath.ToSlash(rel),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].RelPath < docs[j].RelPath })
	return docs, nil
}

// Find resolves a document by exact relative path or, failing that, by
// unique base name. An ambiguous base name resolves to the first match in
// path order.
func Find(root string, exts []string, name string) (schema.Document, error) {
	docs, err := Scan(root, exts)
	if err != nil {
		return schema.Document{}, err
	}
	want := filepath.ToSlash(strings.TrimSpace(name))
	for _, doc := range docs {
		if doc.RelPath == want {
			return doc, nil
		}
	}
	for _, doc := range docs {
		if doc.Name == want {
			return doc, nil
		}
	}
	return schema.Document{}, schema.ErrDocumentNotFound
}

// ValidateName rejects document names that could escape the working copy
// or that do not carry an allowed extension. Accepts base names and
// slash-separated relative paths.
func ValidateName(name string, exts []string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 255 {
		return schema.ErrInvalidDocumentName
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") {
		return schema.ErrInvalidDocumentName
	}
	if strings.ContainsAny(name, "\x00\n\r") {
		return schema.ErrInvalidDocumentName
	}
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == "" || part == "." || part == ".." {
			return schema.ErrInvalidDocumentName
		}
	}
	if !hasExtension(name, exts) {
		return schema.ErrInvalidDocumentName
	}
	return nil
}

func hasExtension(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
