package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sigongjoa/exam-builder/internal/textnorm"
)

// LoadDir reads every curriculum YAML file under rootDir. Files without a
// subject are skipped.
func LoadDir(rootDir string) ([]Document, error) {
	var docs []Document
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}

		doc, ok, err := loadDocument(path)
		if err != nil {
			return err
		}
		if ok {
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	entries := 0
	for _, d := range docs {
		entries += len(d.Chapters)
	}
	slog.Info("curriculum loaded", "subjects", len(docs), "entries", entries)
	return docs, nil
}

func loadDocument(path string) (Document, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, false, err
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping invalid curriculum YAML", "path", path, "error", err)
		return Document{}, false, nil
	}

	doc.Subject = textnorm.NFC(doc.Subject)
	if doc.Subject == "" {
		return Document{}, false, nil
	}

	seen := make(map[string]bool, len(doc.Chapters))
	chapters := doc.Chapters[:0]
	for i, e := range doc.Chapters {
		e.Subject = doc.Subject
		e.ChapterCode = textnorm.NFC(e.ChapterCode)
		if e.ChapterCode == "" || seen[e.ChapterCode] {
			slog.Warn("skipping curriculum entry", "path", path, "index", i, "chapter_code", e.ChapterCode)
			continue
		}
		seen[e.ChapterCode] = true
		if e.SortOrder == 0 {
			e.SortOrder = i + 1
		}
		chapters = append(chapters, e)
	}
	doc.Chapters = chapters
	return doc, true, nil
}
