package semantic

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true, "node_modules": true, "vendor": true,
	"dist": true, "build": true, "target": true, "out": true, "bin": true,
	"__pycache__": true, ".venv": true, "venv": true, ".idea": true, ".vscode": true,
	".sage": true,
}

// docExts are indexed as documentation.
var docExts = map[string]string{
	".md": "markdown", ".markdown": "markdown", ".rst": "rst",
	".adoc": "asciidoc", ".txt": "text",
}

// codeExts are indexed as source files.
var codeExts = map[string]string{
	".go": "go", ".py": "python", ".js": "javascript", ".jsx": "javascript",
	".ts": "typescript", ".tsx": "typescript", ".rs": "rust", ".java": "java",
	".kt": "kotlin", ".rb": "ruby", ".php": "php", ".c": "c", ".h": "c",
	".cc": "cpp", ".cpp": "cpp", ".hpp": "cpp", ".cs": "csharp", ".swift": "swift",
	".scala": "scala", ".sh": "shell", ".sql": "sql", ".proto": "protobuf",
	".yaml": "yaml", ".yml": "yaml", ".toml": "toml", ".json": "json",
	".html": "html", ".css": "css", ".vue": "vue", ".svelte": "svelte",
}

// fileEntry is one indexable file found under a project.
type fileEntry struct {
	Path     string
	Size     int64
	ModNanos int64
	Source   Source
	Language string
}

// classify returns the source kind and language for a file name.
func classify(name string) (Source, string, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if lang, ok := docExts[ext]; ok {
		return SourceDoc, lang, true
	}
	if lang, ok := codeExts[ext]; ok {
		return SourceFile, lang, true
	}
	switch strings.ToLower(name) {
	case "dockerfile":
		return SourceFile, "dockerfile", true
	case "makefile":
		return SourceFile, "make", true
	case "readme", "license", "changelog":
		return SourceDoc, "text", true
	}
	return "", "", false
}

// discover lists indexable files under root for scope, sorted by path.
// It stops after maxFiles entries and reports truncation.
func discover(root string, scope Scope, maxFileBytes int64, maxFiles int) ([]fileEntry, bool, error) {
	var (
		files     []fileEntry
		truncated bool
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, the root itself is fatal.
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		src, lang, ok := classify(d.Name())
		if !ok || !scope.includes(src) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if maxFileBytes > 0 && info.Size() > maxFileBytes {
			return nil
		}
		if maxFiles > 0 && len(files) >= maxFiles {
			truncated = true
			return filepath.SkipAll
		}
		files = append(files, fileEntry{
			Path:     path,
			Size:     info.Size(),
			ModNanos: info.ModTime().UnixNano(),
			Source:   src,
			Language: lang,
		})
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("semantic: walk %s: %w", root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, truncated, nil
}

// manifestHash fingerprints a file listing by path, size and mtime, so an
// untouched project can be recognised without reading any content.
func manifestHash(files []fileEntry) string {
	h := sha256.New()
	for _, f := range files {
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", f.Path, f.Size, f.ModNanos)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// readText reads a file and rejects content that looks binary.
func readText(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, err
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return "", false, nil
	}
	return string(data), true, nil
}

// titleFor picks a display title: the first markdown heading of a doc
// chunk, otherwise the file name.
func titleFor(path string, src Source, text string) string {
	if src == SourceDoc {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "#") {
				if t := strings.TrimSpace(strings.TrimLeft(line, "#")); t != "" {
					return t
				}
			}
		}
	}
	return filepath.Base(path)
}
