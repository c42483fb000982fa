package ingest

import (
	"os"
	"path/filepath"
	"strings"
)

// maxFileSize bounds what ingestion will vectorize.
const maxFileSize = 1024 * 1024

// skippedDirs are path segments that mark version-control, build-output, or
// dependency-cache trees.
var skippedDirs = map[string]bool{
	".git":         true,
	".idea":        true,
	".gradle":      true,
	"target":       true,
	"build":        true,
	"dist":         true,
	"node_modules": true,
	"logs":         true,
	"vendor":       true,
}

// allowedExtensions is the fixed allow-list of text and source files.
var allowedExtensions = map[string]bool{
	".java":       true,
	".go":         true,
	".py":         true,
	".js":         true,
	".ts":         true,
	".rs":         true,
	".rb":         true,
	".c":          true,
	".h":          true,
	".cpp":        true,
	".xml":        true,
	".yml":        true,
	".yaml":       true,
	".toml":       true,
	".properties": true,
	".sql":        true,
	".sh":         true,
	".json":       true,
	".md":         true,
	".txt":        true,
	".html":       true,
	".css":        true,
}

// EligibleFile reports whether a file should be ingested: not under a
// skipped directory, non-empty, at most 1 MiB, and on the extension
// allow-list. size is the file size in bytes.
func EligibleFile(path string, size int64) bool {
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if skippedDirs[segment] {
			return false
		}
	}

	if size == 0 || size > maxFileSize {
		return false
	}

	return allowedExtensions[strings.ToLower(filepath.Ext(path))]
}

// EligibleFileInfo is EligibleFile over an os.FileInfo.
func EligibleFileInfo(path string, info os.FileInfo) bool {
	if info.IsDir() {
		return false
	}
	return EligibleFile(path, info.Size())
}
