package backfill

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// ScanTranscriptDir finds all JSONL files under the given directory.
// Directories that cannot be read are recorded as "<path>: <message>" strings
// and the walk continues in siblings; one unreadable subtree never hides
// transcripts elsewhere. Files come back in traversal order and callers must
// not depend on any particular ordering.
func ScanTranscriptDir(root string) (files []string, errs []string) {
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", path, err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(path, ".jsonl") {
			files = append(files, path)
		}
		return nil
	})

	// WalkDir only returns an error when the callback does; the root-stat
	// failure shows up through the callback above.
	_ = walkErr

	return files, errs
}
