package workspace

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// excludedDirs are never included in an export ZIP.
var excludedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// excludedPath reports whether rel (workspace-root-relative, slash
// separated) falls under an excluded directory, including the
// ".elisa/logs" path.
func excludedPath(rel string) bool {
	if strings.HasPrefix(rel, ".elisa/logs/") || rel == ".elisa/logs" {
		return true
	}
	for _, part := range strings.Split(rel, "/") {
		if excludedDirs[part] {
			return true
		}
	}
	return false
}

// Export streams root as a ZIP archive to w, excluding .git/,
// node_modules/, and .elisa/logs/.
func Export(root string, w io.Writer) error {
	zw := zip.NewWriter(w)
	defer zw.Close()

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if excludedPath(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}

		fw, err := zw.Create(rel)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(fw, f)
		return err
	})
}
