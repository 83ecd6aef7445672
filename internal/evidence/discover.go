package evidence

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"secq/internal/logging"
)

// Document formats picked up from the docs directory. Plain .txt is
// uploadable but only produced internally.
var discoverable = map[string]bool{
	".pdf": true, ".md": true, ".markdown": true,
	".xlsx": true, ".xls": true, ".csv": true, ".tsv": true, ".ods": true,
}

// Discover returns every supported document under dir, sorted.
func Discover(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext := filepath.Ext(path); discoverable[strings.ToLower(ext)] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

var sourceURLPattern = regexp.MustCompile(`<!--\s*SOURCE_URL:\s*(\S+?)\s*-->`)

// SourceURLFromFile returns the URL recorded in a SOURCE_URL comment within
// the first lines of a text document, or "".
func SourceURLFromFile(path string) string {
	if !isTextual(path) {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for i := 0; i < 10 && sc.Scan(); i++ {
		if m := sourceURLPattern.FindStringSubmatch(sc.Text()); m != nil {
			return m[1]
		}
	}
	return ""
}

func isTextual(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt":
		return true
	}
	return false
}

// Prepare turns discovered paths into uploadable files. Markdown is copied
// into a .txt file under tmpDir with a "# <name>" header; the returned
// temps must be removed by the caller once uploads finish.
func Prepare(paths []string, tmpDir string) (files []File, temps []string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			logging.UploadWarn("skipping %s: %v", p, err)
			continue
		}

		name := filepath.Base(p)
		src := SourceURLFromFile(p)

		if !isMarkdown(p) {
			files = append(files, File{Path: p, Name: name, SourceURL: src, Fingerprint: Fingerprint(p)})
			continue
		}

		tmp, err := markdownToText(p, tmpDir)
		if err != nil {
			logging.UploadWarn("failed to convert %s: %v", p, err)
			continue
		}
		temps = append(temps, tmp)
		logging.UploadDebug("converted %s to %s", name, filepath.Base(tmp))
		files = append(files, File{Path: tmp, Name: name, SourceURL: src, Fingerprint: Fingerprint(tmp)})
	}
	return files, temps
}

func markdownToText(path, tmpDir string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(tmpDir, "secq-doc-*.txt")
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "# %s\n\n%s", filepath.Base(path), content); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
