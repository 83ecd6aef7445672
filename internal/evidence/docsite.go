package evidence

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"secq/internal/logging"
)

const (
	docsIndexName  = "README.md"
	URLMappingFile = "url_mapping.json"
)

// DocsMapping maps each processed file name to its published URL.
type DocsMapping map[string]string

// DocsTarget derives the flat output name and the published URL for a
// README.md at rel, a slash-separated path relative to the docs root.
// The README at the root becomes "root.md" and maps to baseURL itself.
func DocsTarget(rel, baseURL string) (name, url string) {
	dir := strings.TrimSuffix(filepath.ToSlash(rel), docsIndexName)
	dir = strings.Trim(dir, "/")

	name = strings.Trim(strings.ReplaceAll(dir, "/", "-"), "-")
	if name == "" {
		name = "root"
	}
	name += ".md"

	url = strings.TrimRight(baseURL, "/")
	if dir != "" {
		url += "/" + dir
	}
	return name, url
}

// ProcessDocs copies every README.md under root into outDir as a flat
// markdown file whose header records its published URL and original path,
// then writes the name-to-URL mapping to outDir/url_mapping.json.
// Files produced here cite their URL once uploaded.
func ProcessDocs(root, outDir, baseURL string) (DocsMapping, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	var readmes []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == docsIndexName {
			readmes = append(readmes, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	sort.Strings(readmes)

	mapping := make(DocsMapping, len(readmes))
	for _, path := range readmes {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil, err
		}
		name, url := DocsTarget(rel, baseURL)
		if prev, dup := mapping[name]; dup {
			logging.UploadWarn("%s overwrites %s (both map to %s)", path, prev, name)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		out := fmt.Sprintf("<!-- SOURCE_URL: %s -->\n<!-- ORIGINAL_PATH: %s -->\n\n%s", url, path, content)
		if err := os.WriteFile(filepath.Join(outDir, name), []byte(out), 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}

		mapping[name] = url
		logging.UploadDebug("processed %s -> %s", path, name)
	}

	data, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal url mapping: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, URLMappingFile), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write url mapping: %w", err)
	}

	logging.Upload("processed %d documentation pages into %s", len(mapping), outDir)
	return mapping, nil
}
