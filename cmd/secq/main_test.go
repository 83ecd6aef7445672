package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secq/internal/config"
	"secq/internal/pipeline"
)

func TestRootCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "crawl", "config", "cache", "docs"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}

func TestApplyRunFlags(t *testing.T) {
	c := config.DefaultConfig()
	require.NoError(t, runCmd.Flags().Parse([]string{
		"--sources", "docs",
		"--max-workers", "8",
		"--website-url", "https://a.example.com",
		"--website-url", "https://b.example.com",
		"--no-verify-writes",
	}))

	applyRunFlags(runCmd, c)
	assert.Equal(t, config.SourcesDocs, c.Sources)
	assert.Equal(t, 8, c.Concurrency.Workers)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, c.WebsiteURLs)
	assert.False(t, c.Spreadsheet.VerifyWrites)
	assert.True(t, c.Uploads.Persist, "unset flags leave config alone")
}

func TestConfigShowMasksKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "AIzaSyExampleKey1234")
	path := filepath.Join(t.TempDir(), "secq.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources: website\n"), 0644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "show", "--config", path})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "# loaded from "+path)
	assert.Contains(t, out.String(), "sources: website")
	assert.Contains(t, out.String(), "********1234")
	assert.NotContains(t, out.String(), "AIzaSyExampleKey1234")
}

func TestDocsProcess(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "security"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "security", "README.md"), []byte("# Security"), 0644))
	out := filepath.Join(t.TempDir(), "processed")

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"docs", "process", root, "--out", out, "--base-url", "https://docs.example.com",
		"--config", filepath.Join(t.TempDir(), "absent.yaml")})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "security.md -> https://docs.example.com/security")
	assert.FileExists(t, filepath.Join(out, "security.md"))
	assert.FileExists(t, filepath.Join(out, "url_mapping.json"))
}

func TestRenderSummary(t *testing.T) {
	s := renderSummary(&pipeline.Summary{
		Eligible: 3,
		Written:  3,
		Reviewed: 1,
		NotFound: 1,
		Sources:  []string{"policy.pdf", "Website: https://trust.example.com"},
		Duration: 1500 * time.Millisecond,
	})
	assert.Contains(t, s, "Run complete")
	assert.Contains(t, s, "policy.pdf")
	assert.Contains(t, s, "Website: https://trust.example.com")
	assert.Contains(t, s, "1.5s")
}
