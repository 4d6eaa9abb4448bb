package github

import (
	"os"
	"path/filepath"
	"testing"
)

func writeIssuesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "issues.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing issues file: %v", err)
	}
	return path
}

func TestLoadIssuesFile(t *testing.T) {
	path := writeIssuesFile(t, `[
		{"number": 1, "title": "first", "body": "b1", "state": "open", "url": "https://example.com/1"},
		{"number": 2, "title": "second", "body": "b2", "state": "closed", "url": "https://example.com/2"}
	]`)

	issues, err := LoadIssuesFile(path, 0)
	if err != nil {
		t.Fatalf("LoadIssuesFile: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(issues))
	}
	if issues[0].Number != 1 || issues[0].Title != "first" || issues[1].State != "closed" {
		t.Errorf("fields not mapped: %+v", issues)
	}
}

func TestLoadIssuesFile_Limit(t *testing.T) {
	path := writeIssuesFile(t, `[
		{"number": 1, "title": "a"},
		{"number": 2, "title": "b"},
		{"number": 3, "title": "c"}
	]`)

	issues, err := LoadIssuesFile(path, 2)
	if err != nil {
		t.Fatalf("LoadIssuesFile: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues with limit, got %d", len(issues))
	}
}

func TestLoadIssuesFile_MissingFile(t *testing.T) {
	if _, err := LoadIssuesFile(filepath.Join(t.TempDir(), "nope.json"), 0); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadIssuesFile_InvalidJSON(t *testing.T) {
	path := writeIssuesFile(t, `{"not": "an array"}`)
	if _, err := LoadIssuesFile(path, 0); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
