package db

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "categories.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestLoadCategorySeed(t *testing.T) {
	path := writeSeed(t, `
categories:
  - id: respiratory
    label: Respiratory
    description: Breathing and oxygenation.
  - id: cardiology
    label: Cardiology
`)
	rows, err := LoadCategorySeed(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(rows))
	}
	if rows[0].ID != "respiratory" || rows[0].Description == "" {
		t.Fatalf("unexpected first row %+v", rows[0])
	}
}

func TestLoadCategorySeedRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"empty":        `categories: []`,
		"missing id":   "categories:\n  - label: Respiratory\n",
		"duplicate id": "categories:\n  - id: a\n    label: A\n  - id: a\n    label: A again\n",
	}
	for name, content := range cases {
		if _, err := LoadCategorySeed(writeSeed(t, content)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
