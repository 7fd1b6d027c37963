package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDirSourceDiscover(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"Sunset Ridge UW.xlsx":   "workbook-a",
		"Oak Creek UW.xlsm":      "workbook-b",
		"notes.txt":              "ignored",
		"~$Sunset Ridge UW.xlsx": "lock file",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	candidates, err := DirSource{Dir: dir}.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 2 {
		t.Fatalf("candidates=%d", len(candidates))
	}
	for _, c := range candidates {
		if c.ContentHash == "" {
			t.Fatalf("missing hash for %s", c.Name)
		}
		if c.Size == 0 || c.ModifiedAt.IsZero() {
			t.Fatalf("missing stat fields for %s", c.Name)
		}
	}
}

func TestDirSourceMissingDir(t *testing.T) {
	candidates, err := DirSource{Dir: filepath.Join(t.TempDir(), "nope")}.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates=%d", len(candidates))
	}
}

func TestSaveToInboxKeepsDistinctContent(t *testing.T) {
	inbox := t.TempDir()

	first, err := SaveToInbox(inbox, "model.xlsx", []byte("v1"))
	if err != nil {
		t.Fatal(err)
	}
	same, err := SaveToInbox(inbox, "model.xlsx", []byte("v1"))
	if err != nil {
		t.Fatal(err)
	}
	if same != first {
		t.Fatalf("identical content should reuse %s, got %s", first, same)
	}

	other, err := SaveToInbox(inbox, "model.xlsx", []byte("v2"))
	if err != nil {
		t.Fatal(err)
	}
	if other == first {
		t.Fatal("conflicting content must not overwrite")
	}
	blob, _ := os.ReadFile(other)
	if string(blob) != "v2" {
		t.Fatalf("content=%q", blob)
	}
}

func TestDealNameFromSubject(t *testing.T) {
	tests := []struct {
		subject string
		want    string
	}{
		{"Sunset Ridge Apartments", "Sunset Ridge Apartments"},
		{"RE: Fwd: Sunset Ridge Apartments", "Sunset Ridge Apartments"},
		{"UW Model - Sunset Ridge", "Sunset Ridge"},
		{"Sunset Ridge - 2024 final", "Sunset Ridge"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := dealNameFromSubject(tc.subject); got != tc.want {
			t.Errorf("dealNameFromSubject(%q)=%q, want %q", tc.subject, got, tc.want)
		}
	}
}
