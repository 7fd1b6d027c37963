package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
)

// Source supplies candidate underwriting files for a pipeline run.
type Source interface {
	Name() string
	Discover(ctx context.Context) ([]internal.FileCandidate, error)
}

// spreadsheet extensions the pipeline accepts.
var spreadsheetExts = map[string]struct{}{
	".xlsx": {}, ".xlsm": {}, ".xls": {},
}

func IsSpreadsheet(name string) bool {
	_, ok := spreadsheetExts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// DirSource walks a local inbox directory. Content hashes are computed
// eagerly so discovery deduplication can confirm duplicates.
type DirSource struct {
	Dir string
}

func (s DirSource) Name() string { return "dir" }

func (s DirSource) Discover(ctx context.Context) ([]internal.FileCandidate, error) {
	var out []internal.FileCandidate

	err := filepath.WalkDir(s.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.IsDir() || !IsSpreadsheet(d.Name()) {
			return nil
		}
		if strings.HasPrefix(d.Name(), "~$") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		candidate := internal.FileCandidate{
			Name:       d.Name(),
			Path:       path,
			Size:       info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		}
		if hash, err := HashFile(path); err == nil {
			candidate.ContentHash = hash
		}
		out = append(out, candidate)
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SaveToInbox writes fetched content into the inbox, skipping files that
// are already present with identical bytes.
func SaveToInbox(inboxDir, filename string, content []byte) (string, error) {
	if err := os.MkdirAll(inboxDir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(inboxDir, sanitizeFilename(filename))
	if existing, err := os.ReadFile(path); err == nil {
		if hex.EncodeToString(sum(existing)) == hex.EncodeToString(sum(content)) {
			return path, nil
		}
		// Same name, different bytes: keep both.
		ext := filepath.Ext(path)
		path = strings.TrimSuffix(path, ext) + "-" + hex.EncodeToString(sum(content))[:8] + ext
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func sum(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

func sanitizeFilename(name string) string {
	repl := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", `"`, "_", "<", "_", ">", "_", "|", "_")
	out := strings.TrimSpace(repl.Replace(name))
	if out == "" {
		out = "attachment.xlsx"
	}
	return out
}
