package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact filenames inside the data directory. One pipeline run owns
// one directory.
const (
	stateFile    = "config.json"
	manifestFile = "discovery_manifest.json"
	fpFile       = "fingerprints.json"
	emptyFile    = "empty_templates.json"
	groupsFile   = "groups.json"
	methodFile   = "methodology.md"

	groupsDir       = "groups"
	mappingFile     = "reference_mapping.json"
	variancesFile   = "variances.json"
	conflictsFile   = "conflicts.json"
	dryRunFile      = "dry_run_report.json"
	mutationLogFile = "mutation_log.json"
	remapsFile      = "field_remaps.json"
)

func groupDir(dataDir, group string) string {
	return filepath.Join(dataDir, groupsDir, group)
}

// writeJSONAtomic persists via temp-then-rename so a crash never leaves
// a half-written artifact behind.
func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	blob, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// readJSON loads an artifact, failing fast on malformed content instead
// of propagating zero values.
func readJSON(path string, v any) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(blob, v); err != nil {
		return fmt.Errorf("malformed artifact %s: %w", path, err)
	}
	return nil
}

func artifactExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
