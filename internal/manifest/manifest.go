// Package manifest records the outcome of every capture operation in a
// packaging run. One manifest is created per run, owned by that run, and
// written once as its permanent audit record.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"portapak/internal/apperr"
)

// FileName is the manifest file written at the package root.
const FileName = "manifest.json"

// Category names the kind of entity an entry captured.
type Category string

// Entry categories, in build processing order.
const (
	CategoryDirectory Category = "directory"
	CategoryFile      Category = "file"
	CategoryRegistry  Category = "registry"
	CategoryService   Category = "service"
	CategoryTask      Category = "task"
	CategoryShortcut  Category = "shortcut"
)

// Status is the outcome of one capture operation.
type Status string

// Entry statuses. Dry runs record skipped for everything they would do;
// real runs transition those to copied or exported.
const (
	StatusCopied   Status = "copied"
	StatusExported Status = "exported"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Entry is the audit record for a single capture operation. Destination is
// the intended artifact path relative to the package root, recorded even
// when the operation failed so the restore generator can still name it.
type Entry struct {
	Category    Category `json:"category"`
	Source      string   `json:"source"`
	Destination string   `json:"destination"`
	Status      Status   `json:"status"`
	Detail      string   `json:"detail,omitempty"`
	SHA256      string   `json:"sha256,omitempty"`
}

// Manifest is the full audit trail of one packaging run.
type Manifest struct {
	AppName   string    `json:"app_name"`
	CreatedAt time.Time `json:"created_at"`
	DryRun    bool      `json:"dry_run"`
	Entries   []Entry   `json:"entries"`
}

// New starts an empty manifest for a run.
func New(appName string, dryRun bool) *Manifest {
	return &Manifest{
		AppName:   appName,
		CreatedAt: time.Now().UTC(),
		DryRun:    dryRun,
		Entries:   []Entry{},
	}
}

// Record appends one entry. Entries keep strict recording order so dry-run
// and real manifests for the same configuration line up entry for entry.
func (m *Manifest) Record(e Entry) {
	m.Entries = append(m.Entries, e)
}

// Counts tallies entries per status.
func (m *Manifest) Counts() map[Status]int {
	out := make(map[Status]int, 4)
	for _, e := range m.Entries {
		out[e.Status]++
	}
	return out
}

// Failed reports whether any entry failed.
func (m *Manifest) Failed() bool {
	for _, e := range m.Entries {
		if e.Status == StatusFailed {
			return true
		}
	}
	return false
}

// WriteFile writes the manifest as indented JSON: tmp file → fsync → rename.
func (m *Manifest) WriteFile(path string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("manifest: encode: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("manifest: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".portapak-tmp-*")
	if err != nil {
		return fmt.Errorf("manifest: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("manifest: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("manifest: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("manifest: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("manifest: rename: %w", err)
	}
	success = true
	return nil
}

// ReadFile loads a previously written manifest.
func ReadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("manifest: %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode %s: %w", path, err)
	}
	return &m, nil
}
