package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"portapak/internal/apperr"
)

// Load reads and validates a configuration from a JSON file. Decode failures
// map to apperr.ErrSchema, invariant violations to apperr.ErrValidation; both
// are fatal to the stage that triggered the load. Unknown fields are ignored
// so newer configurations stay readable.
func Load(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read %s: %w", path, err)
	}
	var cfg Configuration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("model: decode %s: %v: %w", path, err, apperr.ErrSchema)
	}
	if cfg.AppName == "" {
		cfg.AppName = DefaultAppName
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("model: %s: %v: %w", path, err, apperr.ErrValidation)
	}
	return &cfg, nil
}

// Save validates the configuration and writes it as indented JSON:
// tmp file → fsync → rename, so readers never observe a partial file.
func Save(cfg *Configuration, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("model: %v: %w", err, apperr.ErrValidation)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("model: encode: %w", err)
	}
	return writeFileAtomic(path, buf.Bytes())
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("model: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".portapak-tmp-*")
	if err != nil {
		return fmt.Errorf("model: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("model: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("model: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("model: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("model: rename: %w", err)
	}
	success = true
	return nil
}
