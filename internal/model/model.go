// Package model defines the portable-package configuration schema shared by
// the conversion and packaging stages, together with its JSON persistence.
package model

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DefaultAppName is used when a configuration carries no explicit app name.
const DefaultAppName = "PortableApp"

// DirType routes a captured directory under the matching package root.
type DirType string

// Directory types.
const (
	DirProgram DirType = "program" // ProgramFiles-equivalent root
	DirData    DirType = "data"    // ProgramData / user-profile-equivalent root
)

// Hive is a registry hive in its short canonical form.
type Hive string

// Supported registry hives.
const (
	HiveHKLM Hive = "HKLM"
	HiveHKCU Hive = "HKCU"
	HiveHKCR Hive = "HKCR"
	HiveHKU  Hive = "HKU"
	HiveHKCC Hive = "HKCC"
)

// Hives lists every supported hive.
var Hives = []Hive{HiveHKLM, HiveHKCU, HiveHKCR, HiveHKU, HiveHKCC}

// DirectoryEntry is a directory tree to capture.
type DirectoryEntry struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Type   DirType `json:"type"`
}

// Validate checks a single directory entry.
func (e DirectoryEntry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Source, validation.Required, validation.By(absoluteSource)),
		validation.Field(&e.Target, validation.Required, validation.By(relativeTarget)),
		validation.Field(&e.Type, validation.Required, validation.In(DirProgram, DirData)),
	)
}

// FileEntry is a loose file to capture, outside any declared directory.
type FileEntry struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Validate checks a single file entry.
func (e FileEntry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Source, validation.Required, validation.By(absoluteSource)),
		validation.Field(&e.Target, validation.Required, validation.By(relativeTarget)),
	)
}

// RegistryKeyEntry is a registry key to export, split into hive and subpath.
type RegistryKeyEntry struct {
	Hive Hive   `json:"hive"`
	Path string `json:"path"`
}

// Validate checks a single registry key entry.
func (e RegistryKeyEntry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Hive, validation.Required, validation.In(HiveHKLM, HiveHKCU, HiveHKCR, HiveHKU, HiveHKCC)),
		validation.Field(&e.Path, validation.Required),
	)
}

// FullKey returns the hive-qualified key as passed to the export tool.
func (e RegistryKeyEntry) FullKey() string {
	return string(e.Hive) + `\` + e.Path
}

// ServiceEntry names a Windows service whose definition is snapshotted.
type ServiceEntry struct {
	Name string `json:"name"`
}

// ScheduledTaskEntry names a scheduled task whose definition is exported.
type ScheduledTaskEntry struct {
	Name string `json:"name"`
}

// ShortcutEntry is a shortcut file copied verbatim into the package.
type ShortcutEntry struct {
	Source string `json:"source"`
}

// Validate checks a single shortcut entry.
func (e ShortcutEntry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Source, validation.Required, validation.By(absoluteSource)),
	)
}

// Configuration is the persisted contract between trace conversion and
// package building. It is read-only to the builder.
type Configuration struct {
	AppName        string               `json:"app_name"`
	Directories    []DirectoryEntry     `json:"directories"`
	Files          []FileEntry          `json:"files"`
	RegistryKeys   []RegistryKeyEntry   `json:"registry_keys"`
	Services       []ServiceEntry       `json:"services"`
	ScheduledTasks []ScheduledTaskEntry `json:"scheduled_tasks"`
	Shortcuts      []ShortcutEntry      `json:"shortcuts"`
}

// Validate checks every model invariant: non-empty app name, absolute
// sources, relative traversal-free targets, unique targets, supported hives.
func (c *Configuration) Validate() error {
	if strings.TrimSpace(c.AppName) == "" {
		return errors.New("app_name must not be empty")
	}
	targets := make(map[string]struct{}, len(c.Directories)+len(c.Files))
	for i, d := range c.Directories {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("directories[%d]: %w", i, err)
		}
		key := normalizeTarget(d.Target)
		if _, dup := targets[key]; dup {
			return fmt.Errorf("directories[%d]: duplicate target %q", i, d.Target)
		}
		targets[key] = struct{}{}
	}
	for i, f := range c.Files {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("files[%d]: %w", i, err)
		}
		key := normalizeTarget(f.Target)
		if _, dup := targets[key]; dup {
			return fmt.Errorf("files[%d]: duplicate target %q", i, f.Target)
		}
		targets[key] = struct{}{}
	}
	for i, k := range c.RegistryKeys {
		if err := k.Validate(); err != nil {
			return fmt.Errorf("registry_keys[%d]: %w", i, err)
		}
	}
	for i, s := range c.Services {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("services[%d]: name must not be empty", i)
		}
	}
	for i, t := range c.ScheduledTasks {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("scheduled_tasks[%d]: name must not be empty", i)
		}
	}
	for i, s := range c.Shortcuts {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("shortcuts[%d]: %w", i, err)
		}
	}
	return nil
}

// IsAbsolutePath reports whether p is absolute under Windows conventions
// (drive-letter or UNC) or under the host OS rules. Traces describe Windows
// trees, but the tool itself may run elsewhere during review and testing.
func IsAbsolutePath(p string) bool {
	if len(p) >= 3 && isDriveLetter(p[0]) && p[1] == ':' && (p[2] == '\\' || p[2] == '/') {
		return true
	}
	if strings.HasPrefix(p, `\\`) {
		return true
	}
	return strings.HasPrefix(p, "/")
}

func isDriveLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func absoluteSource(value interface{}) error {
	s, _ := value.(string)
	if !IsAbsolutePath(s) {
		return fmt.Errorf("source must be an absolute path: %q", s)
	}
	return nil
}

// relativeTarget rejects targets that are absolute or contain a
// parent-directory segment, so a target can never escape the package root.
func relativeTarget(value interface{}) error {
	s, _ := value.(string)
	if IsAbsolutePath(s) || strings.HasPrefix(s, "/") || strings.HasPrefix(s, `\`) {
		return fmt.Errorf("target must be relative: %q", s)
	}
	for _, seg := range splitTarget(s) {
		if seg == ".." {
			return fmt.Errorf("target must not contain parent-directory segments: %q", s)
		}
	}
	return nil
}

func splitTarget(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '\\' })
}

func normalizeTarget(s string) string {
	return strings.ToLower(strings.Join(splitTarget(s), "/"))
}
