// Package trace parses traced-installation XML exports into raw entries.
//
// The traced-data schema is loose: any element may carry the touched path in
// a Path/Location/Target attribute (any letter case), and service or task
// elements carry a Name attribute. The reader walks every element instead of
// binding to a fixed document shape, so exports from different tool versions
// keep working.
package trace

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"portapak/internal/apperr"
)

// Kind discriminates what a raw entry refers to.
type Kind string

// Raw entry kinds.
const (
	KindFile          Kind = "file"
	KindDirectory     Kind = "directory"
	KindRegistryKey   Kind = "registry_key"
	KindService       Kind = "service"
	KindScheduledTask Kind = "scheduled_task"
)

// RawEntry is one touched entity from the trace. Path holds the filesystem
// path, registry key, or service/task name depending on Kind.
type RawEntry struct {
	Path  string
	Kind  Kind
	Attrs map[string]string
}

var pathAttrs = []string{"path", "location", "target"}

// Read parses the traced XML file at xmlPath.
func Read(xmlPath string) ([]RawEntry, error) {
	f, err := os.Open(xmlPath)
	if err != nil {
		return nil, fmt.Errorf("trace: open %s: %w", xmlPath, err)
	}
	defer f.Close()
	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("trace: %s: %w", xmlPath, err)
	}
	return entries, nil
}

// Parse reads traced XML from r and returns entries in document order,
// deduplicated on first sight. A malformed document, or one containing no
// recognizable entries, is a fatal parse error.
func Parse(r io.Reader) ([]RawEntry, error) {
	dec := xml.NewDecoder(r)

	var entries []RawEntry
	seen := make(map[string]struct{})
	record := func(e RawEntry) {
		key := string(e.Kind) + "\x00" + strings.ToLower(e.Path)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		entries = append(entries, e)
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed xml: %v: %w", err, apperr.ErrParse)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		attrs := make(map[string]string, len(start.Attr))
		for _, a := range start.Attr {
			attrs[strings.ToLower(a.Name.Local)] = a.Value
		}

		for _, key := range pathAttrs {
			value, ok := attrs[key]
			if !ok || strings.TrimSpace(value) == "" {
				continue
			}
			norm := NormalizePath(value)
			switch {
			case strings.HasPrefix(strings.ToUpper(norm), "HK"):
				record(RawEntry{Path: norm, Kind: KindRegistryKey, Attrs: attrs})
			case strings.HasPrefix(norm, `\`) && !strings.HasPrefix(norm, `\\`):
				// Task paths are rooted in the task scheduler namespace.
				record(RawEntry{Path: norm, Kind: KindScheduledTask, Attrs: attrs})
			case strings.Contains(norm, ":") || strings.HasPrefix(norm, `\\`):
				record(RawEntry{Path: norm, Kind: fsKind(norm), Attrs: attrs})
			}
		}

		tag := strings.ToLower(start.Name.Local)
		if name := strings.TrimSpace(attrs["name"]); name != "" {
			switch {
			case strings.HasPrefix(tag, "service"):
				record(RawEntry{Path: name, Kind: KindService, Attrs: attrs})
			case strings.HasPrefix(tag, "task"):
				record(RawEntry{Path: name, Kind: KindScheduledTask, Attrs: attrs})
			}
		}
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("no recognizable entries: %w", apperr.ErrParse)
	}
	return entries, nil
}

// NormalizePath canonicalizes a traced path: quotes stripped, forward
// slashes folded to backslashes, bare drive references given a root slash.
func NormalizePath(value string) string {
	v := strings.Trim(strings.TrimSpace(value), `"`)
	v = strings.ReplaceAll(v, "/", `\`)
	if strings.HasSuffix(v, ":") {
		v += `\`
	}
	return v
}

// fsKind guesses whether a filesystem path names a directory or a file:
// a trailing separator or an extension-free last segment reads as a directory.
func fsKind(path string) Kind {
	if strings.HasSuffix(path, `\`) {
		return KindDirectory
	}
	base := path
	if i := strings.LastIndex(path, `\`); i >= 0 {
		base = path[i+1:]
	}
	if strings.Contains(base, ".") {
		return KindFile
	}
	return KindDirectory
}
