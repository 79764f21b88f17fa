// Package classify maps raw trace entries onto the configuration model using
// a data-driven table of well-known location prefixes.
package classify

import (
	"fmt"
	"strings"

	"portapak/internal/model"
	"portapak/internal/trace"
)

// Rule maps a well-known location to a directory type. A Prefix beginning
// with a backslash is matched anywhere in the path (environment-relative
// roots such as per-user AppData); any other prefix anchors at the start.
// Resolution is longest-match-wins regardless of table order, so new
// locations can be added without reordering.
type Rule struct {
	Prefix string        `yaml:"prefix"`
	Type   model.DirType `yaml:"type"`
}

// DefaultRules returns the built-in well-known location table.
func DefaultRules() []Rule {
	return []Rule{
		{Prefix: `C:\Program Files (x86)`, Type: model.DirProgram},
		{Prefix: `C:\Program Files`, Type: model.DirProgram},
		{Prefix: `C:\ProgramData`, Type: model.DirData},
		{Prefix: `\AppData\`, Type: model.DirData},
		{Prefix: `\ProgramData\`, Type: model.DirData},
	}
}

// Result is the classifier output: the derived configuration plus
// human-readable notes about entries that could not be carried over
// (for example registry keys in unsupported hives).
type Result struct {
	Config *model.Configuration
	Notes  []string
}

var hiveAliases = map[string]model.Hive{
	"HKLM":                model.HiveHKLM,
	"HKEY_LOCAL_MACHINE":  model.HiveHKLM,
	"HKCU":                model.HiveHKCU,
	"HKEY_CURRENT_USER":   model.HiveHKCU,
	"HKCR":                model.HiveHKCR,
	"HKEY_CLASSES_ROOT":   model.HiveHKCR,
	"HKU":                 model.HiveHKU,
	"HKEY_USERS":          model.HiveHKU,
	"HKCC":                model.HiveHKCC,
	"HKEY_CURRENT_CONFIG": model.HiveHKCC,
}

// Classify derives a configuration from raw trace entries. It is pure and
// deterministic: identical input yields an identical configuration, with
// every list in first-seen trace order. No entry is silently dropped —
// anything that cannot be classified lands in the conservative data bucket,
// and omissions (unsupported hives) are reported through Result.Notes.
func Classify(entries []trace.RawEntry, appName string, rules []Rule) *Result {
	res := &Result{Config: &model.Configuration{}}
	cfg := res.Config

	var fsEntries []trace.RawEntry
	usedTargets := make(map[string]struct{})

	for _, e := range entries {
		switch e.Kind {
		case trace.KindFile, trace.KindDirectory:
			if isShortcut(e.Path) {
				cfg.Shortcuts = append(cfg.Shortcuts, model.ShortcutEntry{Source: e.Path})
				continue
			}
			fsEntries = append(fsEntries, e)
		case trace.KindRegistryKey:
			key, note := splitRegistryKey(e.Path)
			if note != "" {
				res.Notes = append(res.Notes, note)
				continue
			}
			if !containsKey(cfg.RegistryKeys, key) {
				cfg.RegistryKeys = append(cfg.RegistryKeys, key)
			}
		case trace.KindService:
			if !containsName(namesOf(cfg.Services), e.Path) {
				cfg.Services = append(cfg.Services, model.ServiceEntry{Name: e.Path})
			}
		case trace.KindScheduledTask:
			if !containsName(taskNamesOf(cfg.ScheduledTasks), e.Path) {
				cfg.ScheduledTasks = append(cfg.ScheduledTasks, model.ScheduledTaskEntry{Name: e.Path})
			}
		}
	}

	dirs, files := splitDirectoriesAndFiles(fsEntries, rules)
	for _, d := range dirs {
		d.Target = uniqueTarget(usedTargets, d.Target)
		cfg.Directories = append(cfg.Directories, d)
	}
	for _, f := range files {
		f.Target = uniqueTarget(usedTargets, f.Target)
		cfg.Files = append(cfg.Files, f)
	}

	cfg.AppName = deriveAppName(appName, cfg.Directories)
	return res
}

// candidate is a directory selected for capture, before subpath reduction.
type candidate struct {
	path    string
	target  string
	dirType model.DirType
}

// splitDirectoriesAndFiles decides which filesystem entries become directory
// captures and which remain loose files. A file inside a well-known root
// promotes its parent directory; nested candidates collapse into their
// shortest covering ancestor; loose files are anything left uncovered.
func splitDirectoriesAndFiles(entries []trace.RawEntry, rules []Rule) ([]model.DirectoryEntry, []model.FileEntry) {
	var candidates []candidate
	seen := make(map[string]struct{})
	var looseFiles []string

	for _, e := range entries {
		rule, rest, matched := matchRule(e.Path, rules)
		if !matched {
			if e.Kind == trace.KindFile {
				looseFiles = append(looseFiles, e.Path)
				continue
			}
			// Unknown directory: conservative data default, target derived
			// from the full path minus its volume.
			candidates = appendCandidate(candidates, seen, candidate{
				path:    e.Path,
				target:  targetFromPath(stripVolume(e.Path)),
				dirType: model.DirData,
			})
			continue
		}

		dirPath, dirRest := e.Path, rest
		if e.Kind == trace.KindFile {
			dirPath, dirRest = parentOf(e.Path), parentOf(rest)
		}
		candidates = appendCandidate(candidates, seen, candidate{
			path:    dirPath,
			target:  targetFromRest(dirPath, dirRest),
			dirType: rule.Type,
		})
	}

	kept := reduceSubpaths(candidates)

	var dirs []model.DirectoryEntry
	for _, c := range kept {
		dirs = append(dirs, model.DirectoryEntry{Source: c.path, Target: c.target, Type: c.dirType})
	}

	var files []model.FileEntry
	for _, f := range looseFiles {
		if coveredBy(kept, f) {
			continue
		}
		files = append(files, model.FileEntry{Source: f, Target: baseName(f)})
	}
	return dirs, files
}

func appendCandidate(list []candidate, seen map[string]struct{}, c candidate) []candidate {
	key := strings.ToLower(strings.TrimRight(c.path, `\`))
	if _, dup := seen[key]; dup {
		return list
	}
	seen[key] = struct{}{}
	return append(list, c)
}

// reduceSubpaths keeps only candidates not contained in a shorter candidate,
// preserving first-seen order of the survivors.
func reduceSubpaths(candidates []candidate) []candidate {
	var kept []candidate
	for _, c := range candidates {
		contained := false
		for _, other := range candidates {
			if other.path != c.path && isSubpath(c.path, other.path) {
				contained = true
				break
			}
		}
		if !contained {
			kept = append(kept, c)
		}
	}
	return kept
}

func coveredBy(dirs []candidate, path string) bool {
	for _, d := range dirs {
		if isSubpath(path, d.path) {
			return true
		}
	}
	return false
}

// isSubpath reports whether child equals parent or lives beneath it,
// comparing case-insensitively on whole path segments.
func isSubpath(child, parent string) bool {
	c := strings.ToLower(strings.TrimRight(child, `\`))
	p := strings.ToLower(strings.TrimRight(parent, `\`))
	return c == p || strings.HasPrefix(c, p+`\`)
}

// matchRule resolves the longest matching rule for path. rest is the path
// remainder after the matched prefix, used to build the relative target.
func matchRule(path string, rules []Rule) (Rule, string, bool) {
	lower := strings.ToLower(path)
	best := -1
	var bestRest string
	for i, r := range rules {
		prefix := strings.ToLower(r.Prefix)
		var rest string
		switch {
		case strings.HasPrefix(prefix, `\`):
			idx := strings.Index(lower, prefix)
			if idx < 0 {
				continue
			}
			rest = path[idx+len(prefix):]
		case strings.HasPrefix(lower, prefix):
			rest = path[len(prefix):]
			if rest != "" && !strings.HasPrefix(rest, `\`) {
				continue // boundary: "C:\Program FilesX" is not a match
			}
		default:
			continue
		}
		if best < 0 || len(r.Prefix) > len(rules[best].Prefix) {
			best = i
			bestRest = rest
		}
	}
	if best < 0 {
		return Rule{}, "", false
	}
	return rules[best], bestRest, true
}

func targetFromRest(path, rest string) string {
	t := targetFromPath(rest)
	if t == "" {
		t = baseName(path)
	}
	return t
}

// targetFromPath turns a backslash remainder into a forward-slash relative
// target.
func targetFromPath(p string) string {
	segs := strings.FieldsFunc(p, func(r rune) bool { return r == '\\' })
	return strings.Join(segs, "/")
}

func stripVolume(p string) string {
	if len(p) >= 2 && p[1] == ':' {
		return strings.TrimLeft(p[2:], `\`)
	}
	return strings.TrimLeft(p, `\`)
}

func parentOf(p string) string {
	trimmed := strings.TrimRight(p, `\`)
	i := strings.LastIndex(trimmed, `\`)
	if i < 0 {
		return ""
	}
	return trimmed[:i]
}

func baseName(p string) string {
	trimmed := strings.TrimRight(p, `\`)
	if i := strings.LastIndex(trimmed, `\`); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

func isShortcut(p string) bool {
	lower := strings.ToLower(p)
	return strings.HasSuffix(lower, ".lnk") || strings.HasSuffix(lower, ".url")
}

// uniqueTarget disambiguates colliding targets with a numeric suffix so the
// model invariant on target uniqueness always holds.
func uniqueTarget(used map[string]struct{}, target string) string {
	key := strings.ToLower(target)
	if _, dup := used[key]; !dup {
		used[key] = struct{}{}
		return target
	}
	for i := 2; ; i++ {
		alt := fmt.Sprintf("%s-%d", target, i)
		altKey := strings.ToLower(alt)
		if _, dup := used[altKey]; !dup {
			used[altKey] = struct{}{}
			return alt
		}
	}
}

// splitRegistryKey splits a hive-qualified key and folds long hive names to
// their short form. A non-empty note means the key was omitted.
func splitRegistryKey(key string) (model.RegistryKeyEntry, string) {
	hiveName, rest := key, ""
	if i := strings.Index(key, `\`); i >= 0 {
		hiveName, rest = key[:i], key[i+1:]
	}
	hive, ok := hiveAliases[strings.ToUpper(hiveName)]
	if !ok {
		return model.RegistryKeyEntry{}, fmt.Sprintf("unsupported hive %q: key %q omitted", hiveName, key)
	}
	if rest == "" {
		return model.RegistryKeyEntry{}, fmt.Sprintf("hive root %q omitted: refusing to export a whole hive", key)
	}
	return model.RegistryKeyEntry{Hive: hive, Path: rest}, ""
}

func deriveAppName(appName string, dirs []model.DirectoryEntry) string {
	if name := strings.TrimSpace(appName); name != "" {
		return name
	}
	// Fall back to the install directory name: the first program directory,
	// else the first directory of any type.
	for _, d := range dirs {
		if d.Type == model.DirProgram {
			return normalizeAppName(baseName(d.Source))
		}
	}
	if len(dirs) > 0 {
		return normalizeAppName(baseName(dirs[0].Source))
	}
	return model.DefaultAppName
}

func normalizeAppName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.DefaultAppName
	}
	return strings.Join(strings.Fields(name), " ")
}

func containsKey(keys []model.RegistryKeyEntry, key model.RegistryKeyEntry) bool {
	for _, k := range keys {
		if k.Hive == key.Hive && strings.EqualFold(k.Path, key.Path) {
			return true
		}
	}
	return false
}

func namesOf(services []model.ServiceEntry) []string {
	out := make([]string, len(services))
	for i, s := range services {
		out[i] = s.Name
	}
	return out
}

func taskNamesOf(tasks []model.ScheduledTaskEntry) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Name
	}
	return out
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
