// Package pack materializes a configuration into a portable package tree:
// directory and file copies, registry exports, service and task snapshots,
// shortcut copies, with a manifest recording the outcome of every operation.
package pack

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"portapak/internal/apperr"
	"portapak/internal/checksum"
	"portapak/internal/manifest"
	"portapak/internal/model"
	"portapak/internal/progress"
	"portapak/internal/restore"
)

// Fixed package layout directory names.
const (
	RootProgramFiles = "ProgramFiles"
	RootProgramData  = "ProgramData"
	RootRegistry     = "Registry"
	RootServices     = "Services"
	RootTasks        = "Tasks"
	RootShortcuts    = "Shortcuts"

	// RestoreScriptName is the generated restore script at the package root.
	RestoreScriptName = "Restore.cmd"
)

// Builder performs one packaging run. The zero value is usable: it falls
// back to the default tool set, the exec runner, and the default logger.
type Builder struct {
	Tools    ToolSet
	Runner   Runner
	Reporter progress.Reporter
	Logger   *slog.Logger
}

// Build captures everything the configuration declares under outputRoot and
// returns the manifest. The output root must not exist or must be empty;
// anything else aborts before any mutation. Per-entry failures are recorded
// and never abort sibling entries. In dry-run mode every source check still
// runs but nothing is written, not even the manifest.
func (b *Builder) Build(ctx context.Context, cfg *model.Configuration, outputRoot string, dryRun bool) (*manifest.Manifest, error) {
	root, err := filepath.Abs(outputRoot)
	if err != nil {
		return nil, fmt.Errorf("pack: resolve output root: %w", err)
	}
	if err := ensureEmptyRoot(root); err != nil {
		return nil, err
	}

	man := manifest.New(cfg.AppName, dryRun)

	if !dryRun {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("pack: create output root: %w", err)
		}
	}

	// Stable processing order: program directories, data directories, loose
	// files, registry keys, services, scheduled tasks, shortcuts.
	for _, pass := range []model.DirType{model.DirProgram, model.DirData} {
		for _, d := range cfg.Directories {
			if d.Type == pass {
				b.captureDirectory(man, root, d, dryRun)
			}
		}
	}
	for _, f := range cfg.Files {
		b.captureFile(man, root, f, dryRun)
	}
	for _, k := range cfg.RegistryKeys {
		b.exportRegistry(ctx, man, root, k, dryRun)
	}
	for _, s := range cfg.Services {
		b.captureService(ctx, man, root, s, dryRun)
	}
	for _, t := range cfg.ScheduledTasks {
		b.captureTask(ctx, man, root, t, dryRun)
	}
	for _, s := range cfg.Shortcuts {
		b.captureShortcut(man, root, s, dryRun)
	}

	if !dryRun {
		script := restore.Render(cfg, man)
		if err := os.WriteFile(filepath.Join(root, RestoreScriptName), []byte(script), 0o755); err != nil {
			return man, fmt.Errorf("pack: write restore script: %w", err)
		}
		if err := man.WriteFile(filepath.Join(root, manifest.FileName)); err != nil {
			return man, err
		}
	}
	return man, nil
}

// ensureEmptyRoot rejects a non-empty existing destination before anything
// is written, so a stray path can never be merged into or overwritten.
func ensureEmptyRoot(root string) error {
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pack: stat output root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("pack: output root %s is a file: %w", root, apperr.ErrDestinationNotEmpty)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("pack: read output root: %w", err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("pack: output root %s: %w", root, apperr.ErrDestinationNotEmpty)
	}
	return nil
}

func (b *Builder) captureDirectory(man *manifest.Manifest, root string, d model.DirectoryEntry, dryRun bool) {
	layoutRoot := RootProgramFiles
	if d.Type == model.DirData {
		layoutRoot = RootProgramData
	}
	destRel := joinRel(layoutRoot, d.Target)
	desc := fmt.Sprintf("copy directory %s -> %s", d.Source, destRel)
	progress.Started(b.Reporter, desc)

	entry := manifest.Entry{Category: manifest.CategoryDirectory, Source: d.Source, Destination: destRel}

	info, err := os.Stat(d.Source)
	switch {
	case err != nil:
		b.fail(man, entry, desc, fmt.Errorf("source not found: %v", err))
		return
	case !info.IsDir():
		b.fail(man, entry, desc, fmt.Errorf("source is not a directory"))
		return
	}

	if dryRun {
		b.skip(man, entry, desc, "would copy directory tree to "+destRel)
		return
	}

	n, err := copyTree(d.Source, filepath.Join(root, filepath.FromSlash(destRel)))
	if err != nil {
		b.fail(man, entry, desc, err)
		return
	}
	entry.Status = manifest.StatusCopied
	entry.Detail = fmt.Sprintf("%d files", n)
	man.Record(entry)
	progress.Finished(b.Reporter, desc)
}

func (b *Builder) captureFile(man *manifest.Manifest, root string, f model.FileEntry, dryRun bool) {
	destRel := joinRel(RootProgramFiles, f.Target)
	desc := fmt.Sprintf("copy file %s -> %s", f.Source, destRel)
	progress.Started(b.Reporter, desc)

	entry := manifest.Entry{Category: manifest.CategoryFile, Source: f.Source, Destination: destRel}

	info, err := os.Stat(f.Source)
	switch {
	case err != nil:
		b.fail(man, entry, desc, fmt.Errorf("source not found: %v", err))
		return
	case !info.Mode().IsRegular():
		b.fail(man, entry, desc, fmt.Errorf("source is not a regular file"))
		return
	}

	if dryRun {
		b.skip(man, entry, desc, "would copy file to "+destRel)
		return
	}

	dest := filepath.Join(root, filepath.FromSlash(destRel))
	if err := copyFile(f.Source, dest); err != nil {
		b.fail(man, entry, desc, err)
		return
	}
	entry.Status = manifest.StatusCopied
	entry.SHA256, _ = checksum.File(dest)
	man.Record(entry)
	progress.Finished(b.Reporter, desc)
}

func (b *Builder) exportRegistry(ctx context.Context, man *manifest.Manifest, root string, k model.RegistryKeyEntry, dryRun bool) {
	key := k.FullKey()
	destRel := path.Join(RootRegistry, Sanitize(key)+".reg")
	desc := fmt.Sprintf("export registry key %s -> %s", key, destRel)
	progress.Started(b.Reporter, desc)

	entry := manifest.Entry{Category: manifest.CategoryRegistry, Source: key, Destination: destRel}

	if dryRun {
		b.skip(man, entry, desc, "would export registry key to "+destRel)
		return
	}

	dest := filepath.Join(root, filepath.FromSlash(destRel))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		b.fail(man, entry, desc, err)
		return
	}
	if _, err := b.runner().Run(ctx, b.tools().RegistryExport.Expand(key, dest)); err != nil {
		b.fail(man, entry, desc, err)
		return
	}
	entry.Status = manifest.StatusExported
	entry.SHA256, _ = checksum.File(dest)
	man.Record(entry)
	progress.Finished(b.Reporter, desc)
}

func (b *Builder) captureService(ctx context.Context, man *manifest.Manifest, root string, s model.ServiceEntry, dryRun bool) {
	destRel := path.Join(RootServices, Sanitize(s.Name)+".txt")
	desc := fmt.Sprintf("capture service %s -> %s", s.Name, destRel)
	progress.Started(b.Reporter, desc)

	entry := manifest.Entry{Category: manifest.CategoryService, Source: s.Name, Destination: destRel}

	if dryRun {
		b.skip(man, entry, desc, "would snapshot service definition to "+destRel)
		return
	}

	out, err := b.runner().Run(ctx, b.tools().ServiceQuery.Expand(s.Name, ""))
	if err != nil {
		b.fail(man, entry, desc, err)
		return
	}
	// Description is best-effort; sc qdescription fails on services without one.
	if descOut, descErr := b.runner().Run(ctx, b.tools().ServiceDescription.Expand(s.Name, "")); descErr == nil {
		out = append(append(out, '\n'), descOut...)
	}

	dest := filepath.Join(root, filepath.FromSlash(destRel))
	if err := writeSnapshot(dest, out); err != nil {
		b.fail(man, entry, desc, err)
		return
	}
	entry.Status = manifest.StatusExported
	entry.SHA256 = checksum.Sum(out)
	man.Record(entry)
	progress.Finished(b.Reporter, desc)
}

func (b *Builder) captureTask(ctx context.Context, man *manifest.Manifest, root string, t model.ScheduledTaskEntry, dryRun bool) {
	destRel := path.Join(RootTasks, Sanitize(strings.Trim(t.Name, `\/`))+".xml")
	desc := fmt.Sprintf("capture scheduled task %s -> %s", t.Name, destRel)
	progress.Started(b.Reporter, desc)

	entry := manifest.Entry{Category: manifest.CategoryTask, Source: t.Name, Destination: destRel}

	if dryRun {
		b.skip(man, entry, desc, "would export task definition to "+destRel)
		return
	}

	out, err := b.runner().Run(ctx, b.tools().TaskQuery.Expand(t.Name, ""))
	if err != nil {
		b.fail(man, entry, desc, err)
		return
	}
	dest := filepath.Join(root, filepath.FromSlash(destRel))
	if err := writeSnapshot(dest, out); err != nil {
		b.fail(man, entry, desc, err)
		return
	}
	entry.Status = manifest.StatusExported
	entry.SHA256 = checksum.Sum(out)
	man.Record(entry)
	progress.Finished(b.Reporter, desc)
}

func (b *Builder) captureShortcut(man *manifest.Manifest, root string, s model.ShortcutEntry, dryRun bool) {
	destRel := path.Join(RootShortcuts, winBase(s.Source))
	desc := fmt.Sprintf("copy shortcut %s -> %s", s.Source, destRel)
	progress.Started(b.Reporter, desc)

	entry := manifest.Entry{Category: manifest.CategoryShortcut, Source: s.Source, Destination: destRel}

	info, err := os.Stat(s.Source)
	switch {
	case err != nil:
		b.fail(man, entry, desc, fmt.Errorf("source not found: %v", err))
		return
	case !info.Mode().IsRegular():
		b.fail(man, entry, desc, fmt.Errorf("source is not a regular file"))
		return
	}

	if dryRun {
		b.skip(man, entry, desc, "would copy shortcut to "+destRel)
		return
	}

	dest := filepath.Join(root, filepath.FromSlash(destRel))
	if err := copyFile(s.Source, dest); err != nil {
		b.fail(man, entry, desc, err)
		return
	}
	entry.Status = manifest.StatusCopied
	entry.SHA256, _ = checksum.File(dest)
	man.Record(entry)
	progress.Finished(b.Reporter, desc)
}

func (b *Builder) fail(man *manifest.Manifest, entry manifest.Entry, desc string, err error) {
	entry.Status = manifest.StatusFailed
	entry.Detail = err.Error()
	man.Record(entry)
	b.logger().Warn("capture failed",
		slog.String("category", string(entry.Category)),
		slog.String("source", entry.Source),
		slog.String("error", err.Error()))
	progress.Failed(b.Reporter, desc, err)
}

func (b *Builder) skip(man *manifest.Manifest, entry manifest.Entry, desc, detail string) {
	entry.Status = manifest.StatusSkipped
	entry.Detail = detail
	man.Record(entry)
	progress.Finished(b.Reporter, desc)
}

func (b *Builder) runner() Runner {
	if b.Runner != nil {
		return b.Runner
	}
	return ExecRunner{}
}

func (b *Builder) tools() ToolSet {
	if len(b.Tools.RegistryExport) > 0 {
		return b.Tools
	}
	return DefaultToolSet()
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func writeSnapshot(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

// joinRel joins a layout root with a target that may use either separator,
// yielding the forward-slash relative destination recorded in the manifest.
func joinRel(layoutRoot, target string) string {
	segs := strings.FieldsFunc(target, func(r rune) bool { return r == '/' || r == '\\' })
	return path.Join(append([]string{layoutRoot}, segs...)...)
}

// winBase returns the last path segment under either separator convention.
func winBase(p string) string {
	trimmed := strings.TrimRight(p, `\/`)
	if i := strings.LastIndexAny(trimmed, `\/`); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// Sanitize replaces characters unsupported in artifact file names.
func Sanitize(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
