package pack

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"portapak/internal/apperr"
	"portapak/internal/manifest"
	"portapak/internal/model"
)

type runnerFunc func(ctx context.Context, argv []string) ([]byte, error)

func (f runnerFunc) Run(ctx context.Context, argv []string) ([]byte, error) { return f(ctx, argv) }

// okRunner emulates the external tools: it writes the {output} file when the
// argv names one (reg export behavior) and returns canned stdout otherwise.
func okRunner(t *testing.T) Runner {
	t.Helper()
	return runnerFunc(func(_ context.Context, argv []string) ([]byte, error) {
		for _, a := range argv {
			if filepath.Ext(a) == ".reg" {
				if err := os.WriteFile(a, []byte("Windows Registry Editor\r\n"), 0o644); err != nil {
					t.Fatal(err)
				}
			}
		}
		return []byte("QUERY OUTPUT\n"), nil
	})
}

func failRunner(msg string) Runner {
	return runnerFunc(func(_ context.Context, _ []string) ([]byte, error) {
		return nil, errors.New(msg)
	})
}

func sourceTree(t *testing.T) (dir, file, shortcut string) {
	t.Helper()
	src := t.TempDir()
	dir = filepath.Join(src, "App")
	if err := os.MkdirAll(filepath.Join(dir, "plugins"), 0o755); err != nil {
		t.Fatal(err)
	}
	for p, content := range map[string]string{
		filepath.Join(dir, "acme.exe"):            "binary",
		filepath.Join(dir, "plugins", "core.dll"): "plugin",
	} {
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	file = filepath.Join(src, "acme.ini")
	if err := os.WriteFile(file, []byte("[acme]"), 0o644); err != nil {
		t.Fatal(err)
	}
	shortcut = filepath.Join(src, "Acme.lnk")
	if err := os.WriteFile(shortcut, []byte("lnk"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, file, shortcut
}

func buildConfig(dir, file, shortcut string) *model.Configuration {
	return &model.Configuration{
		AppName: "Acme",
		Directories: []model.DirectoryEntry{
			{Source: dir, Target: "Acme/App", Type: model.DirProgram},
		},
		Files: []model.FileEntry{
			{Source: file, Target: "acme.ini"},
		},
		RegistryKeys: []model.RegistryKeyEntry{
			{Hive: model.HiveHKCU, Path: `Software\Acme`},
		},
		Services:       []model.ServiceEntry{{Name: "AcmeSvc"}},
		ScheduledTasks: []model.ScheduledTaskEntry{{Name: `\Acme\Updater`}},
		Shortcuts:      []model.ShortcutEntry{{Source: shortcut}},
	}
}

func TestBuild_RealMode(t *testing.T) {
	dir, file, shortcut := sourceTree(t)
	cfg := buildConfig(dir, file, shortcut)
	out := filepath.Join(t.TempDir(), "pkg")

	b := &Builder{Runner: okRunner(t)}
	man, err := b.Build(context.Background(), cfg, out, false)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if man.DryRun {
		t.Error("manifest should record real mode")
	}

	for _, p := range []string{
		filepath.Join(out, "ProgramFiles", "Acme", "App", "acme.exe"),
		filepath.Join(out, "ProgramFiles", "Acme", "App", "plugins", "core.dll"),
		filepath.Join(out, "ProgramFiles", "acme.ini"),
		filepath.Join(out, "Registry", "HKCU_Software_Acme.reg"),
		filepath.Join(out, "Services", "AcmeSvc.txt"),
		filepath.Join(out, "Tasks", "Acme_Updater.xml"),
		filepath.Join(out, "Shortcuts", "Acme.lnk"),
		filepath.Join(out, manifest.FileName),
		filepath.Join(out, RestoreScriptName),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing artifact %s: %v", p, err)
		}
	}

	counts := man.Counts()
	if counts[manifest.StatusCopied] != 3 || counts[manifest.StatusExported] != 3 {
		t.Errorf("counts = %v, want 3 copied and 3 exported", counts)
	}

	// Copied file entries carry a checksum of the captured artifact.
	for _, e := range man.Entries {
		if e.Category == manifest.CategoryFile && e.SHA256 == "" {
			t.Errorf("file entry missing checksum: %+v", e)
		}
	}
}

func TestBuild_MissingSourceIsNonFatal(t *testing.T) {
	_, file, shortcut := sourceTree(t)
	cfg := buildConfig(filepath.Join(t.TempDir(), "gone"), file, shortcut)
	out := filepath.Join(t.TempDir(), "pkg")

	b := &Builder{Runner: okRunner(t)}
	man, err := b.Build(context.Background(), cfg, out, false)
	if err != nil {
		t.Fatalf("per-entry failure must not abort the build: %v", err)
	}

	counts := man.Counts()
	if counts[manifest.StatusFailed] != 1 {
		t.Errorf("counts = %v, want exactly one failed entry", counts)
	}
	if _, err := os.Stat(filepath.Join(out, "ProgramFiles", "acme.ini")); err != nil {
		t.Errorf("valid file should still be captured: %v", err)
	}
	if man.Entries[0].Status != manifest.StatusFailed {
		t.Errorf("first entry = %+v, want failed directory", man.Entries[0])
	}
}

func TestBuild_NonEmptyDestinationRejected(t *testing.T) {
	dir, file, shortcut := sourceTree(t)
	cfg := buildConfig(dir, file, shortcut)
	out := t.TempDir()
	if err := os.WriteFile(filepath.Join(out, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := &Builder{Runner: okRunner(t)}
	_, err := b.Build(context.Background(), cfg, out, false)
	if !errors.Is(err, apperr.ErrDestinationNotEmpty) {
		t.Fatalf("err = %v, want ErrDestinationNotEmpty", err)
	}

	entries, readErr := os.ReadDir(out)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 1 {
		t.Errorf("destination mutated: %v", entries)
	}
}

func TestBuild_DryRunWritesNothing(t *testing.T) {
	dir, file, shortcut := sourceTree(t)
	cfg := buildConfig(dir, file, shortcut)
	out := filepath.Join(t.TempDir(), "pkg")

	b := &Builder{Runner: failRunner("tools must not run in dry-run mode")}
	man, err := b.Build(context.Background(), cfg, out, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !man.DryRun {
		t.Error("manifest should record dry-run mode")
	}
	for _, e := range man.Entries {
		if e.Status != manifest.StatusSkipped {
			t.Errorf("entry = %+v, want skipped", e)
		}
		if e.Detail == "" {
			t.Errorf("dry-run entry needs a detail explaining the would-be action: %+v", e)
		}
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("dry run must not create the output root")
	}
}

func TestBuild_DryRunRealParity(t *testing.T) {
	dir, file, shortcut := sourceTree(t)
	cfg := buildConfig(dir, file, shortcut)
	base := t.TempDir()

	b := &Builder{Runner: okRunner(t)}
	dry, err := b.Build(context.Background(), cfg, filepath.Join(base, "dry"), true)
	if err != nil {
		t.Fatal(err)
	}
	real, err := b.Build(context.Background(), cfg, filepath.Join(base, "real"), false)
	if err != nil {
		t.Fatal(err)
	}

	if len(dry.Entries) != len(real.Entries) {
		t.Fatalf("entry counts differ: %d vs %d", len(dry.Entries), len(real.Entries))
	}
	for i := range dry.Entries {
		d, r := dry.Entries[i], real.Entries[i]
		if d.Source != r.Source || d.Category != r.Category || d.Destination != r.Destination {
			t.Errorf("entry %d ordering mismatch: %+v vs %+v", i, d, r)
		}
		if d.Status != manifest.StatusSkipped {
			t.Errorf("dry entry %d = %q, want skipped", i, d.Status)
		}
		if r.Status != manifest.StatusCopied && r.Status != manifest.StatusExported {
			t.Errorf("real entry %d = %q, want copied or exported", i, r.Status)
		}
	}
}

func TestBuild_FailedToolRecorded(t *testing.T) {
	dir, file, shortcut := sourceTree(t)
	cfg := buildConfig(dir, file, shortcut)
	out := filepath.Join(t.TempDir(), "pkg")

	b := &Builder{Runner: failRunner("access denied")}
	man, err := b.Build(context.Background(), cfg, out, false)
	if err != nil {
		t.Fatalf("tool failures must not abort: %v", err)
	}
	counts := man.Counts()
	// Registry key, service, and task all delegate to the failing runner.
	if counts[manifest.StatusFailed] != 3 {
		t.Errorf("counts = %v, want 3 failed", counts)
	}
	for _, e := range man.Entries {
		if e.Status == manifest.StatusFailed && e.Detail == "" {
			t.Errorf("failed entry needs detail: %+v", e)
		}
	}
}

func TestBuild_ProgramDirectoriesBeforeData(t *testing.T) {
	dataDir, file, shortcut := sourceTree(t)
	progDir := filepath.Join(t.TempDir(), "prog")
	if err := os.MkdirAll(progDir, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := buildConfig(progDir, file, shortcut)
	// Data directory listed first; the builder must still process program first.
	cfg.Directories = []model.DirectoryEntry{
		{Source: dataDir, Target: "Acme", Type: model.DirData},
		{Source: progDir, Target: "Acme/App", Type: model.DirProgram},
	}

	b := &Builder{Runner: okRunner(t)}
	man, err := b.Build(context.Background(), cfg, filepath.Join(t.TempDir(), "pkg"), false)
	if err != nil {
		t.Fatal(err)
	}
	if man.Entries[0].Source != progDir {
		t.Errorf("first entry = %+v, want the program directory", man.Entries[0])
	}
}

func TestTool_Expand(t *testing.T) {
	tool := Tool{"reg", "export", "{input}", "{output}", "/y"}
	got := tool.Expand(`HKCU\Software\Acme`, `C:\out\k.reg`)
	want := []string{"reg", "export", `HKCU\Software\Acme`, `C:\out\k.reg`, "/y"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("argv[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSanitize(t *testing.T) {
	if got := Sanitize(`HKCU\Software\Acme App`); got != "HKCU_Software_Acme_App" {
		t.Errorf("Sanitize = %q", got)
	}
}
