package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"portapak/internal/history"
	"portapak/internal/manifest"
	"portapak/internal/model"
	"portapak/internal/pack"
	"portapak/internal/progress"
	"portapak/internal/testutil"
)

type runnerFunc func(ctx context.Context, argv []string) ([]byte, error)

func (f runnerFunc) Run(ctx context.Context, argv []string) ([]byte, error) { return f(ctx, argv) }

func okRunner(t *testing.T) pack.Runner {
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

func writeTrace(t *testing.T, programDir string) string {
	t.Helper()
	content := `<?xml version="1.0"?>
<TracedData>
  <Item Path="` + programDir + `" />
  <Item Location="HKCU\Software\Acme" />
  <Service Name="AcmeSvc" />
</TracedData>`
	p := filepath.Join(t.TempDir(), "trace.xml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestConvert_WritesConfiguration(t *testing.T) {
	trace := writeTrace(t, `C:\Program Files\Acme\App`)
	out := filepath.Join(t.TempDir(), "acme.json")

	var mu sync.Mutex
	var events []progress.Event
	reporter := progress.Func(func(e progress.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	svc := New(WithReporter(reporter))
	res, err := svc.Convert(context.Background(), ConvertRequest{TracePath: trace, OutputPath: out})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if res.Entries != 3 {
		t.Errorf("entries = %d, want 3", res.Entries)
	}
	if res.Config.AppName != "App" {
		t.Errorf("app name = %q, want derived from program directory", res.Config.AppName)
	}

	cfg, err := model.Load(out)
	if err != nil {
		t.Fatalf("written configuration must load back: %v", err)
	}
	if len(cfg.Directories) != 1 || len(cfg.RegistryKeys) != 1 || len(cfg.Services) != 1 {
		t.Errorf("config = %+v", cfg)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) == 0 {
		t.Error("expected progress events")
	}
	if events[0].Kind != progress.KindStarted {
		t.Errorf("first event = %+v, want started", events[0])
	}
}

func TestConvert_ExplicitAppNameWins(t *testing.T) {
	trace := writeTrace(t, `C:\Program Files\Acme\App`)
	out := filepath.Join(t.TempDir(), "acme.json")

	svc := New()
	res, err := svc.Convert(context.Background(), ConvertRequest{TracePath: trace, OutputPath: out, AppName: "My Tool"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Config.AppName != "My Tool" {
		t.Errorf("app name = %q, want %q", res.Config.AppName, "My Tool")
	}
}

func TestConvert_MissingTrace(t *testing.T) {
	svc := New()
	_, err := svc.Convert(context.Background(), ConvertRequest{
		TracePath:  filepath.Join(t.TempDir(), "missing.xml"),
		OutputPath: filepath.Join(t.TempDir(), "out.json"),
	})
	if err == nil {
		t.Fatal("expected error for missing trace")
	}
}

func TestBuild_EndToEnd(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "acme.exe"), []byte("bin"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &model.Configuration{
		AppName: "Acme",
		Directories: []model.DirectoryEntry{
			{Source: src, Target: "Acme", Type: model.DirProgram},
		},
		RegistryKeys: []model.RegistryKeyEntry{
			{Hive: model.HiveHKCU, Path: `Software\Acme`},
		},
	}
	cfgPath := filepath.Join(t.TempDir(), "acme.json")
	if err := model.Save(cfg, cfgPath); err != nil {
		t.Fatal(err)
	}

	hist := testutil.TestHistory(t)
	svc := New(WithRunner(okRunner(t)), WithHistory(hist))

	out := filepath.Join(t.TempDir(), "pkg")
	res, err := svc.Build(context.Background(), BuildRequest{ConfigPath: cfgPath, OutputRoot: out})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	counts := res.Manifest.Counts()
	if counts[manifest.StatusCopied] != 1 || counts[manifest.StatusExported] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if _, err := os.Stat(filepath.Join(out, manifest.FileName)); err != nil {
		t.Errorf("manifest not written: %v", err)
	}

	runs, err := svc.Runs(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if runs[0].Kind != history.KindBuild || runs[0].Copied != 1 || runs[0].Exported != 1 {
		t.Errorf("run = %+v", runs[0])
	}
}

func TestBuild_InvalidConfigRejected(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(cfgPath, []byte(`{"app_name": []}`), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := New()
	_, err := svc.Build(context.Background(), BuildRequest{
		ConfigPath: cfgPath,
		OutputRoot: filepath.Join(t.TempDir(), "pkg"),
	})
	if err == nil {
		t.Fatal("expected error for malformed configuration")
	}
}

func TestBuild_DryRunRecordsSkips(t *testing.T) {
	src := t.TempDir()
	cfg := &model.Configuration{
		AppName: "Acme",
		Directories: []model.DirectoryEntry{
			{Source: src, Target: "Acme", Type: model.DirProgram},
		},
	}
	cfgPath := filepath.Join(t.TempDir(), "acme.json")
	if err := model.Save(cfg, cfgPath); err != nil {
		t.Fatal(err)
	}

	hist := testutil.TestHistory(t)
	svc := New(WithRunner(runnerFunc(func(context.Context, []string) ([]byte, error) {
		return nil, errors.New("tools must not run in dry-run mode")
	})), WithHistory(hist))

	out := filepath.Join(t.TempDir(), "pkg")
	res, err := svc.Build(context.Background(), BuildRequest{ConfigPath: cfgPath, OutputRoot: out, DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !res.Manifest.DryRun {
		t.Error("manifest should record dry-run mode")
	}

	runs, err := svc.Runs(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || !runs[0].DryRun || runs[0].Skipped != 1 {
		t.Errorf("runs = %+v", runs)
	}
}
