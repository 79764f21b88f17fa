package restore

import (
	"strings"
	"testing"

	"portapak/internal/manifest"
	"portapak/internal/model"
)

func sampleConfig() *model.Configuration {
	return &model.Configuration{
		AppName: "Acme",
		Directories: []model.DirectoryEntry{
			{Source: `C:\Program Files\Acme\App`, Target: "Acme/App", Type: model.DirProgram},
			{Source: `C:\Users\bob\AppData\Roaming\Acme`, Target: "Roaming/Acme", Type: model.DirData},
		},
		RegistryKeys: []model.RegistryKeyEntry{
			{Hive: model.HiveHKCU, Path: `Software\Acme`},
		},
		Services:       []model.ServiceEntry{{Name: "AcmeSvc"}},
		ScheduledTasks: []model.ScheduledTaskEntry{{Name: `\Acme\Updater`}},
		Shortcuts:      []model.ShortcutEntry{{Source: `C:\Users\Public\Desktop\Acme.lnk`}},
	}
}

func sampleManifest(dirStatus manifest.Status) *manifest.Manifest {
	m := manifest.New("Acme", false)
	m.Record(manifest.Entry{Category: manifest.CategoryDirectory, Source: `C:\Program Files\Acme\App`, Destination: "ProgramFiles/Acme/App", Status: dirStatus})
	m.Record(manifest.Entry{Category: manifest.CategoryDirectory, Source: `C:\Users\bob\AppData\Roaming\Acme`, Destination: "ProgramData/Roaming/Acme", Status: manifest.StatusCopied})
	m.Record(manifest.Entry{Category: manifest.CategoryRegistry, Source: `HKCU\Software\Acme`, Destination: "Registry/HKCU_Software_Acme.reg", Status: manifest.StatusExported})
	m.Record(manifest.Entry{Category: manifest.CategoryService, Source: "AcmeSvc", Destination: "Services/AcmeSvc.txt", Status: manifest.StatusExported})
	m.Record(manifest.Entry{Category: manifest.CategoryTask, Source: `\Acme\Updater`, Destination: "Tasks/Acme_Updater.xml", Status: manifest.StatusExported})
	m.Record(manifest.Entry{Category: manifest.CategoryShortcut, Source: `C:\Users\Public\Desktop\Acme.lnk`, Destination: "Shortcuts/Acme.lnk", Status: manifest.StatusCopied})
	return m
}

func TestRender_ActiveSteps(t *testing.T) {
	script := Render(sampleConfig(), sampleManifest(manifest.StatusCopied))

	for _, want := range []string{
		`robocopy "%~dp0ProgramFiles\Acme\App" "%ProgramFiles%\Acme\App" /MIR`,
		`"%AppData%\Acme"`,
		`reg import "%~dp0Registry\HKCU_Software_Acme.reg"`,
		`schtasks /create /tn "\Acme\Updater" /xml "%~dp0Tasks\Acme_Updater.xml" /f`,
		`copy /Y "%~dp0Shortcuts\Acme.lnk"`,
		"if errorlevel 8 echo [warn] directory restore failed: Acme/App",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q\n%s", want, script)
		}
	}
}

func TestRender_FailedEntryCommentedOut(t *testing.T) {
	script := Render(sampleConfig(), sampleManifest(manifest.StatusFailed))
	want := `REM (failed at capture) robocopy "%~dp0ProgramFiles\Acme\App"`
	if !strings.Contains(script, want) {
		t.Errorf("failed entry should be commented out:\n%s", script)
	}
}

func TestRender_DryRunAllCommented(t *testing.T) {
	cfg := &model.Configuration{
		AppName: "Acme",
		RegistryKeys: []model.RegistryKeyEntry{
			{Hive: model.HiveHKLM, Path: `SOFTWARE\Acme`},
		},
	}
	m := manifest.New("Acme", true)
	m.Record(manifest.Entry{Category: manifest.CategoryRegistry, Source: `HKLM\SOFTWARE\Acme`, Destination: "Registry/HKLM_SOFTWARE_Acme.reg", Status: manifest.StatusSkipped})

	script := Render(cfg, m)
	if !strings.Contains(script, "REM (skipped at capture) reg import") {
		t.Errorf("skipped entry should be commented out:\n%s", script)
	}
	if strings.Contains(script, "\nreg import") {
		t.Error("no active import line expected for a skipped entry")
	}
}

func TestRender_CRLFLineEndings(t *testing.T) {
	script := Render(sampleConfig(), sampleManifest(manifest.StatusCopied))
	if !strings.HasPrefix(script, "@echo off\r\n") {
		t.Error("script must start with @echo off and CRLF endings")
	}
	if strings.Contains(strings.ReplaceAll(script, "\r\n", ""), "\n") {
		t.Error("all line endings should be CRLF")
	}
}

func TestRender_ServiceStepsStayManual(t *testing.T) {
	script := Render(sampleConfig(), sampleManifest(manifest.StatusCopied))
	if !strings.Contains(script, "REM sc create AcmeSvc") {
		t.Errorf("service re-creation should be a commented hint:\n%s", script)
	}
}
