// Package restore renders the batch script that replays a captured package
// on a target machine: directory sync, registry import, task re-creation,
// shortcut placement.
package restore

import (
	"fmt"
	"strings"
	"text/template"

	"portapak/internal/manifest"
	"portapak/internal/model"
)

const scriptTemplate = `@echo off
setlocal
echo === Restore {{.AppName}} ===
{{range .Sections}}
REM === {{.Title}} ===
{{range .Lines}}{{.}}
{{end}}{{end}}
echo Restore finished. Review any [warn] lines above.
pause
`

var tmpl = template.Must(template.New("restore").Parse(scriptTemplate))

type section struct {
	Title string
	Lines []string
}

type view struct {
	AppName  string
	Sections []section
}

// Render produces the restore script for a configuration and the manifest of
// the run that captured it. Each step checks its command's exit status and
// surfaces a warning without stopping the rest of the script. Entries whose
// capture failed or was skipped are emitted commented-out, so a human can
// still complete them by hand.
func Render(cfg *model.Configuration, man *manifest.Manifest) string {
	v := view{AppName: cfg.AppName}

	if s := directorySection(cfg, man); len(s.Lines) > 0 {
		v.Sections = append(v.Sections, s)
	}
	if s := fileSection(cfg, man); len(s.Lines) > 0 {
		v.Sections = append(v.Sections, s)
	}
	if s := registrySection(cfg, man); len(s.Lines) > 0 {
		v.Sections = append(v.Sections, s)
	}
	if s := serviceSection(cfg, man); len(s.Lines) > 0 {
		v.Sections = append(v.Sections, s)
	}
	if s := taskSection(cfg, man); len(s.Lines) > 0 {
		v.Sections = append(v.Sections, s)
	}
	if s := shortcutSection(cfg, man); len(s.Lines) > 0 {
		v.Sections = append(v.Sections, s)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, v); err != nil {
		// The template is static and the view is plain data; this cannot
		// fire outside of a programming error.
		panic(err)
	}
	out := strings.ReplaceAll(sb.String(), "\r\n", "\n")
	return strings.ReplaceAll(out, "\n", "\r\n")
}

func directorySection(cfg *model.Configuration, man *manifest.Manifest) section {
	s := section{Title: "Sync directory trees"}
	for _, d := range cfg.Directories {
		status, destRel := lookup(man, manifest.CategoryDirectory, d.Source)
		cmd := fmt.Sprintf(`robocopy "%%~dp0%s" "%s" /MIR /COPYALL /R:2 /W:2 /NFL /NDL /NP`,
			winPath(destRel), runtimeDest(d))
		guard := fmt.Sprintf(`if errorlevel 8 echo [warn] directory restore failed: %s`, d.Target)
		s.Lines = append(s.Lines, guarded(status, cmd, guard)...)
	}
	return s
}

func fileSection(cfg *model.Configuration, man *manifest.Manifest) section {
	s := section{Title: "Copy loose files"}
	for _, f := range cfg.Files {
		status, destRel := lookup(man, manifest.CategoryFile, f.Source)
		cmd := fmt.Sprintf(`copy /Y "%%~dp0%s" "%s"`, winPath(destRel), f.Source)
		guard := fmt.Sprintf(`if errorlevel 1 echo [warn] file restore failed: %s`, f.Target)
		s.Lines = append(s.Lines, guarded(status, cmd, guard)...)
	}
	return s
}

func registrySection(cfg *model.Configuration, man *manifest.Manifest) section {
	s := section{Title: "Import registry snapshots"}
	for _, k := range cfg.RegistryKeys {
		status, destRel := lookup(man, manifest.CategoryRegistry, k.FullKey())
		cmd := fmt.Sprintf(`reg import "%%~dp0%s"`, winPath(destRel))
		guard := fmt.Sprintf(`if errorlevel 1 echo [warn] registry import failed: %s`, k.FullKey())
		s.Lines = append(s.Lines, guarded(status, cmd, guard)...)
	}
	return s
}

// serviceSection is informational: service snapshots hold the captured
// configuration, but re-creating a service needs machine-specific decisions,
// so the sc create line stays commented for the operator to fill in.
func serviceSection(cfg *model.Configuration, man *manifest.Manifest) section {
	s := section{Title: "Recreate services (manual)"}
	for _, svc := range cfg.Services {
		status, destRel := lookup(man, manifest.CategoryService, svc.Name)
		show := fmt.Sprintf(`type "%%~dp0%s"`, winPath(destRel))
		if status == manifest.StatusExported {
			s.Lines = append(s.Lines, show)
		} else {
			s.Lines = append(s.Lines, "REM (not captured) "+show)
		}
		s.Lines = append(s.Lines, fmt.Sprintf(`REM sc create %s ... (fill in from the captured configuration above)`, svc.Name))
	}
	return s
}

func taskSection(cfg *model.Configuration, man *manifest.Manifest) section {
	s := section{Title: "Recreate scheduled tasks"}
	for _, t := range cfg.ScheduledTasks {
		status, destRel := lookup(man, manifest.CategoryTask, t.Name)
		cmd := fmt.Sprintf(`schtasks /create /tn "%s" /xml "%%~dp0%s" /f`, t.Name, winPath(destRel))
		guard := fmt.Sprintf(`if errorlevel 1 echo [warn] task creation failed: %s`, t.Name)
		s.Lines = append(s.Lines, guarded(status, cmd, guard)...)
	}
	return s
}

func shortcutSection(cfg *model.Configuration, man *manifest.Manifest) section {
	s := section{Title: "Place shortcuts"}
	const programsDir = `%APPDATA%\Microsoft\Windows\Start Menu\Programs`
	for _, sc := range cfg.Shortcuts {
		status, destRel := lookup(man, manifest.CategoryShortcut, sc.Source)
		cmd := fmt.Sprintf(`copy /Y "%%~dp0%s" "%s\"`, winPath(destRel), programsDir)
		guard := fmt.Sprintf(`if errorlevel 1 echo [warn] shortcut copy failed: %s`, winPath(destRel))
		s.Lines = append(s.Lines, guarded(status, cmd, guard)...)
	}
	return s
}

// guarded emits the command plus its exit-status guard, commented out when
// the capture did not actually produce the artifact.
func guarded(status manifest.Status, cmd, guard string) []string {
	switch status {
	case manifest.StatusCopied, manifest.StatusExported:
		return []string{cmd, guard}
	default:
		return []string{
			"REM (" + string(status) + " at capture) " + cmd,
			"REM " + guard,
		}
	}
}

// lookup finds the manifest entry for a config entry by category and source.
func lookup(man *manifest.Manifest, cat manifest.Category, source string) (manifest.Status, string) {
	for _, e := range man.Entries {
		if e.Category == cat && strings.EqualFold(e.Source, source) {
			return e.Status, e.Destination
		}
	}
	return manifest.StatusSkipped, ""
}

// runtimeDest maps a captured directory to its expected location on the
// target machine. Data targets beginning with Roaming or Local came from a
// per-user AppData tree and route through the matching environment root.
func runtimeDest(d model.DirectoryEntry) string {
	segs := strings.FieldsFunc(d.Target, func(r rune) bool { return r == '/' || r == '\\' })
	if d.Type == model.DirData && len(segs) > 0 {
		switch strings.ToLower(segs[0]) {
		case "roaming":
			return joinWin(`%AppData%`, segs[1:])
		case "local":
			return joinWin(`%LocalAppData%`, segs[1:])
		}
	}
	if d.Type == model.DirProgram {
		return joinWin(`%ProgramFiles%`, segs)
	}
	return joinWin(`%ProgramData%`, segs)
}

func joinWin(base string, segs []string) string {
	if len(segs) == 0 {
		return base
	}
	return base + `\` + strings.Join(segs, `\`)
}

func winPath(rel string) string {
	return strings.ReplaceAll(rel, "/", `\`)
}
