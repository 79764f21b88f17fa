package pack

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Tool is the argv template of an external capture command. The placeholders
// {input} and {output} are substituted per invocation. Templates live in the
// settings file so the exact export/query syntax stays configurable rather
// than hard-coded.
type Tool []string

// Expand substitutes the placeholders and returns a concrete argv.
func (t Tool) Expand(input, output string) []string {
	argv := make([]string, len(t))
	for i, a := range t {
		a = strings.ReplaceAll(a, "{input}", input)
		a = strings.ReplaceAll(a, "{output}", output)
		argv[i] = a
	}
	return argv
}

// ToolSet groups the external commands the builder delegates to.
type ToolSet struct {
	RegistryExport     Tool // {input} = hive-qualified key, {output} = .reg file
	ServiceQuery       Tool // {input} = service name
	ServiceDescription Tool // {input} = service name; best-effort
	TaskQuery          Tool // {input} = task name
}

// DefaultToolSet returns the standard Windows tool invocations.
func DefaultToolSet() ToolSet {
	return ToolSet{
		RegistryExport:     Tool{"reg", "export", "{input}", "{output}", "/y"},
		ServiceQuery:       Tool{"sc.exe", "qc", "{input}"},
		ServiceDescription: Tool{"sc.exe", "qdescription", "{input}"},
		TaskQuery:          Tool{"schtasks", "/query", "/tn", "{input}", "/xml"},
	}
}

// Runner executes an external command synchronously and returns its stdout.
// The builder treats these commands as opaque side-effecting collaborators;
// tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, argv []string) ([]byte, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

// Run implements Runner. A non-zero exit maps to an error carrying the
// command's stderr, which ends up as the manifest entry detail.
func (ExecRunner) Run(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("pack: empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg == "" {
			return nil, fmt.Errorf("pack: %s: %w", argv[0], err)
		}
		return nil, fmt.Errorf("pack: %s: %v: %s", argv[0], err, msg)
	}
	return stdout.Bytes(), nil
}
