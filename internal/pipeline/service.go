// Package pipeline orchestrates the two stages: converting an installer
// trace into a declarative configuration, and building a portable package
// from a configuration. Every front end (CLI, HTTP, MCP) goes through the
// Service so behavior stays identical across surfaces.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"portapak/internal/classify"
	"portapak/internal/history"
	"portapak/internal/manifest"
	"portapak/internal/model"
	"portapak/internal/pack"
	"portapak/internal/progress"
	"portapak/internal/trace"
)

// Service runs pipeline operations with shared wiring: classification rules,
// capture tools, optional run history and progress reporting.
type Service struct {
	rules    []classify.Rule
	tools    pack.ToolSet
	runner   pack.Runner
	hist     history.Store
	reporter progress.Reporter
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRules overrides the default classification rules.
func WithRules(rules []classify.Rule) Option {
	return func(s *Service) {
		if len(rules) > 0 {
			s.rules = rules
		}
	}
}

// WithTools overrides the default capture tool invocations.
func WithTools(tools pack.ToolSet) Option {
	return func(s *Service) { s.tools = tools }
}

// WithRunner overrides the external command runner, used by tests.
func WithRunner(r pack.Runner) Option {
	return func(s *Service) { s.runner = r }
}

// WithHistory enables run recording. A nil store disables it.
func WithHistory(h history.Store) Option {
	return func(s *Service) { s.hist = h }
}

// WithReporter sets the progress sink.
func WithReporter(r progress.Reporter) Option {
	return func(s *Service) { s.reporter = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service with defaults applied, then options.
func New(opts ...Option) *Service {
	s := &Service{
		rules:  classify.DefaultRules(),
		tools:  pack.DefaultToolSet(),
		runner: &pack.ExecRunner{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConvertRequest names the inputs of the trace-to-configuration stage.
type ConvertRequest struct {
	TracePath  string
	OutputPath string
	AppName    string
}

// ConvertResult summarizes a finished conversion.
type ConvertResult struct {
	Config     *model.Configuration `json:"config"`
	Notes      []string             `json:"notes,omitempty"`
	OutputPath string               `json:"output_path"`
	Entries    int                  `json:"entries"`
}

// Convert reads an installer trace, classifies its entries into a
// configuration, and writes the configuration as JSON.
func (s *Service) Convert(ctx context.Context, req ConvertRequest) (*ConvertResult, error) {
	progress.Started(s.reporter, "reading trace "+req.TracePath)
	entries, err := trace.Read(req.TracePath)
	if err != nil {
		progress.Failed(s.reporter, "reading trace", err)
		return nil, err
	}
	progress.Finished(s.reporter, fmt.Sprintf("trace read: %d entries", len(entries)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	progress.Started(s.reporter, "classifying entries")
	result := classify.Classify(entries, req.AppName, s.rules)
	for _, note := range result.Notes {
		progress.Log(s.reporter, note)
		s.logger.Info("classification note", slog.String("note", note))
	}
	progress.Finished(s.reporter, "classification complete: "+result.Config.AppName)

	if err := model.Save(result.Config, req.OutputPath); err != nil {
		progress.Failed(s.reporter, "writing configuration", err)
		return nil, err
	}
	progress.Finished(s.reporter, "configuration written to "+req.OutputPath)

	s.recordRun(history.Run{
		Kind:       history.KindConvert,
		AppName:    result.Config.AppName,
		InputPath:  req.TracePath,
		OutputPath: req.OutputPath,
	})

	return &ConvertResult{
		Config:     result.Config,
		Notes:      result.Notes,
		OutputPath: req.OutputPath,
		Entries:    len(entries),
	}, nil
}

// BuildRequest names the inputs of the configuration-to-package stage.
type BuildRequest struct {
	ConfigPath string
	OutputRoot string
	DryRun     bool
}

// BuildResult summarizes a finished build.
type BuildResult struct {
	Manifest   *manifest.Manifest `json:"manifest"`
	OutputRoot string             `json:"output_root"`
}

// Build loads and validates a configuration, then captures the declared
// state into a package under the output root.
func (s *Service) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	cfg, err := model.Load(req.ConfigPath)
	if err != nil {
		progress.Failed(s.reporter, "loading configuration", err)
		return nil, err
	}

	b := &pack.Builder{
		Tools:    s.tools,
		Runner:   s.runner,
		Reporter: s.reporter,
		Logger:   s.logger,
	}
	man, err := b.Build(ctx, cfg, req.OutputRoot, req.DryRun)
	if err != nil {
		return nil, err
	}

	counts := man.Counts()
	s.recordRun(history.Run{
		Kind:       history.KindBuild,
		AppName:    cfg.AppName,
		InputPath:  req.ConfigPath,
		OutputPath: req.OutputRoot,
		DryRun:     req.DryRun,
		Copied:     counts[manifest.StatusCopied],
		Exported:   counts[manifest.StatusExported],
		Skipped:    counts[manifest.StatusSkipped],
		Failed:     counts[manifest.StatusFailed],
	})

	return &BuildResult{Manifest: man, OutputRoot: req.OutputRoot}, nil
}

// Runs lists recent recorded runs. Returns an empty slice when history is
// not configured.
func (s *Service) Runs(limit int) ([]history.Run, error) {
	if s.hist == nil {
		return nil, nil
	}
	return s.hist.ListRuns(limit)
}

func (s *Service) recordRun(r history.Run) {
	if s.hist == nil {
		return
	}
	if _, err := s.hist.RecordRun(r); err != nil {
		s.logger.Warn("record run", slog.String("error", err.Error()))
	}
}
