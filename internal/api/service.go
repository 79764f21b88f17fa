package api

import (
	"context"
	"os"
	"path/filepath"

	"portapak/internal/history"
	"portapak/internal/pipeline"
)

// Service adapts the pipeline for the HTTP layer: it resolves request
// paths against the workspace and exposes the operations handlers need.
type Service struct {
	pipe      *pipeline.Service
	workspace string
}

// NewService creates a new API service rooted at the workspace directory.
func NewService(pipe *pipeline.Service, workspace string) *Service {
	return &Service{pipe: pipe, workspace: workspace}
}

// resolve turns a request path into an absolute one. Relative paths are
// taken to mean inside the workspace.
func (s *Service) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.workspace, p)
}

// Convert runs the trace-to-configuration stage.
func (s *Service) Convert(ctx context.Context, tracePath, outputPath, appName string) (*pipeline.ConvertResult, error) {
	return s.pipe.Convert(ctx, pipeline.ConvertRequest{
		TracePath:  s.resolve(tracePath),
		OutputPath: s.resolve(outputPath),
		AppName:    appName,
	})
}

// Build runs the configuration-to-package stage.
func (s *Service) Build(ctx context.Context, configPath, outputRoot string, dryRun bool) (*pipeline.BuildResult, error) {
	return s.pipe.Build(ctx, pipeline.BuildRequest{
		ConfigPath: s.resolve(configPath),
		OutputRoot: s.resolve(outputRoot),
		DryRun:     dryRun,
	})
}

// Runs lists recent pipeline runs.
func (s *Service) Runs(limit int) ([]history.Run, error) {
	return s.pipe.Runs(limit)
}

// Exists reports whether a path exists and whether it is a directory.
func (s *Service) Exists(p string) (exists, isDir bool) {
	info, err := os.Stat(s.resolve(p))
	if err != nil {
		return false, false
	}
	return true, info.IsDir()
}
