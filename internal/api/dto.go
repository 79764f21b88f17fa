package api

import (
	"portapak/internal/history"
	"portapak/internal/manifest"
	"portapak/internal/model"
)

// ConvertRequest is the request body for converting a trace.
type ConvertRequest struct {
	TracePath  string `json:"trace_path" example:"acme-trace.xml" validate:"required"`
	OutputPath string `json:"output_path" example:"acme.json" validate:"required"`
	AppName    string `json:"app_name,omitempty" example:"Acme"`
}

// ConvertResponse summarizes a finished conversion.
type ConvertResponse struct {
	Config     *model.Configuration `json:"config" validate:"required"`
	Notes      []string             `json:"notes,omitempty"`
	OutputPath string               `json:"output_path" validate:"required"`
	Entries    int                  `json:"entries" example:"42" validate:"required"`
}

// BuildRequest is the request body for building a package.
type BuildRequest struct {
	ConfigPath string `json:"config_path" example:"acme.json" validate:"required"`
	OutputRoot string `json:"output_root" example:"packages/Acme" validate:"required"`
	DryRun     bool   `json:"dry_run,omitempty"`
}

// BuildResponse summarizes a finished build.
type BuildResponse struct {
	Manifest   *manifest.Manifest `json:"manifest" validate:"required"`
	OutputRoot string             `json:"output_root" validate:"required"`
}

// RunListResponse wraps the run history listing.
type RunListResponse struct {
	Runs []history.Run `json:"runs" validate:"required"`
}

// ExistsResponse reports a path probe.
type ExistsResponse struct {
	Exists bool `json:"exists" validate:"required"`
	IsDir  bool `json:"is_dir"`
}
