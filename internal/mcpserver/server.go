// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the packaging pipeline for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"portapak/internal/manifest"
	"portapak/internal/pipeline"
)

// Server wraps the MCP server with pipeline tools.
type Server struct {
	mcp  *server.MCPServer
	pipe *pipeline.Service
}

// New creates a new MCP server with all pipeline tools registered.
func New(pipe *pipeline.Service) *Server {
	s := &Server{pipe: pipe}

	s.mcp = server.NewMCPServer(
		"Portapak",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("convert_trace",
		mcp.WithDescription("Convert an installer trace XML file into a declarative "+
			"configuration JSON describing directories, files, registry keys, services, "+
			"scheduled tasks, and shortcuts."),
		mcp.WithString("trace_path", mcp.Required(), mcp.Description("Path to the trace XML file")),
		mcp.WithString("output_path", mcp.Required(), mcp.Description("Path to write the configuration JSON")),
		mcp.WithString("app_name", mcp.Description("Optional application name; derived from the trace when empty")),
	), s.convertTrace)

	s.mcp.AddTool(mcp.NewTool("build_package",
		mcp.WithDescription("Build a portable package from a configuration JSON. "+
			"Captures declared directories, files, registry keys, services, tasks, and "+
			"shortcuts into the output root and writes a manifest plus restore script. "+
			"The configuration MUST follow the format described by the get_config_contract "+
			"tool or the portapak://config-format resource."),
		mcp.WithString("config_path", mcp.Required(), mcp.Description("Path to the configuration JSON")),
		mcp.WithString("output_root", mcp.Required(), mcp.Description("Destination directory; must not exist or must be empty")),
		mcp.WithBoolean("dry_run", mcp.Description("Report what would be captured without writing anything")),
	), s.buildPackage)

	s.mcp.AddTool(mcp.NewTool("read_manifest",
		mcp.WithDescription("Read the manifest of a previously built package."),
		mcp.WithString("package_root", mcp.Required(), mcp.Description("Root directory of the built package")),
	), s.readManifest)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recent convert and build runs with their outcome counts."),
	), s.listRuns)

	s.mcp.AddTool(mcp.NewTool("get_config_contract",
		mcp.WithDescription("Returns the canonical configuration JSON format. "+
			"Call this before writing or editing configurations by hand."),
	), s.getConfigContract)

	// Resource: configuration format contract.
	s.mcp.AddResource(
		mcp.NewResource("portapak://config-format", "Configuration Format Contract",
			mcp.WithResourceDescription("Canonical configuration JSON format consumed by build_package."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readConfigFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) convertTrace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tracePath, err := req.RequireString("trace_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	outputPath, err := req.RequireString("output_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	appName := req.GetString("app_name", "")

	res, err := s.pipe.Convert(ctx, pipeline.ConvertRequest{
		TracePath:  tracePath,
		OutputPath: outputPath,
		AppName:    appName,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) buildPackage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	configPath, err := req.RequireString("config_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	outputRoot, err := req.RequireString("output_root")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dryRun := req.GetBool("dry_run", false)

	res, err := s.pipe.Build(ctx, pipeline.BuildRequest{
		ConfigPath: configPath,
		OutputRoot: outputRoot,
		DryRun:     dryRun,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res.Manifest, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readManifest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := req.RequireString("package_root")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	man, err := manifest.ReadFile(filepath.Join(root, manifest.FileName))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no manifest under %s", root)), nil
	}
	out, _ := json.MarshalIndent(man, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := s.pipe.Runs(20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("no runs recorded"), nil
	}
	out, _ := json.MarshalIndent(runs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getConfigContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ConfigFormatContract), nil
}

func (s *Server) readConfigFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "portapak://config-format",
			MIMEType: "text/markdown",
			Text:     ConfigFormatContract,
		},
	}, nil
}
