// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the selection tree and merge tools via stdio transport.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/collate/internal/selection"
	"github.com/starford/collate/internal/workspace"
)

// Resource URIs.
const (
	TreeResourceURI   = "collate://tree"
	FormatResourceURI = "collate://import-format"
)

// Server wraps the MCP server with collate tools.
type Server struct {
	mcp *server.MCPServer
	svc *workspace.Service
}

// New creates a new MCP server with all collate tools registered.
func New(svc *workspace.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"collate",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("scan_directory",
		mcp.WithDescription("Load a directory into the selection tree. Hidden entries are skipped. "+
			"Replaces the current tree; every file starts unchecked."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute or relative directory path")),
	), s.scanDirectory)

	s.mcp.AddTool(mcp.NewTool("import_list",
		mcp.WithDescription("Load a JSON file list into the tree with every file checked. "+
			"See get_import_format or the "+FormatResourceURI+" resource for the document shape."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the JSON document")),
	), s.importList)

	s.mcp.AddTool(mcp.NewTool("get_import_format",
		mcp.WithDescription("Returns the import list format and the merged output layout."),
	), s.getImportFormat)

	s.mcp.AddTool(mcp.NewTool("toggle",
		mcp.WithDescription("Flip the check state of a node. Folders apply the result to every descendant."),
		mcp.WithString("address", mcp.Required(), mcp.Description("Slash-separated child indices, e.g. 0/2")),
	), s.toggle)

	s.mcp.AddTool(mcp.NewTool("select_by_extension",
		mcp.WithDescription("Check files whose extension matches. Never unchecks anything."),
		mcp.WithString("extension", mcp.Required(), mcp.Description("Extension with or without the dot, e.g. .go")),
		mcp.WithString("address", mcp.Description("Folder address; empty for the root, a file address means its folder")),
		mcp.WithBoolean("recursive", mcp.Description("Descend into subfolders")),
	), s.selectByExtension)

	s.mcp.AddTool(mcp.NewTool("set_all",
		mcp.WithDescription("Check or uncheck every node in the tree."),
		mcp.WithBoolean("checked", mcp.Required(), mcp.Description("Target state")),
	), s.setAll)

	s.mcp.AddTool(mcp.NewTool("list_checked",
		mcp.WithDescription("List the checked files in merge order, one absolute path per line."),
	), s.listChecked)

	s.mcp.AddTool(mcp.NewTool("list_extensions",
		mcp.WithDescription("List the distinct extensions of the files directly inside a folder."),
		mcp.WithString("address", mcp.Description("Folder address; empty for the root")),
	), s.listExtensions)

	s.mcp.AddTool(mcp.NewTool("start_merge",
		mcp.WithDescription("Merge the checked files into one timestamped text file in the background. "+
			"Poll merge_status for the outcome."),
		mcp.WithString("output_dir", mcp.Description("Output directory; defaults to the configured one")),
	), s.startMerge)

	s.mcp.AddTool(mcp.NewTool("merge_status",
		mcp.WithDescription("Report whether a merge is running, its progress, and the last result."),
	), s.mergeStatus)

	s.mcp.AddTool(mcp.NewTool("cancel_merge",
		mcp.WithDescription("Request cancellation of the running merge."),
	), s.cancelMerge)

	s.mcp.AddResource(
		mcp.NewResource(TreeResourceURI, "Selection Tree",
			mcp.WithResourceDescription("JSON snapshot of the selection tree with every node's state."),
			mcp.WithMIMEType("application/json"),
		),
		s.readTreeResource,
	)
	s.mcp.AddResource(
		mcp.NewResource(FormatResourceURI, "Import List Format",
			mcp.WithResourceDescription("Shape of the JSON import list and of merged output."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func optionalAddress(req mcp.CallToolRequest) (selection.Address, error) {
	return selection.ParseAddress(req.GetString("address", ""))
}

func (s *Server) scanDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report, err := s.svc.Scan(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

func (s *Server) importList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report, err := s.svc.Import(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

func (s *Server) getImportFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ImportFormatContract), nil
}

func (s *Server) toggle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("address")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	addr, err := selection.ParseAddress(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.svc.Toggle(addr)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s", addr, st)), nil
}

func (s *Server) selectByExtension(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ext, err := req.RequireString("extension")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	addr, err := optionalAddress(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	count, err := s.svc.SelectByExtension(addr, ext, req.GetBool("recursive", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%d files checked", count)), nil
}

func (s *Server) setAll(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	checked, err := req.RequireBool("checked")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.svc.SetAll(checked)
	if checked {
		return mcp.NewToolResultText("all nodes checked"), nil
	}
	return mcp.NewToolResultText("all nodes unchecked"), nil
}

func (s *Server) listChecked(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files := s.svc.Checked()
	if len(files) == 0 {
		return mcp.NewToolResultText("no files checked"), nil
	}
	return mcp.NewToolResultText(strings.Join(files, "\n")), nil
}

func (s *Server) listExtensions(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	addr, err := optionalAddress(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	exts, err := s.svc.Extensions(addr)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(exts) == 0 {
		return mcp.NewToolResultText("no extensions found"), nil
	}
	return mcp.NewToolResultText(strings.Join(exts, "\n")), nil
}

func (s *Server) startMerge(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.svc.StartMerge(req.GetString("output_dir", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("merge %d started", id)), nil
}

func (s *Server) mergeStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.MergeStatus())
}

func (s *Server) cancelMerge(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.svc.CancelMerge() {
		return mcp.NewToolResultText("no merge running"), nil
	}
	return mcp.NewToolResultText("cancellation requested"), nil
}

func (s *Server) readTreeResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.Marshal(s.svc.Snapshot())
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      TreeResourceURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FormatResourceURI,
			MIMEType: "text/markdown",
			Text:     ImportFormatContract,
		},
	}, nil
}
