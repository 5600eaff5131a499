package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/collate/internal/merge"
	"github.com/starford/collate/internal/selection"
	"github.com/starford/collate/internal/testutil"
	"github.com/starford/collate/internal/workspace"
)

func testServer(t *testing.T) (*Server, *workspace.Service, string) {
	t.Helper()
	svc := workspace.NewService(t.TempDir(), workspace.WithLogger(testutil.Logger()))
	t.Cleanup(svc.Close)
	root := testutil.WriteTree(t, map[string]string{
		"cmd/main.go":   "package main",
		"cmd/flags.go":  "package main // flags",
		"docs/intro.md": "# intro",
		"go.mod":        "module x",
	})
	return New(svc, "test"), svc, root
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// Handlers are called directly; mcp-go has no in-process call helper.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "scan_directory":
		result, err = srv.scanDirectory(ctx, req)
	case "import_list":
		result, err = srv.importList(ctx, req)
	case "get_import_format":
		result, err = srv.getImportFormat(ctx, req)
	case "toggle":
		result, err = srv.toggle(ctx, req)
	case "select_by_extension":
		result, err = srv.selectByExtension(ctx, req)
	case "set_all":
		result, err = srv.setAll(ctx, req)
	case "list_checked":
		result, err = srv.listChecked(ctx, req)
	case "list_extensions":
		result, err = srv.listExtensions(ctx, req)
	case "start_merge":
		result, err = srv.startMerge(ctx, req)
	case "merge_status":
		result, err = srv.mergeStatus(ctx, req)
	case "cancel_merge":
		result, err = srv.cancelMerge(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestScanAndToggle(t *testing.T) {
	srv, _, root := testServer(t)

	r := callTool(t, srv, "scan_directory", map[string]any{"path": root})
	if r.IsError {
		t.Fatalf("scan failed: %s", resultText(r))
	}
	var report workspace.LoadReport
	if err := json.Unmarshal([]byte(resultText(r)), &report); err != nil {
		t.Fatal(err)
	}
	if report.Files != 4 {
		t.Errorf("files = %d, want 4", report.Files)
	}

	r = callTool(t, srv, "toggle", map[string]any{"address": "0"})
	if text := resultText(r); text != "0: checked" {
		t.Errorf("toggle = %q", text)
	}

	r = callTool(t, srv, "list_checked", map[string]any{})
	want := filepath.Join(root, "cmd", "flags.go") + "\n" + filepath.Join(root, "cmd", "main.go")
	if text := resultText(r); text != want {
		t.Errorf("checked = %q, want %q", text, want)
	}
}

func TestToggle_Errors(t *testing.T) {
	srv, _, root := testServer(t)
	callTool(t, srv, "scan_directory", map[string]any{"path": root})

	for _, args := range []map[string]any{{}, {"address": "a"}, {"address": "7"}} {
		if r := callTool(t, srv, "toggle", args); !r.IsError {
			t.Errorf("toggle %v: expected error", args)
		}
	}
}

func TestSelectByExtensionAndExtensions(t *testing.T) {
	srv, _, root := testServer(t)
	callTool(t, srv, "scan_directory", map[string]any{"path": root})

	r := callTool(t, srv, "select_by_extension", map[string]any{"extension": "go", "recursive": true})
	if text := resultText(r); text != "2 files checked" {
		t.Errorf("select = %q", text)
	}

	r = callTool(t, srv, "list_extensions", map[string]any{"address": "0"})
	if text := resultText(r); text != ".go" {
		t.Errorf("extensions = %q", text)
	}
	r = callTool(t, srv, "list_extensions", map[string]any{})
	if text := resultText(r); text != ".mod" {
		t.Errorf("root extensions = %q", text)
	}

	if r := callTool(t, srv, "select_by_extension", map[string]any{}); !r.IsError {
		t.Error("expected error without extension")
	}
}

func TestSetAll(t *testing.T) {
	srv, svc, root := testServer(t)
	callTool(t, srv, "scan_directory", map[string]any{"path": root})

	callTool(t, srv, "set_all", map[string]any{"checked": true})
	if n := len(svc.Checked()); n != 4 {
		t.Errorf("checked = %d, want 4", n)
	}
	callTool(t, srv, "set_all", map[string]any{"checked": false})
	if text := resultText(callTool(t, srv, "list_checked", map[string]any{})); text != "no files checked" {
		t.Errorf("list_checked = %q", text)
	}
	if r := callTool(t, srv, "set_all", map[string]any{}); !r.IsError {
		t.Error("expected error without checked")
	}
}

func TestImportList(t *testing.T) {
	srv, svc, root := testServer(t)
	list := filepath.Join(root, "list.json")
	if err := os.WriteFile(list, []byte(`{"files_to_merge": ["go.mod", "docs/intro.md"]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "import_list", map[string]any{"path": list})
	if r.IsError {
		t.Fatalf("import failed: %s", resultText(r))
	}
	got := svc.Checked()
	if len(got) != 2 || got[0] != filepath.Join(root, "go.mod") {
		t.Errorf("checked = %v", got)
	}
}

func TestMergeTools(t *testing.T) {
	srv, svc, root := testServer(t)

	if r := callTool(t, srv, "start_merge", map[string]any{}); !r.IsError {
		t.Error("merge before scan should fail")
	}

	callTool(t, srv, "scan_directory", map[string]any{"path": root})
	callTool(t, srv, "set_all", map[string]any{"checked": true})

	out := t.TempDir()
	r := callTool(t, srv, "start_merge", map[string]any{"output_dir": out})
	if text := resultText(r); !strings.HasPrefix(text, "merge ") {
		t.Fatalf("start = %q", text)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.WaitMerge(ctx); err != nil {
		t.Fatal(err)
	}

	var st merge.Status
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		r = callTool(t, srv, "merge_status", map[string]any{})
		if err := json.Unmarshal([]byte(resultText(r)), &st); err != nil {
			t.Fatal(err)
		}
		if st.Last != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if st.Last == nil || !st.Last.Success || filepath.Dir(st.Last.OutputPath) != out {
		t.Fatalf("status = %+v", st)
	}

	if text := resultText(callTool(t, srv, "cancel_merge", map[string]any{})); text != "no merge running" {
		t.Errorf("cancel = %q", text)
	}
}

func TestResources(t *testing.T) {
	srv, _, root := testServer(t)
	callTool(t, srv, "scan_directory", map[string]any{"path": root})

	contents, err := srv.readTreeResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != TreeResourceURI {
		t.Fatalf("contents = %#v", contents)
	}
	var view selection.View
	if err := json.Unmarshal([]byte(tc.Text), &view); err != nil {
		t.Fatal(err)
	}
	if len(view.Children) != 3 || view.Children[0].Name != "cmd" {
		t.Errorf("tree children = %+v", view.Children)
	}

	contents, err = srv.readFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if tc := contents[0].(mcp.TextResourceContents); !strings.Contains(tc.Text, "files_to_merge") {
		t.Error("format resource missing key name")
	}
	if text := resultText(callTool(t, srv, "get_import_format", map[string]any{})); text != ImportFormatContract {
		t.Error("get_import_format mismatch")
	}
}
