// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes a lazy tree view as tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/lazytree/internal/render"
	"github.com/starford/lazytree/internal/tree"
)

// TreeResourceURI is the resource holding the current rendered tree.
const TreeResourceURI = "lazytree://tree"

// Server wraps the MCP server with tree tools.
type Server struct {
	mcp  *server.MCPServer
	view *tree.View
	text *render.Text
}

// New creates a new MCP server with all tree tools registered.
func New(view *tree.View) *Server {
	s := &Server{
		view: view,
		text: render.NewText(io.Discard,
			render.WithTheme(render.DefaultTheme(lipgloss.NewRenderer(io.Discard))),
			render.WithIDs(),
		),
	}

	s.mcp = server.NewMCPServer(
		"lazytree",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("tree_view",
		mcp.WithDescription("Show the visible part of the tree. Each line is one node: "+
			"indentation is depth, ▾ expanded, ▸ collapsed, • leaf, followed by the label and #id."),
	), s.treeView)

	s.mcp.AddTool(mcp.NewTool("expand",
		mcp.WithDescription("Expand a node, loading its children on first use."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Node id")),
	), s.expand)

	s.mcp.AddTool(mcp.NewTool("collapse",
		mcp.WithDescription("Collapse a node. Its children stay loaded."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Node id")),
	), s.collapse)

	s.mcp.AddTool(mcp.NewTool("expand_all",
		mcp.WithDescription("Expand every node whose children are already loaded. Does not fetch."),
	), s.expandAll)

	s.mcp.AddTool(mcp.NewTool("collapse_all",
		mcp.WithDescription("Collapse every node."),
	), s.collapseAll)

	s.mcp.AddTool(mcp.NewTool("filter",
		mcp.WithDescription("Show only nodes whose label matches key. An empty key restores the full tree."),
		mcp.WithString("key", mcp.Description("Filter key")),
	), s.filter)

	s.mcp.AddTool(mcp.NewTool("reload",
		mcp.WithDescription("Reload the top-level nodes from the store."),
	), s.reload)

	s.mcp.AddTool(mcp.NewTool("create",
		mcp.WithDescription("Create a node."),
		mcp.WithString("label", mcp.Required(), mcp.Description("Node label")),
		mcp.WithNumber("parent", mcp.Description("Parent node id; omit or 0 for a top-level node")),
	), s.create)

	s.mcp.AddTool(mcp.NewTool("update",
		mcp.WithDescription("Relabel and/or move a node. Omitted fields keep their current value."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Node id")),
		mcp.WithString("label", mcp.Description("New label")),
		mcp.WithNumber("parent", mcp.Description("New parent id; 0 moves the node to the top level")),
	), s.update)

	s.mcp.AddTool(mcp.NewTool("delete",
		mcp.WithDescription("Delete a node and its whole subtree."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Node id")),
	), s.delete)

	s.mcp.AddTool(mcp.NewTool("valid_parents",
		mcp.WithDescription("List the nodes a node may be moved under."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Node id")),
	), s.validParents)

	s.mcp.AddResource(
		mcp.NewResource(TreeResourceURI, "Tree",
			mcp.WithResourceDescription("The visible part of the tree, one node per line."),
			mcp.WithMIMEType("text/plain"),
		),
		s.readTreeResource,
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

func (s *Server) frameResult() *mcp.CallToolResult {
	return mcp.NewToolResultText(s.text.Render(s.view.Frame()))
}

func requireID(req mcp.CallToolRequest, key string) (tree.NodeID, error) {
	id, err := req.RequireInt(key)
	if err != nil {
		return tree.NoID, err
	}
	if id <= 0 {
		return tree.NoID, fmt.Errorf("%s must be a positive node id", key)
	}
	return tree.NodeID(id), nil
}

func (s *Server) treeView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.frameResult(), nil
}

func (s *Server) expand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.view.Expand(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.frameResult(), nil
}

func (s *Server) collapse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.view.Collapse(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.frameResult(), nil
}

func (s *Server) expandAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.view.ExpandAll()
	return s.frameResult(), nil
}

func (s *Server) collapseAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.view.CollapseAll()
	return s.frameResult(), nil
}

func (s *Server) filter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.view.Filter(ctx, req.GetString("key", ""))
	return s.frameResult(), nil
}

func (s *Server) reload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.view.Reload(ctx)
	return s.frameResult(), nil
}

func (s *Server) create(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	label, err := req.RequireString("label")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parent := tree.NodeID(req.GetInt("parent", 0))
	if err := s.view.Create(ctx, parent, label); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.frameResult(), nil
}

func (s *Server) update(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parent := tree.KeepParent
	if _, ok := req.GetArguments()["parent"]; ok {
		parent = tree.NodeID(req.GetInt("parent", 0))
	}
	if err := s.view.Update(ctx, id, req.GetString("label", ""), parent); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.frameResult(), nil
}

func (s *Server) delete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.view.Delete(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.frameResult(), nil
}

func (s *Server) validParents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parents, err := s.view.ValidParents(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(parents) == 0 {
		return mcp.NewToolResultText("no valid parents"), nil
	}
	lines := make([]string, len(parents))
	for i, p := range parents {
		lines[i] = fmt.Sprintf("%s #%d", p.Label, p.ID)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readTreeResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      TreeResourceURI,
			MIMEType: "text/plain",
			Text:     s.text.Render(s.view.Frame()),
		},
	}, nil
}
