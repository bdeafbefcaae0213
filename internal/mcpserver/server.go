// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes zone classification tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/yardmove/internal/apperr"
	"github.com/starford/yardmove/internal/classify"
	"github.com/starford/yardmove/internal/models"
)

const guideURI = "yardmove://classification-guide"

// Server wraps the MCP server with zone classification tools.
type Server struct {
	mcp  *server.MCPServer
	sess *classify.Session
}

// New creates a new MCP server with all tools registered.
func New(sess *classify.Session, version string) *Server {
	s := &Server{sess: sess}

	s.mcp = server.NewMCPServer(
		"Yard Move",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_zones",
		mcp.WithDescription("List every zone split into the plain and Yard Move lists. "+
			"Loads the zones on first use."),
	), s.listZones)

	s.mcp.AddTool(mcp.NewTool("search_zones",
		mcp.WithDescription("Filter one list by a case-insensitive substring of zone name or id."),
		mcp.WithString("list", mcp.Required(), mcp.Description("plain or tagged")),
		mcp.WithString("query", mcp.Description("Search term; empty returns the whole list")),
	), s.searchZones)

	s.mcp.AddTool(mcp.NewTool("reclassify_zone",
		mcp.WithDescription("Move a zone into the plain or Yard Move list by changing its zone types "+
			"in the fleet database. See the get_classification_guide tool for result meanings."),
		mcp.WithString("zone_id", mcp.Required(), mcp.Description("Zone id")),
		mcp.WithString("list", mcp.Required(), mcp.Description("Target list: plain or tagged")),
	), s.reclassifyZone)

	s.mcp.AddTool(mcp.NewTool("reload_zones",
		mcp.WithDescription("Resolve the Yard Move zone type again and reload every zone."),
	), s.reloadZones)

	s.mcp.AddTool(mcp.NewTool("get_category",
		mcp.WithDescription("Return the Yard Move zone type record, creating it when missing."),
	), s.getCategory)

	s.mcp.AddTool(mcp.NewTool("get_classification_guide",
		mcp.WithDescription("Returns the list semantics and reclassify results."),
	), s.getGuide)

	s.mcp.AddResource(
		mcp.NewResource(guideURI, "Classification Guide",
			mcp.WithResourceDescription("Zone lists and reclassification results."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuideResource,
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

type zoneRow struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type listResult struct {
	CategoryID string    `json:"categoryId"`
	Plain      []zoneRow `json:"plain"`
	Tagged     []zoneRow `json:"tagged"`
}

type reclassifyResult struct {
	Result  string `json:"result"`
	ZoneID  string `json:"zoneId"`
	List    string `json:"list,omitempty"`
	Message string `json:"message,omitempty"`
}

func rows(zs []models.Zone) []zoneRow {
	out := make([]zoneRow, len(zs))
	for i, z := range zs {
		out[i] = zoneRow{ID: z.ID, Name: z.Name}
	}
	return out
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", apperr.Kind(err), err))
}

func (s *Server) ensureLoaded(ctx context.Context) error {
	if s.sess.Snapshot().Loaded {
		return nil
	}
	_, err := s.sess.LoadAll(ctx)
	return err
}

func (s *Server) listZones(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return errorResult(err), nil
	}
	st := s.sess.Snapshot()
	return jsonResult(listResult{CategoryID: st.CategoryID, Plain: rows(st.Plain), Tagged: rows(st.Tagged)}), nil
}

func (s *Server) searchZones(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := req.RequireString("list")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := models.ParseListKind(list)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return errorResult(err), nil
	}
	query := ""
	if q, err := req.RequireString("query"); err == nil {
		query = q
	}
	return jsonResult(rows(s.sess.Search(kind, query))), nil
}

func (s *Server) reclassifyZone(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("zone_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	list, err := req.RequireString("list")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := models.ParseListKind(list)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return errorResult(err), nil
	}

	_, before, known := s.sess.Zone(id)
	err = s.sess.Reclassify(ctx, id, target)
	switch {
	case errors.Is(err, apperr.ErrAlreadyClassified):
		return jsonResult(reclassifyResult{
			Result:  apperr.Kind(err),
			ZoneID:  id,
			List:    before.String(),
			Message: err.Error(),
		}), nil
	case err != nil:
		return errorResult(err), nil
	}

	result := "moved"
	if known && before == target {
		result = "unchanged"
	}
	return jsonResult(reclassifyResult{Result: result, ZoneID: id, List: target.String()}), nil
}

func (s *Server) reloadZones(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.sess.Reload(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("loaded %d plain and %d Yard Move zones",
		len(st.Plain), len(st.Tagged))), nil
}

func (s *Server) getCategory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.sess.ResolveCategoryID(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(models.CategoryRecord{ID: id, Name: s.sess.CategoryName()}), nil
}

func (s *Server) getGuide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ClassificationGuide), nil
}

func (s *Server) readGuideResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      guideURI,
			MIMEType: "text/markdown",
			Text:     ClassificationGuide,
		},
	}, nil
}
