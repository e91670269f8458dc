// Package mcpserver lets MCP-capable assistants read analyses. It registers
// read-only tools on an MCP server reachable over streamable HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/ispitch/internal/store"
	"github.com/MrWong99/ispitch/pkg/analysis"
)

const maxPageSize = 50

// GetAnalysisInput selects one analysis.
type GetAnalysisInput struct {
	ID     string `json:"id" jsonschema:"analysis id returned by the upload endpoint"`
	UserID string `json:"user_id,omitempty" jsonschema:"when set, the analysis must belong to this user"`
}

// ListAnalysesInput pages through a user's analyses, newest first.
type ListAnalysesInput struct {
	UserID   string `json:"user_id" jsonschema:"owner of the analyses"`
	Page     int    `json:"page,omitempty" jsonschema:"1-based page number, default 1"`
	PageSize int    `json:"page_size,omitempty" jsonschema:"results per page between 1 and 50, default 10"`
}

// StatsInput selects the aggregation window.
type StatsInput struct {
	UserID string `json:"user_id" jsonschema:"owner of the analyses"`
	Range  string `json:"range,omitempty" jsonschema:"one of day, month, year or all (default)"`
}

// New returns an MCP server exposing the get_analysis, list_analyses and
// analysis_stats tools backed by st.
func New(st store.Store, version string) *mcpsdk.Server {
	if version == "" {
		version = "dev"
	}
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "ispitch", Version: version}, nil)
	t := &tools{store: st}

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "get_analysis",
		Description: "Fetch one speech analysis with its transcription, filler words, pauses, speech rate and score.",
	}, t.getAnalysis)
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "list_analyses",
		Description: "List a user's analyses, newest first, with summary metrics and pagination metadata.",
	}, t.listAnalyses)
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "analysis_stats",
		Description: "Aggregate a user's completed analyses over a time range: totals and a chart series.",
	}, t.stats)
	return srv
}

// Handler serves srv over streamable HTTP.
func Handler(srv *mcpsdk.Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return srv }, nil)
}

type tools struct {
	store store.Store
}

func (t *tools) getAnalysis(ctx context.Context, _ *mcpsdk.CallToolRequest, in GetAnalysisInput) (*mcpsdk.CallToolResult, any, error) {
	if in.ID == "" {
		return nil, nil, errors.New("id is required")
	}
	a, err := t.store.FindByID(ctx, in.ID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && in.UserID != "" && a.UserID != in.UserID) {
		return nil, nil, fmt.Errorf("analysis %s not found", in.ID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load analysis: %w", err)
	}
	return jsonResult(a)
}

func (t *tools) listAnalyses(ctx context.Context, _ *mcpsdk.CallToolRequest, in ListAnalysesInput) (*mcpsdk.CallToolResult, any, error) {
	if in.UserID == "" {
		return nil, nil, errors.New("user_id is required")
	}
	page, size := in.Page, in.PageSize
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = 10
	}
	if page < 1 || size < 1 || size > maxPageSize {
		return nil, nil, fmt.Errorf("page must be positive and page_size between 1 and %d", maxPageSize)
	}

	items, total, err := t.store.ListByUser(ctx, in.UserID, page, size)
	if err != nil {
		return nil, nil, fmt.Errorf("list analyses: %w", err)
	}
	if items == nil {
		items = []analysis.Summary{}
	}
	return jsonResult(struct {
		Analyses []analysis.Summary `json:"analyses"`
		Metadata analysis.Page      `json:"metadata"`
	}{items, analysis.NewPage(page, size, total)})
}

func (t *tools) stats(ctx context.Context, _ *mcpsdk.CallToolRequest, in StatsInput) (*mcpsdk.CallToolResult, any, error) {
	if in.UserID == "" {
		return nil, nil, errors.New("user_id is required")
	}
	r, err := analysis.ParseTimeRange(in.Range)
	if err != nil {
		return nil, nil, err
	}
	st, err := t.store.Stats(ctx, in.UserID, r)
	if err != nil {
		return nil, nil, fmt.Errorf("compute stats: %w", err)
	}
	return jsonResult(st)
}

func jsonResult(v any) (*mcpsdk.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, nil, nil
}
