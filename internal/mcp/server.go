package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/internal/ingest"
	"github.com/Aman-CERP/pagegenie/internal/pipeline"
	"github.com/Aman-CERP/pagegenie/internal/search"
	"github.com/Aman-CERP/pagegenie/internal/store"
	"github.com/Aman-CERP/pagegenie/pkg/version"
)

const (
	serverName = "pagegenie"

	defaultSearchLimit = search.DefaultTopN
	maxSearchLimit     = 50
	defaultRunsLimit   = 20
	maxRunsLimit       = 200
)

// Asker runs one chat request. *pipeline.Pipeline implements it.
type Asker interface {
	Run(ctx context.Context, req pipeline.Request, sink pipeline.Sink) (*store.RunRecord, error)
}

// VersionReader reads page history. *versions.Manager implements it.
type VersionReader interface {
	History(ctx context.Context, slug string) ([]store.VersionInfo, error)
	Get(ctx context.Context, slug, label string) (string, error)
	Slugs(ctx context.Context) ([]string, error)
}

// RunLister lists finalized runs. *store.DB implements it.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]store.RunRecord, error)
}

// Dependencies contains the injected dependencies for a Server.
type Dependencies struct {
	Asker     Asker
	Embedder  pipeline.QueryEmbedder
	Retriever pipeline.Retriever
	Versions  VersionReader
	Runs      RunLister
}

// Server is the MCP server for pagegenie. It exposes the chat pipeline,
// hybrid search and page history as tools.
type Server struct {
	mcp    *mcp.Server
	deps   Dependencies
	logger *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "ask",
		Description: "Run a request through retrieval and generation. With page_slug, a full HTML answer replaces the page and the previous version is archived.",
	},
	{
		Name:        "search",
		Description: "Hybrid search over page chunks. Returns fused keyword and semantic results with the ranks each ranker gave them.",
	},
	{
		Name:        "list_versions",
		Description: "List a page's versions: current first, then archived versions newest first.",
	},
	{
		Name:        "list_runs",
		Description: "List recent chat runs with status, stage timings and retrieved chunks.",
	},
}

// NewServer creates a new MCP server. All dependencies are required.
func NewServer(deps Dependencies) (*Server, error) {
	switch {
	case deps.Asker == nil:
		return nil, errors.New("asker is required")
	case deps.Embedder == nil || deps.Retriever == nil:
		return nil, errors.New("embedder and retriever are required")
	case deps.Versions == nil:
		return nil, errors.New("version reader is required")
	case deps.Runs == nil:
		return nil, errors.New("run lister is required")
	}

	s := &Server{deps: deps, logger: slog.Default()}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: serverName, Version: version.Version},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return serverName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpAskHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpListVersionsHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[3].Name, Description: tools[3].Description}, s.mcpListRunsHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

// Ask runs input through the pipeline and returns the done payload.
func (s *Server) Ask(ctx context.Context, input AskInput) (AskOutput, error) {
	requestID := generateRequestID()
	start := time.Now()
	s.logger.Info("mcp_ask_started",
		slog.String("request_id", requestID),
		slog.String("page_slug", input.PageSlug))

	var done *pipeline.DonePayload
	_, err := s.deps.Asker.Run(ctx, pipeline.Request{
		Message:         input.Message,
		PageSlug:        input.PageSlug,
		RetrievalMethod: input.RetrievalMethod,
		SelectedHTML:    input.SelectedHTML,
		SystemContext:   input.SystemContext,
	}, func(ev pipeline.Event) {
		if payload, ok := ev.Data.(pipeline.DonePayload); ok {
			done = &payload
		}
	})
	if err != nil {
		s.logger.Warn("mcp_ask_failed",
			append([]any{slog.String("request_id", requestID)}, perrors.LogAttrs(err)...)...)
		return AskOutput{}, MapError(err)
	}
	if done == nil {
		return AskOutput{}, MapError(perrors.InternalError("run finished without a result", nil))
	}

	s.logger.Info("mcp_ask_completed",
		slog.String("request_id", requestID),
		slog.String("run_id", done.RunID),
		slog.Bool("saved", done.Saved),
		slog.Duration("duration", time.Since(start)))
	return AskOutput{
		Answer:          done.Answer,
		Saved:           done.Saved,
		RetrievalMethod: done.RetrievalMethod,
		Version:         done.Version,
		Warning:         done.Warning,
		RunID:           done.RunID,
		Timings:         toTimingsOutput(done.Timings),
	}, nil
}

// Search embeds the query and returns hydrated fused results.
func (s *Server) Search(ctx context.Context, input SearchInput) (SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return SearchOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	if input.Slug != "" && !ingest.ValidSlug(input.Slug) {
		return SearchOutput{}, NewInvalidParamsError(fmt.Sprintf("invalid page slug %q", input.Slug))
	}
	method := input.Method
	if method == "" {
		method = search.MethodHybrid
	}
	limit := clampLimit(input.Limit, defaultSearchLimit, 1, maxSearchLimit)

	requestID := generateRequestID()
	start := time.Now()

	vector, err := s.deps.Embedder.Embed(ctx, query)
	if err != nil {
		return SearchOutput{}, MapError(perrors.UpstreamError(perrors.ErrCodeEmbeddingFailed, "failed to embed query", err))
	}
	res, err := s.deps.Retriever.Retrieve(ctx, search.Request{
		Query:  query,
		Vector: vector,
		Method: method,
		Slug:   input.Slug,
		TopN:   limit,
	})
	if err != nil {
		return SearchOutput{}, MapError(err)
	}
	chunks, err := s.deps.Retriever.Hydrate(ctx, res.Fused)
	if err != nil {
		return SearchOutput{}, MapError(err)
	}

	byID := make(map[int64]store.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(chunks))}
	for _, r := range res.Fused {
		if c, ok := byID[r.Ref.ID]; ok {
			out.Results = append(out.Results, ToSearchResultOutput(r, c))
		}
	}

	s.logger.Info("mcp_search_completed",
		slog.String("request_id", requestID),
		slog.String("method", method),
		slog.Int("result_count", len(out.Results)),
		slog.Duration("duration", time.Since(start)))
	return out, nil
}

// ListVersions returns the history of one page.
func (s *Server) ListVersions(ctx context.Context, input ListVersionsInput) (ListVersionsOutput, error) {
	if !ingest.ValidSlug(input.Slug) {
		return ListVersionsOutput{}, NewInvalidParamsError(fmt.Sprintf("invalid page slug %q", input.Slug))
	}
	infos, err := s.deps.Versions.History(ctx, input.Slug)
	if err != nil {
		return ListVersionsOutput{}, MapError(err)
	}
	out := ListVersionsOutput{Slug: input.Slug, Versions: make([]VersionOutput, len(infos))}
	for i, v := range infos {
		out.Versions[i] = VersionOutput{
			Label:     v.Label,
			Size:      v.Size,
			CreatedAt: v.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return out, nil
}

// ListRuns returns the most recent runs.
func (s *Server) ListRuns(ctx context.Context, input ListRunsInput) (ListRunsOutput, error) {
	limit := clampLimit(input.Limit, defaultRunsLimit, 1, maxRunsLimit)
	runs, err := s.deps.Runs.ListRuns(ctx, limit)
	if err != nil {
		return ListRunsOutput{}, MapError(err)
	}
	out := ListRunsOutput{Runs: make([]RunOutput, len(runs))}
	for i, r := range runs {
		out.Runs[i] = ToRunOutput(r)
	}
	return out, nil
}

func (s *Server) mcpAskHandler(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (
	*mcp.CallToolResult,
	AskOutput,
	error,
) {
	out, err := s.Ask(ctx, input)
	if err != nil {
		return nil, AskOutput{}, err
	}
	return textResult(FormatAnswer(out)), out, nil
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	out, err := s.Search(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return textResult(FormatSearchResults(input.Query, out.Results)), out, nil
}

func (s *Server) mcpListVersionsHandler(ctx context.Context, _ *mcp.CallToolRequest, input ListVersionsInput) (
	*mcp.CallToolResult,
	ListVersionsOutput,
	error,
) {
	out, err := s.ListVersions(ctx, input)
	if err != nil {
		return nil, ListVersionsOutput{}, err
	}
	return textResult(FormatVersions(out)), out, nil
}

func (s *Server) mcpListRunsHandler(ctx context.Context, _ *mcp.CallToolRequest, input ListRunsInput) (
	*mcp.CallToolResult,
	ListRunsOutput,
	error,
) {
	out, err := s.ListRuns(ctx, input)
	if err != nil {
		return nil, ListRunsOutput{}, err
	}
	return textResult(FormatRuns(out.Runs)), out, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// Serve runs the server on stdio until ctx is cancelled or the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_started", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_failed", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
