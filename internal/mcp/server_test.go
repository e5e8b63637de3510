package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/internal/pipeline"
	"github.com/Aman-CERP/pagegenie/internal/search"
	"github.com/Aman-CERP/pagegenie/internal/store"
)

type mockAsker struct {
	got  pipeline.Request
	done *pipeline.DonePayload
	err  error
}

func (m *mockAsker) Run(_ context.Context, req pipeline.Request, sink pipeline.Sink) (*store.RunRecord, error) {
	m.got = req
	sink(pipeline.Event{Name: pipeline.EventStarted, Data: pipeline.StartedPayload{}})
	if m.err != nil {
		return &store.RunRecord{Status: store.RunFailed}, m.err
	}
	if m.done != nil {
		sink(pipeline.Event{Name: pipeline.EventDone, Data: *m.done})
	}
	return &store.RunRecord{Status: store.RunDone}, nil
}

type mockEmbedder struct{ err error }

func (m mockEmbedder) Embed(context.Context, string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []float32{1, 0}, nil
}

type mockRetriever struct {
	got    search.Request
	fused  []search.FusedResult
	chunks []store.Chunk
	err    error
}

func (m *mockRetriever) Retrieve(_ context.Context, req search.Request) (*search.Result, error) {
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	return &search.Result{Fused: m.fused}, nil
}

func (m *mockRetriever) Hydrate(context.Context, []search.FusedResult) ([]store.Chunk, error) {
	return m.chunks, nil
}

type mockVersions struct {
	history map[string][]store.VersionInfo
	content map[string]string
}

func (m *mockVersions) History(_ context.Context, slug string) ([]store.VersionInfo, error) {
	h, ok := m.history[slug]
	if !ok {
		return nil, perrors.New(perrors.ErrCodeVersionNotFound, "no page", store.ErrNotFound)
	}
	return h, nil
}

func (m *mockVersions) Get(_ context.Context, slug, label string) (string, error) {
	c, ok := m.content[slug+"/"+label]
	if !ok {
		return "", perrors.New(perrors.ErrCodeVersionNotFound, "no version", store.ErrNotFound)
	}
	return c, nil
}

func (m *mockVersions) Slugs(context.Context) ([]string, error) {
	return []string{"home"}, nil
}

type mockRuns struct {
	limit int
	runs  []store.RunRecord
	err   error
}

func (m *mockRuns) ListRuns(_ context.Context, limit int) ([]store.RunRecord, error) {
	m.limit = limit
	return m.runs, m.err
}

type harness struct {
	server    *Server
	asker     *mockAsker
	retriever *mockRetriever
	versions  *mockVersions
	runs      *mockRuns
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := &harness{
		asker:     &mockAsker{},
		retriever: &mockRetriever{},
		versions: &mockVersions{
			history: map[string][]store.VersionInfo{
				"home": {
					{Label: "current", Size: 42, CreatedAt: created},
					{Label: "v1", Number: 1, Size: 2048, CreatedAt: created.Add(-time.Hour)},
				},
			},
			content: map[string]string{"home/current": "<html>home</html>"},
		},
		runs: &mockRuns{},
	}
	srv, err := NewServer(Dependencies{
		Asker:     h.asker,
		Embedder:  mockEmbedder{},
		Retriever: h.retriever,
		Versions:  h.versions,
		Runs:      h.runs,
	})
	require.NoError(t, err)
	h.server = srv
	return h
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(Dependencies{})
	assert.Error(t, err)

	_, err = NewServer(Dependencies{Asker: &mockAsker{}})
	assert.Error(t, err)
}

func TestServer_InfoAndTools(t *testing.T) {
	h := newHarness(t)

	name, ver := h.server.Info()
	assert.Equal(t, "pagegenie", name)
	assert.NotEmpty(t, ver)

	var names []string
	for _, tool := range h.server.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{"ask", "search", "list_versions", "list_runs"}, names)
	assert.NotNil(t, h.server.MCPServer())
}

func TestAsk_ReturnsDonePayload(t *testing.T) {
	// Given a pipeline that saves a new version
	h := newHarness(t)
	embed := 3.0
	h.asker.done = &pipeline.DonePayload{
		Answer:          "<html>new</html>",
		Saved:           true,
		RetrievalMethod: "hybrid",
		Version:         "v4",
		RunID:           "run-9",
		Timings:         store.StageTimings{EmbedMS: &embed},
	}

	// When asking
	out, err := h.server.Ask(context.Background(), AskInput{
		Message:  "change the title",
		PageSlug: "home",
	})

	// Then the request reaches the pipeline and the done payload is returned
	require.NoError(t, err)
	assert.Equal(t, "change the title", h.asker.got.Message)
	assert.Equal(t, "home", h.asker.got.PageSlug)
	assert.True(t, out.Saved)
	assert.Equal(t, "v4", out.Version)
	assert.Equal(t, "run-9", out.RunID)
	assert.Equal(t, 3.0, out.Timings.EmbedMS)
	assert.Zero(t, out.Timings.RerankMS)
}

func TestAsk_PipelineErrorMapped(t *testing.T) {
	h := newHarness(t)
	h.asker.err = perrors.New(perrors.ErrCodeQueryEmpty, "message is empty", nil)

	_, err := h.server.Ask(context.Background(), AskInput{})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, perrors.ErrCodeQueryEmpty)
}

func TestAsk_NoDoneEvent(t *testing.T) {
	h := newHarness(t)

	_, err := h.server.Ask(context.Background(), AskInput{Message: "hi"})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInternalError, mcpErr.Code)
}

func TestSearch_HydratesInFusedOrder(t *testing.T) {
	// Given two fused results whose chunks hydrate in a different order
	h := newHarness(t)
	h.retriever.fused = []search.FusedResult{
		{Ref: store.ChunkRef{ID: 2, Slug: "home", Index: 1}, Score: 0.03, LexicalRank: 1, VectorRank: 2},
		{Ref: store.ChunkRef{ID: 1, Slug: "home", Index: 0}, Score: 0.01, VectorRank: 1},
		{Ref: store.ChunkRef{ID: 3, Slug: "home", Index: 2}, Score: 0.005, LexicalRank: 3},
	}
	h.retriever.chunks = []store.Chunk{
		{ChunkRef: store.ChunkRef{ID: 1, Slug: "home", Index: 0}, Content: "intro"},
		{ChunkRef: store.ChunkRef{ID: 2, Slug: "home", Index: 1}, Content: "pricing", Path: "body>section:nth-of-type(2)"},
	}

	// When searching
	out, err := h.server.Search(context.Background(), SearchInput{Query: "  pricing  ", Slug: "home", Limit: 2})

	// Then results follow fused order and a replaced chunk is skipped
	require.NoError(t, err)
	assert.Equal(t, "pricing", h.retriever.got.Query)
	assert.Equal(t, search.MethodHybrid, h.retriever.got.Method)
	assert.Equal(t, "home", h.retriever.got.Slug)
	assert.Equal(t, 2, h.retriever.got.TopN)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "pricing", out.Results[0].Content)
	assert.True(t, out.Results[0].InBothLists)
	assert.Contains(t, out.Results[0].MatchReason, "both")
	assert.Equal(t, "intro", out.Results[1].Content)
	assert.Equal(t, 1, out.Results[1].VectorRank)
}

func TestSearch_Validation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name  string
		input SearchInput
	}{
		{"empty query", SearchInput{}},
		{"whitespace query", SearchInput{Query: "   "}},
		{"bad slug", SearchInput{Query: "x", Slug: "../etc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.server.Search(context.Background(), tt.input)
			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
		})
	}
}

func TestSearch_EmbeddingFailure(t *testing.T) {
	h := newHarness(t)
	h.server.deps.Embedder = mockEmbedder{err: errors.New("rate limited")}

	_, err := h.server.Search(context.Background(), SearchInput{Query: "x"})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeUpstreamFailed, mcpErr.Code)
}

func TestSearch_InvalidMethodFromEngine(t *testing.T) {
	h := newHarness(t)
	h.retriever.err = perrors.New(perrors.ErrCodeInvalidMethod, "bad method", nil)

	_, err := h.server.Search(context.Background(), SearchInput{Query: "x", Method: "bm25"})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	assert.Equal(t, "bm25", h.retriever.got.Method)
}

func TestListVersions(t *testing.T) {
	h := newHarness(t)

	out, err := h.server.ListVersions(context.Background(), ListVersionsInput{Slug: "home"})

	require.NoError(t, err)
	assert.Equal(t, "home", out.Slug)
	require.Len(t, out.Versions, 2)
	assert.Equal(t, "current", out.Versions[0].Label)
	assert.Equal(t, "2026-03-01T12:00:00Z", out.Versions[0].CreatedAt)
	assert.Equal(t, "v1", out.Versions[1].Label)
	assert.Contains(t, FormatVersions(out), "2.0 KB")
}

func TestListVersions_Errors(t *testing.T) {
	h := newHarness(t)

	_, err := h.server.ListVersions(context.Background(), ListVersionsInput{Slug: "missing"})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeVersionNotFound, mcpErr.Code)

	_, err = h.server.ListVersions(context.Background(), ListVersionsInput{})
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestListRuns(t *testing.T) {
	h := newHarness(t)
	ms := 12.5
	h.runs.runs = []store.RunRecord{{
		ID:              "r1",
		Question:        "change the title",
		RetrievalMethod: "vector",
		Status:          store.RunDone,
		ChunkRefs:       []store.ChunkRef{{ID: 4, Slug: "home", Index: 2}},
		Timings:         store.StageTimings{GenerateMS: &ms},
		CreatedAt:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}}

	out, err := h.server.ListRuns(context.Background(), ListRunsInput{Limit: 1000})

	require.NoError(t, err)
	assert.Equal(t, maxRunsLimit, h.runs.limit)
	require.Len(t, out.Runs, 1)
	assert.Equal(t, []string{"home#2"}, out.Runs[0].Chunks)
	assert.Equal(t, 12.5, out.Runs[0].Timings.GenerateMS)
	assert.Equal(t, "2026-03-01T00:00:00Z", out.Runs[0].CreatedAt)
}

func TestListRuns_DefaultLimit(t *testing.T) {
	h := newHarness(t)

	out, err := h.server.ListRuns(context.Background(), ListRunsInput{})

	require.NoError(t, err)
	assert.Equal(t, defaultRunsLimit, h.runs.limit)
	assert.Empty(t, out.Runs)
	assert.Equal(t, "No runs recorded yet.", FormatRuns(out.Runs))
}

func TestReadPage(t *testing.T) {
	h := newHarness(t)

	res, err := h.server.ReadPage(context.Background(), PageURI("home"))
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, "<html>home</html>", res.Contents[0].Text)
	assert.Equal(t, "text/html", res.Contents[0].MIMEType)

	_, err = h.server.ReadPage(context.Background(), "file:///etc/passwd")
	assert.Error(t, err)

	_, err = h.server.ReadPage(context.Background(), PageURI("gone"))
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeVersionNotFound, mcpErr.Code)
}

func TestRegisterResources(t *testing.T) {
	h := newHarness(t)
	assert.NoError(t, h.server.RegisterResources(context.Background()))
}

func TestServer_ClientRoundTrip(t *testing.T) {
	// Given a client connected over in-memory transports
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := h.server.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	// When calling list_versions
	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "list_versions",
		Arguments: map[string]any{"slug": "home"},
	})

	// Then the markdown rendering comes back as text content
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(text.Text, "## Versions of home"))
}
