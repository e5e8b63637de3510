package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pagegenie/internal/config"
	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/internal/pipeline"
	"github.com/Aman-CERP/pagegenie/internal/store"
	"github.com/Aman-CERP/pagegenie/internal/ui"
)

const homePage = `<html><body>
<h1>Lamp Shop</h1>
<p>We sell desk lamps and floor lamps.</p>
<p>Orders ship within two days.</p>
</body></html>`

// newProject creates a project directory with one page and no
// credentials, so the static embedder is selected.
func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("COHERE_API_KEY", "")
	t.Setenv("PAGEGENIE_WATCH", "false")

	pages := filepath.Join(dir, "pages")
	require.NoError(t, os.MkdirAll(pages, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(pages, "home.html"), []byte(homePage), 0644))
	return dir
}

func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append([]string{"--config", dir}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestIngest_StoresPagesAsCurrent(t *testing.T) {
	// Given: a project with one page
	dir := newProject(t)

	// When: ingesting
	out, err := runCLI(t, dir, "ingest", "--no-tui", "--no-color")

	// Then: the page is stored and indexed
	require.NoError(t, err)
	assert.Contains(t, out, "Complete: 1 pages")
	assert.Contains(t, out, "Embedder: static")

	list, err := runCLI(t, dir, "versions")
	require.NoError(t, err)
	assert.Equal(t, "home\n", list)

	content, err := runCLI(t, dir, "versions", "show", "home")
	require.NoError(t, err)
	assert.Equal(t, homePage, content)
}

func TestVersions_RestoreArchivesCurrent(t *testing.T) {
	// Given: a page ingested, edited on disk and ingested again
	dir := newProject(t)
	_, err := runCLI(t, dir, "ingest", "--no-tui")
	require.NoError(t, err)
	edited := strings.Replace(homePage, "Lamp Shop", "Welcome", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pages", "home.html"), []byte(edited), 0644))
	_, err = runCLI(t, dir, "ingest", "--no-tui")
	require.NoError(t, err)

	history, err := runCLI(t, dir, "versions", "home", "--json")
	require.NoError(t, err)
	var listed struct {
		Slug     string              `json:"slug"`
		Versions []store.VersionInfo `json:"versions"`
	}
	require.NoError(t, json.Unmarshal([]byte(history), &listed))
	require.Len(t, listed.Versions, 2)
	archived := listed.Versions[1].Label

	// When: restoring the archived version
	out, err := runCLI(t, dir, "versions", "restore", "home", archived)

	// Then: the original content is current again
	require.NoError(t, err)
	assert.Contains(t, out, "Restored "+archived+" of home as current")

	content, err := runCLI(t, dir, "versions", "show", "home")
	require.NoError(t, err)
	assert.Equal(t, homePage, content)

	onDisk, err := os.ReadFile(filepath.Join(dir, "pages", "home.html"))
	require.NoError(t, err)
	assert.Equal(t, homePage, string(onDisk))
}

func TestVersions_Errors(t *testing.T) {
	dir := newProject(t)
	_, err := runCLI(t, dir, "ingest", "--no-tui")
	require.NoError(t, err)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"invalid slug", []string{"versions", "../etc"}, perrors.ErrCodeInvalidSlug},
		{"unknown page", []string{"versions", "missing"}, perrors.ErrCodeVersionNotFound},
		{"unknown label", []string{"versions", "show", "home", "v9"}, perrors.ErrCodeVersionNotFound},
		{"restore current", []string{"versions", "restore", "home", "current"}, perrors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, dir, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, perrors.GetCode(err))
		})
	}
}

func TestAsk_WithoutKeyFailsAndRecordsRun(t *testing.T) {
	// Given: an ingested project and no OpenAI key
	dir := newProject(t)
	t.Setenv("PAGEGENIE_VECTOR_INDEX", "exact")
	_, err := runCLI(t, dir, "ingest", "--no-tui")
	require.NoError(t, err)

	// When: asking a question
	out, err := runCLI(t, dir, "ask", "--json", "What", "do", "we", "sell?")

	// Then: the stream ends with an error event and the run is recorded
	require.Error(t, err)
	var se *silentError
	assert.ErrorAs(t, err, &se)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Contains(t, lines[0], `"event":"started"`)
	assert.Contains(t, lines[len(lines)-1], `"event":"error"`)

	runs, err := runCLI(t, dir, "runs", "--json")
	require.NoError(t, err)
	var records []store.RunRecord
	require.NoError(t, json.Unmarshal([]byte(runs), &records))
	require.Len(t, records, 1)
	assert.Equal(t, store.RunFailed, records[0].Status)
	assert.Equal(t, "What do we sell?", records[0].Question)
	assert.NotEmpty(t, records[0].ChunkRefs)

	detail, err := runCLI(t, dir, "runs", records[0].ID)
	require.NoError(t, err)
	assert.Contains(t, detail, "Status:    failed")
	assert.Contains(t, detail, "home#")
}

func TestAsk_ImageUsesPlaceholder(t *testing.T) {
	// Given: an ingested project and no OpenAI key
	dir := newProject(t)
	t.Setenv("PAGEGENIE_VECTOR_INDEX", "exact")
	_, err := runCLI(t, dir, "ingest", "--no-tui")
	require.NoError(t, err)

	// When: asking for an image
	out, err := runCLI(t, dir, "ask", "--no-color", "image: a brass desk lamp")

	// Then: a placeholder asset is written and linked
	require.NoError(t, err)
	assert.Contains(t, out, "Image generated: /pages/assets/img-")
	assets, err := os.ReadDir(filepath.Join(dir, "pages", "assets"))
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}

func TestRuns_Empty(t *testing.T) {
	dir := newProject(t)

	out, err := runCLI(t, dir, "runs")
	require.NoError(t, err)
	assert.Equal(t, "No runs recorded.\n", out)

	out, err = runCLI(t, dir, "runs", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
}

func TestRuns_InvalidLimitAndUnknownID(t *testing.T) {
	dir := newProject(t)

	_, err := runCLI(t, dir, "runs", "--limit", "0")
	assert.Equal(t, perrors.ErrCodeInvalidInput, perrors.GetCode(err))

	_, err = runCLI(t, dir, "runs", "no-such-run")
	assert.Equal(t, perrors.ErrCodeInvalidInput, perrors.GetCode(err))
}

func TestStatus_JSON(t *testing.T) {
	// Given: an ingested project
	dir := newProject(t)
	_, err := runCLI(t, dir, "ingest", "--no-tui")
	require.NoError(t, err)

	// When: requesting status as JSON
	out, err := runCLI(t, dir, "status", "--json")

	// Then: pages, index selection and capabilities are reported
	require.NoError(t, err)
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.Len(t, info.Pages, 1)
	assert.Equal(t, "home", info.Pages[0].Slug)
	assert.Equal(t, 1, info.Pages[0].Versions)
	assert.Positive(t, info.Pages[0].Chunks)
	assert.Equal(t, info.Pages[0].Chunks, info.TotalChunks)
	assert.Equal(t, "static", info.EmbedderModel)
	assert.Equal(t, "hnsw", info.VectorIndex)
	assert.Equal(t, "sqlite", info.LexicalBackend)
	assert.Equal(t, "none", info.Reranker)
	assert.Equal(t, "unavailable", info.Generator)
	assert.False(t, info.SignatureStale)
	assert.Positive(t, info.DatabaseSize)
}

func TestStatus_NoStore(t *testing.T) {
	dir := newProject(t)

	_, err := runCLI(t, dir, "status")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "pagegenie ingest")
}

func TestIngest_SecondProcessIsLocked(t *testing.T) {
	// Given: a process holding the data directory lock
	dir := newProject(t)
	lock := store.NewDataLock(filepath.Join(dir, ".pagegenie"))
	require.NoError(t, lock.TryLock())
	defer func() { _ = lock.Unlock() }()

	// When: ingesting
	_, err := runCLI(t, dir, "ingest", "--no-tui")

	// Then: the store is reported as locked
	assert.Equal(t, perrors.ErrCodeStoreLocked, perrors.GetCode(err))
}

func TestConfigInit_BacksUpOnForce(t *testing.T) {
	dir := newProject(t)

	out, err := runCLI(t, dir, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote ")
	path := filepath.Join(dir, ".pagegenie.yaml")
	require.FileExists(t, path)

	out, err = runCLI(t, dir, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	_, err = runCLI(t, dir, "config", "init", "--force")
	require.NoError(t, err)
	backups, err := config.ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	shown, err := runCLI(t, dir, "config", "show", "--json")
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(shown), &cfg))
	assert.Equal(t, filepath.Join(dir, "pages"), cfg.Paths.PagesDir)
	assert.Equal(t, "sqlite", cfg.Retrieval.LexicalBackend)
}

func TestStageTimes_SkipsMissingStages(t *testing.T) {
	embed, generate := 1.5, 20.0

	got := stageTimes(store.StageTimings{EmbedMS: &embed, GenerateMS: &generate})

	assert.Equal(t, []ui.StageTime{{Name: "embed", MS: 1.5}, {Name: "generate", MS: 20}}, got)
	assert.Empty(t, stageTimes(store.StageTimings{}))
}

func TestPrinterSink_RendersEvents(t *testing.T) {
	buf := new(bytes.Buffer)
	sink := printerSink(ui.NewAskPrinter(buf, true))
	ms := 3.0

	sink(pipeline.Event{Name: pipeline.EventStarted, Data: pipeline.StartedPayload{}})
	sink(pipeline.Event{Name: pipeline.EventPhase, Data: pipeline.PhasePayload{Name: "retrieving"}})
	sink(pipeline.Event{Name: pipeline.EventRetrieved, Data: pipeline.RetrievedPayload{NumChunks: 4}})
	sink(pipeline.Event{Name: pipeline.EventDone, Data: pipeline.DonePayload{
		Answer: "Lamps.", RetrievalMethod: "hybrid", RunID: "r1",
		Timings: store.StageTimings{RetrieveMS: &ms},
	}})

	out := buf.String()
	assert.Contains(t, out, "retrieving")
	assert.Contains(t, out, "4 chunks")
	assert.Contains(t, out, "Lamps.")
	assert.Contains(t, out, "hybrid · retrieve 3ms")
	assert.Contains(t, out, "run r1")
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b", oneLine("a\n  b", 10))
	assert.Equal(t, "abcd…", oneLine("abcdefgh", 5))
}
