package server

import (
	"io"
	"net/http"
	"regexp"
	"strconv"

	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/internal/ingest"
	"github.com/Aman-CERP/pagegenie/internal/store"
)

// ReloadSnippet connects a served page to /ws and reloads it on the
// reload token.
const ReloadSnippet = `<script>(function(){try{var proto=location.protocol==='https:'?'wss':'ws';` +
	`var ws=new WebSocket(proto+'://'+location.host+'/ws');` +
	`ws.onmessage=function(e){if(e.data==='reload'){location.reload();}}}catch(e){}})();</script>`

// bodyCloseRe matches </body> in any case. Offsets index the original
// content, unlike a search over a lowercased copy.
var bodyCloseRe = regexp.MustCompile(`(?i)</body\s*>`)

// InjectReload inserts ReloadSnippet before the last </body>, or appends
// it when the document has none.
func InjectReload(content string) string {
	matches := bodyCloseRe.FindAllStringIndex(content, -1)
	if len(matches) == 0 {
		return content + "\n" + ReloadSnippet
	}
	i := matches[len(matches)-1][0]
	return content[:i] + ReloadSnippet + "\n" + content[i:]
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("id")
	if !ingest.ValidSlug(slug) {
		writeError(w, perrors.New(perrors.ErrCodeInvalidSlug, "id must be a page slug", nil))
		return
	}
	content, err := s.deps.Versions.Get(r.Context(), slug, store.CurrentLabel)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.WriteString(w, InjectReload(content))
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if !ingest.ValidSlug(slug) {
		writeError(w, perrors.New(perrors.ErrCodeInvalidSlug, "invalid page slug", nil))
		return
	}
	labels, err := s.deps.Versions.List(r.Context(), slug)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slug": slug, "versions": labels})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	slug, label := r.PathValue("slug"), r.PathValue("label")
	if !ingest.ValidSlug(slug) {
		writeError(w, perrors.New(perrors.ErrCodeInvalidSlug, "invalid page slug", nil))
		return
	}
	content, err := s.deps.Versions.Get(r.Context(), slug, label)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, content)
}

func (s *Server) handlePages(w http.ResponseWriter, r *http.Request) {
	slugs, err := s.deps.Versions.Slugs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if slugs == nil {
		slugs = []string{}
	}
	writeJSON(w, http.StatusOK, slugs)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, perrors.New(perrors.ErrCodeInvalidInput, "limit must be a positive integer", err))
			return
		}
		limit = min(n, MaxRunsLimit)
	}
	runs, err := s.deps.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}
