package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/internal/pipeline"
)

// sseWriter frames events on a text/event-stream response. The pipeline
// sink and the keep-alive ticker write concurrently.
type sseWriter struct {
	mu  sync.Mutex
	w   io.Writer
	rc  *http.ResponseController
	err error
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

// event writes one "event: name\ndata: json" frame and flushes it.
func (s *sseWriter) event(name string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Error("sse_marshal_failed", slog.String("event", name), slog.String("error", err.Error()))
		return
	}
	s.write(fmt.Sprintf("event: %s\ndata: %s\n\n", name, payload))
}

// comment writes an SSE comment line that clients ignore.
func (s *sseWriter) comment(text string) {
	s.write(": " + text + "\n\n")
}

func (s *sseWriter) write(frame string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	if _, err := io.WriteString(s.w, frame); err != nil {
		s.err = err
		return
	}
	if err := s.rc.Flush(); err != nil {
		s.err = err
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, perrors.New(perrors.ErrCodeInvalidInput, "request body must be a JSON chat message", err))
		return
	}

	stream := newSSEWriter(w)
	ctx := r.Context()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.cfg.SSEKeepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				stream.comment("keep-alive")
			}
		}
	}()

	rec, err := s.deps.Chat.Run(ctx, req, func(ev pipeline.Event) {
		stream.event(ev.Name, ev.Data)
	})
	close(done)
	wg.Wait()

	if err != nil {
		slog.Debug("chat_request_failed", perrors.LogAttrs(err)...)
		return
	}
	if rec != nil {
		slog.Debug("chat_request_complete", slog.String("run_id", rec.ID))
	}
}
