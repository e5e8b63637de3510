package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

// wsViewer is a live-reload client on a websocket.
type wsViewer struct {
	conn *websocket.Conn
}

// Send writes msg as a text frame.
func (v *wsViewer) Send(ctx context.Context, msg string) error {
	return v.conn.Write(ctx, websocket.MessageText, []byte(msg))
}

// Close ends the connection with a normal closure.
func (v *wsViewer) Close() error {
	return v.conn.Close(websocket.StatusNormalClosure, "")
}

// handleWebsocket registers the client for reload notifications and holds
// the connection until the client goes away or the viewer is dropped.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		slog.Debug("ws_accept_failed", slog.String("error", err.Error()))
		return
	}

	viewer := &wsViewer{conn: conn}
	unregister := s.deps.Viewers.Register(viewer)
	defer unregister()

	// Viewers never send; CloseRead handles control frames and ends ctx
	// once the connection is gone.
	ctx := conn.CloseRead(r.Context())
	<-ctx.Done()
	_ = conn.Close(websocket.StatusNormalClosure, "")
}
