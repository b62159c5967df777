// Package wsapi exposes listening sessions over WebSocket with JSON messages.
package wsapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"speech-recognition-bridge/internal/models"
	"speech-recognition-bridge/internal/observability/logging"
	"speech-recognition-bridge/internal/recognition"
	"speech-recognition-bridge/internal/service/listen"
)

const (
	// Path is the route of the listen endpoint.
	Path = "/v1/listen"

	// Transport names WebSocket connections in logs and session IDs.
	Transport = "ws"

	writeTimeout = 10 * time.Second
)

// Handler upgrades requests and runs one listening connection each.
type Handler struct {
	runner   *listen.Runner
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHandler creates a handler serving connections with runner.
func NewHandler(runner *listen.Runner) *Handler {
	return &Handler{
		runner: runner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: logging.WithComponent("ws"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sc := &socketConn{conn: conn}
	code, reason := websocket.CloseNormalClosure, ""
	if err := h.runner.Serve(r.Context(), Transport, sc); err != nil {
		code, reason = websocket.CloseInternalServerErr, err.Error()
	}
	sc.close(code, reason)
}

// socketConn adapts a WebSocket connection to listen.Conn.
type socketConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *socketConn) Recv() (models.ClientMessage, error) {
	var msg models.ClientMessage
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err,
			websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
			websocket.CloseNoStatusReceived,
		) {
			return msg, io.EOF
		}
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", listen.ErrMalformedMessage, err)
	}
	return msg, nil
}

func (c *socketConn) Send(n models.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(n); err != nil {
		if isGone(err) {
			return fmt.Errorf("%w: %v", recognition.ErrListenerGone, err)
		}
		return err
	}
	return nil
}

func (c *socketConn) close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, truncate(reason, 120))
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// isGone reports whether a write failed because the peer went away.
func isGone(err error) bool {
	if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// truncate keeps close reasons within the control frame limit.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
