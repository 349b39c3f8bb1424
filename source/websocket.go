package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/logstream/errors"
)

// WebSocketConfig holds configuration for a websocket source.
type WebSocketConfig struct {
	// URL of the websocket endpoint (ws:// or wss://).
	URL string
	// Header is sent with the handshake request (auth tokens etc).
	Header http.Header
	// HandshakeTimeout bounds the dial. Defaults to 45s.
	HandshakeTimeout time.Duration
	// Logger for connection lifecycle events. Defaults to slog.Default.
	Logger *slog.Logger
}

// WebSocket streams text messages from a websocket endpoint, treating
// each message as one or more log lines. Useful for devices that expose
// their log over a network bridge instead of a local subprocess.
type WebSocket struct {
	cfg WebSocketConfig
}

// NewWebSocket creates a websocket source.
func NewWebSocket(cfg WebSocketConfig) *WebSocket {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 45 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "websocket-source")
	}
	return &WebSocket{cfg: cfg}
}

// Name identifies the source by its URL.
func (s *WebSocket) Name() string {
	return fmt.Sprintf("websocket(%s)", s.cfg.URL)
}

// Open dials the endpoint and returns a reader over its messages.
func (s *WebSocket) Open(ctx context.Context) (io.ReadCloser, error) {
	if s.cfg.URL == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("empty websocket URL"), "WebSocket", "Open", "config validation")
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: s.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, s.cfg.Header)
	if err != nil {
		return nil, errors.WrapTransient(err, "WebSocket", "Open", "dial")
	}
	s.cfg.Logger.Debug("Connected to websocket", "url", s.cfg.URL)

	return &wsReader{conn: conn}, nil
}

// wsReader adapts the message-oriented connection to io.Reader,
// inserting a newline after messages that lack one so each message is
// at least one line.
type wsReader struct {
	conn *websocket.Conn
	buf  []byte
	once sync.Once
}

func (r *wsReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}
		r.buf = data
		if len(r.buf) > 0 && r.buf[len(r.buf)-1] != '\n' {
			r.buf = append(r.buf, '\n')
		}
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// Close sends a best-effort close frame and tears down the connection,
// unblocking any in-flight Read.
func (r *wsReader) Close() error {
	r.once.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = r.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = r.conn.Close()
	})
	return nil
}
