package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starford/ansuz/internal/apperr"
)

// WSSettings configures the websocket transport.
type WSSettings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// DefaultWSSettings returns the timeouts used when none are configured.
func DefaultWSSettings() *WSSettings {
	return &WSSettings{
		HandshakeTimeout: 2 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// wsTransport carries JSON-framed kernel messages over a websocket. A single
// read loop delivers replies to the handler; writes are serialized by a
// mutex.
type wsTransport struct {
	conn     *websocket.Conn
	settings *WSSettings
	logger   *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// DialWS connects to wsURL and starts the read loop.
func DialWS(ctx context.Context, wsURL string, handler ReplyHandler, logger *slog.Logger, settings *WSSettings) (Transport, error) {
	if settings == nil {
		settings = DefaultWSSettings()
	}
	dialer := websocket.Dialer{HandshakeTimeout: settings.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("kernel: dial %s: %v: %w", wsURL, err, apperr.ErrTransportFailure)
	}
	t := &wsTransport{conn: conn, settings: settings, logger: logger}
	go t.readLoop(handler)
	return t, nil
}

func (t *wsTransport) readLoop(handler ReplyHandler) {
	for {
		var r Reply
		if err := t.conn.ReadJSON(&r); err != nil {
			t.logger.Debug("kernel transport closed", slog.String("error", err.Error()))
			return
		}
		handler(r)
	}
}

// Send writes one request frame.
func (t *wsTransport) Send(req Request) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.settings.WriteTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.settings.WriteTimeout))
	}
	if err := t.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("kernel: send %s: %v: %w", req.Type, err, apperr.ErrTransportFailure)
	}
	return nil
}

// Close tears the connection down. Safe to call more than once.
func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		_ = t.conn.Close()
	})
	return nil
}

// WSDialer returns a Dialer that connects to base's kernel endpoint for a
// notebook, e.g. ws://host:8080/kernels/<id>.
func WSDialer(base string, logger *slog.Logger, settings *WSSettings) Dialer {
	return func(ctx context.Context, notebookID string, handler ReplyHandler) (Transport, error) {
		wsURL := base + "/kernels/" + url.PathEscape(notebookID)
		return DialWS(ctx, wsURL, handler, logger, settings)
	}
}
