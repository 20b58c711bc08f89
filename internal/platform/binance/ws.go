package binance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

const (
	// writeWait is the time allowed to write a control frame to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed between two frames from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second
)

// WSDialer opens depth streams on "<baseURL>/<symbol><suffix>", for example
// "wss://stream.binance.us:9443/ws/btcusdt@depth@100ms".
type WSDialer struct {
	baseURL string
	suffix  string
	logger  *slog.Logger
}

// NewWSDialer creates a dialer. suffix defaults to "@depth@100ms".
func NewWSDialer(baseURL, suffix string, logger *slog.Logger) *WSDialer {
	if suffix == "" {
		suffix = "@depth@100ms"
	}
	return &WSDialer{
		baseURL: strings.TrimRight(baseURL, "/"),
		suffix:  suffix,
		logger:  logger.With(slog.String("component", "binance_ws")),
	}
}

// StreamURL returns the endpoint used for symbol.
func (d *WSDialer) StreamURL(symbol string) string {
	return d.baseURL + "/" + strings.ToLower(symbol) + d.suffix
}

// Dial performs the TLS and WebSocket handshakes and starts the keep-alive
// loop. A failed handshake is reported as domain.ErrProtocol.
func (d *WSDialer) Dial(ctx context.Context, symbol string) (domain.DiffStream, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		Proxy:            websocket.DefaultDialer.Proxy,
	}

	url := d.StreamURL(symbol)
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("binance/ws: %w: handshake %s: %v", domain.ErrProtocol, url, err)
	}

	s := &DepthStream{
		conn:   conn,
		done:   make(chan struct{}),
		logger: d.logger.With(slog.String("symbol", symbol)),
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	go s.pingLoop()
	return s, nil
}

// DepthStream is one open depth-stream connection.
type DepthStream struct {
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// Next reads frames until one decodes into a depth diff.
func (s *DepthStream) Next() (domain.DepthDiff, error) {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return domain.DepthDiff{}, fmt.Errorf("binance/ws: %w", domain.ErrWSDisconnect)
			default:
			}
			return domain.DepthDiff{}, fmt.Errorf("binance/ws: %w: read: %v", domain.ErrProtocol, err)
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		diff, ok, err := DecodeDepthEvent(message)
		if err != nil {
			return domain.DepthDiff{}, fmt.Errorf("binance/ws: %w", err)
		}
		if !ok {
			s.logger.Debug("skipping non-depth frame", slog.Int("len", len(message)))
			continue
		}
		return diff, nil
	}
}

// Close sends a close frame and tears down the connection. It is safe to call
// more than once.
func (s *DepthStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		err = s.conn.Close()
	})
	return err
}

func (s *DepthStream) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.logger.Debug("ping failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

var _ domain.StreamDialer = (*WSDialer)(nil)
