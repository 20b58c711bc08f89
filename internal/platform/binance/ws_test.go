package binance

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSDialerStreamURL(t *testing.T) {
	d := NewWSDialer("wss://stream.binance.us:9443/ws/", "", testLogger())
	assert.Equal(t, "wss://stream.binance.us:9443/ws/btcusdt@depth@100ms", d.StreamURL("BTCUSDT"))
}

func TestDepthStreamNext(t *testing.T) {
	upgrader := websocket.Upgrader{}
	paths := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"e":"depthUpdate","E":1,"s":"BTCUSDT","U":5,"u":6,"b":[["10","1"]],"a":[]}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	d := NewWSDialer(wsURL(srv)+"/ws", "", testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := d.Dial(ctx, "BTCUSDT")
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, "/ws/btcusdt@depth@100ms", <-paths)

	diff, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(5), diff.FirstUpdateID)
	assert.Equal(t, int64(6), diff.FinalUpdateID)
	require.Len(t, diff.Bids, 1)

	_, err = stream.Next()
	assert.ErrorIs(t, err, domain.ErrProtocol)
}

func TestDepthStreamCloseUnblocksNext(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	stream, err := NewWSDialer(wsURL(srv), "", testLogger()).Dial(context.Background(), "ETHUSDT")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := stream.Next()
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, stream.Close())
	assert.NoError(t, stream.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, domain.ErrWSDisconnect)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after Close")
	}
}

func TestWSDialerHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewWSDialer(wsURL(srv), "", testLogger()).Dial(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrProtocol)
}
