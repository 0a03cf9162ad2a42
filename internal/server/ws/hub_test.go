package ws

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
)

type fakeBus struct {
	ch chan []byte
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return b.ch, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestHubForwardsBusMessagesToClients(t *testing.T) {
	bus := &fakeBus{ch: make(chan []byte)}
	hub := NewHub(bus, []string{"snapshots"}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = hub.Run(ctx)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Registration happens after the upgrade completes, so keep feeding the
	// bus until the broadcast reaches the client.
	payload := []byte(`{"instrument":"BTC-USD"}`)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case bus.ch <- payload:
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	assert.Equal(t, payload, data)

	cancel()
	<-runDone
}

func TestHubShutdownDoesNotBlockLateConnections(t *testing.T) {
	bus := &fakeBus{ch: make(chan []byte)}
	hub := NewHub(bus, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = hub.Run(ctx)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// A connection arriving after shutdown must be closed promptly instead
	// of leaving its handler goroutine stuck on the register channel.
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "connection should be closed by the stopped hub")
}
