package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTelegramSenderPostsSendMessage(t *testing.T) {
	var gotPath string
	var gotBody telegramMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewTelegramSender("bot-token", "12345")
	sender.apiBase = srv.URL

	require.NoError(t, sender.Send(context.Background(), "Feed disconnected", "reconnecting"))

	assert.Equal(t, "/botbot-token/sendMessage", gotPath)
	assert.Equal(t, "12345", gotBody.ChatID)
	assert.Equal(t, "*Feed disconnected*\nreconnecting", gotBody.Text)
	assert.Equal(t, "Markdown", gotBody.ParseMode)
}

func TestDiscordSenderPostsWebhook(t *testing.T) {
	var gotBody discordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)

	require.NoError(t, sender.Send(context.Background(), "Feed errored", "backing off"))
	assert.Equal(t, "**Feed errored**\nbacking off", gotBody.Content)
}

func TestSenderReportsNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusUnauthorized)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)

	err := sender.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "bad webhook")
}

type recordingSender struct {
	name  string
	calls int
	fail  error
}

func (s *recordingSender) Send(ctx context.Context, title, message string) error {
	s.calls++
	return s.fail
}

func (s *recordingSender) Name() string { return s.name }

func TestNotifyFiltersEvents(t *testing.T) {
	sender := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{sender}, []string{EventFeedDisconnected}, testLogger())

	require.NoError(t, n.Notify(context.Background(), EventFeedConnected, "t", "m"))
	assert.Equal(t, 0, sender.calls)

	require.NoError(t, n.Notify(context.Background(), EventFeedDisconnected, "t", "m"))
	assert.Equal(t, 1, sender.calls)
}

func TestNotifyEmptyFilterAllowsEverything(t *testing.T) {
	sender := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), EventTrackedChanged, "t", "m"))
	assert.Equal(t, 1, sender.calls)
}

func TestNotifyOneFailingSenderDoesNotStopOthers(t *testing.T) {
	failing := &recordingSender{name: "bad", fail: assert.AnError}
	healthy := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{failing, healthy}, nil, testLogger())

	err := n.Notify(context.Background(), EventFeedErrored, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, 1, healthy.calls)
}
