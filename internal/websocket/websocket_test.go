package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"langworker/internal/engine"
	apierrors "langworker/internal/errors"
	"langworker/internal/guard"
	"langworker/internal/services"
	api "langworker/pkg/contracts/api/v1"
	"langworker/pkg/contracts/events"
)

type stubChecker struct {
	err error
}

func (s *stubChecker) Check(_ context.Context, req api.CheckRequest) (*api.CheckResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &api.CheckResponse{
		Text:     req.Text,
		Language: "en",
		Kind:     "speller",
		Results:  []api.WordResult{{Word: req.Text, IsCorrect: req.Text == "hello"}},
	}, nil
}

func (s *stubChecker) Language() string  { return "en" }
func (s *stubChecker) Kind() engine.Kind { return engine.KindSpeller }

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type reply struct {
	ID      string             `json:"id"`
	Type    events.MessageType `json:"type"`
	TraceID string             `json:"trace_id"`
	Data    json.RawMessage    `json:"data"`
}

func newTestHub(t *testing.T, checker Checker, origins []string) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil, nil)
	hub.Start()
	t.Cleanup(func() { _ = hub.Stop(context.Background()) })

	eh := apierrors.NewErrorHandler(slogDiscard(), false, time.Second)
	srv := httptest.NewServer(NewHandler(hub, checker, eh, origins, 4096, slogDiscard()))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readReply(t *testing.T, conn *websocket.Conn) reply {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var r reply
	require.NoError(t, conn.ReadJSON(&r))
	return r
}

func TestSessionChecksFrames(t *testing.T) {
	hub, srv := newTestHub(t, &stubChecker{}, nil)
	conn := dial(t, srv)

	hello := readReply(t, conn)
	assert.Equal(t, events.MessageTypeConnected, hello.Type)
	var connected events.ConnectedData
	require.NoError(t, json.Unmarshal(hello.Data, &connected))
	assert.Equal(t, "en", connected.Language)
	assert.NotEmpty(t, connected.SessionID)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("helo")))
	r := readReply(t, conn)
	assert.Equal(t, events.MessageTypeResult, r.Type)
	assert.NotEmpty(t, r.TraceID)
	var resp api.CheckResponse
	require.NoError(t, json.Unmarshal(r.Data, &resp))
	assert.Equal(t, "helo", resp.Text)

	require.NoError(t, conn.WriteJSON(events.ClientMessage{ID: "42", Type: events.MessageTypeCheck, Text: "hello"}))
	r = readReply(t, conn)
	assert.Equal(t, "42", r.ID)
	require.NoError(t, json.Unmarshal(r.Data, &resp))
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].IsCorrect)
}

func TestSessionReportsProblems(t *testing.T) {
	tests := []struct {
		name     string
		checker  *stubChecker
		frame    string
		wantCode string
	}{
		{name: "malformed json", checker: &stubChecker{}, frame: `{"text":`, wantCode: "BAD_PAYLOAD"},
		{name: "missing text", checker: &stubChecker{}, frame: `{"id":"1"}`, wantCode: "BAD_PAYLOAD"},
		{name: "unknown type", checker: &stubChecker{}, frame: `{"type":"subscribe","text":"x"}`, wantCode: "BAD_PAYLOAD"},
		{name: "overloaded", checker: &stubChecker{err: engine.NewAnalysisError(engine.Overloaded, errors.New("busy"))}, frame: "text", wantCode: "OVERLOADED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := newTestHub(t, tt.checker, nil)
			conn := dial(t, srv)
			readReply(t, conn)

			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)))
			r := readReply(t, conn)
			assert.Equal(t, events.MessageTypeError, r.Type)

			var problem map[string]any
			require.NoError(t, json.Unmarshal(r.Data, &problem))
			assert.Equal(t, tt.wantCode, problem["error_code"])
			assert.Equal(t, "/ws", problem["instance"])
			assert.Equal(t, r.TraceID, problem["trace_id"])
		})
	}
}

func TestOriginCheck(t *testing.T) {
	_, srv := newTestHub(t, &stubChecker{}, []string{"https://allowed.example"})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	header := http.Header{"Origin": {"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://allowed.example")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestUpgradeFailureIsProblem(t *testing.T) {
	_, srv := newTestHub(t, &stubChecker{}, nil)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, apierrors.ErrWebSocketUpgrade.ErrorCode, body["error_code"])
	assert.NotEmpty(t, body["details"])
}

type gatedAnalyzer struct {
	release chan struct{}
	calls   atomic.Int32
}

func (a *gatedAnalyzer) Analyze(_ context.Context, req engine.Request) (engine.Result, error) {
	a.calls.Add(1)
	<-a.release
	return engine.Result{Kind: engine.KindSpeller, Text: req.Text}, nil
}

func TestSessionCloseReleasesQueuedCheck(t *testing.T) {
	analyzer := &gatedAnalyzer{release: make(chan struct{})}
	g := guard.New(analyzer, guard.Config{MaxInFlight: 1, QueueTimeout: 30 * time.Second, CallTimeout: 30 * time.Second})
	checker := services.NewCheckService(g, "en", engine.KindSpeller, 10, slogDiscard())
	_, srv := newTestHub(t, checker, nil)

	// Hold the only slot so the session's check has to queue.
	held := make(chan error, 1)
	go func() {
		_, err := g.Analyze(context.Background(), engine.Request{Text: "busy"})
		held <- err
	}()
	require.Eventually(t, func() bool { return g.Stats().InFlight == 1 }, time.Second, time.Millisecond)

	conn := dial(t, srv)
	assert.Equal(t, events.MessageTypeConnected, readReply(t, conn).Type)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("helo")))
	require.Eventually(t, func() bool { return g.Stats().Queued == 1 }, time.Second, time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return g.Stats().Queued == 0 }, time.Second, time.Millisecond,
		"queued check is released when the peer goes away")

	close(analyzer.release)
	require.NoError(t, <-held)
	assert.Never(t, func() bool { return analyzer.calls.Load() > 1 }, 100*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, uint64(1), g.Stats().Admitted)
}

func TestHubStopClosesSessions(t *testing.T) {
	hub, srv := newTestHub(t, &stubChecker{}, nil)
	conn := dial(t, srv)
	readReply(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, hub.Stop(ctx))
	assert.Zero(t, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	assert.False(t, hub.Register(&Client{}), "stopped hub refuses new sessions")
}

func TestDecodeFrame(t *testing.T) {
	msg, err := decodeFrame([]byte("  plain text "))
	require.NoError(t, err)
	assert.Equal(t, "  plain text ", msg.Text)

	msg, err = decodeFrame([]byte(`{"id":"7","text":"hi","max_suggestions":3}`))
	require.NoError(t, err)
	assert.Equal(t, "7", msg.ID)
	assert.Equal(t, 3, msg.MaxSuggestions)

	_, err = decodeFrame([]byte("   "))
	var reqErr *apierrors.RequestError
	assert.ErrorAs(t, err, &reqErr)
}
