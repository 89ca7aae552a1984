package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/comigor/toolhop/internal/agent"
	"github.com/comigor/toolhop/internal/config"
	"github.com/comigor/toolhop/internal/history"
)

type fakeAgent struct {
	mu      sync.Mutex
	turns   map[string][]string
	err     error
	listErr error
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{turns: make(map[string][]string)}
}

func (f *fakeAgent) Process(_ context.Context, id, input string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.turns[id] = append(f.turns[id], input)
	return "echo: " + input, nil
}

func (f *fakeAgent) History(_ context.Context, id string, limit int) ([]history.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	turns := f.turns[id]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	var out []history.Entry
	for i, in := range turns {
		out = append(out, history.Entry{SequenceID: int64(i + 1), ConversationID: id, Role: "user", Payload: in})
	}
	return out, nil
}

func (f *fakeAgent) Count(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.turns[id]), nil
}

func (f *fakeAgent) Reset(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.turns[id])
	delete(f.turns, id)
	return n, nil
}

func newTestServer(t *testing.T, a Agent) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(a, config.ServerConfig{Host: "127.0.0.1", Port: "0"}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRoot_PlainText(t *testing.T) {
	a := newFakeAgent()
	srv := newTestServer(t, a)

	resp, err := http.Post(srv.URL+"/", "text/plain", strings.NewReader("hello there"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "echo: hello there", string(body))
	require.Equal(t, []string{"hello there"}, a.turns[DefaultConversation])

	resp, err = http.Post(srv.URL+"/", "text/plain", strings.NewReader("   "))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConversationLifecycle(t *testing.T) {
	a := newFakeAgent()
	srv := newTestServer(t, a)

	resp, err := http.Post(srv.URL+"/conversations", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[map[string]string](t, resp)
	id := created["conversation_id"]
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	for _, msg := range []string{"first", "second", "third"} {
		resp, err = http.Post(srv.URL+"/conversations/"+id+"/messages", "application/json",
			strings.NewReader(`{"message":"`+msg+`"}`))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		out := decode[MessageResponse](t, resp)
		require.Equal(t, id, out.ConversationID)
		require.Equal(t, "echo: "+msg, out.Reply)
	}

	resp, err = http.Get(srv.URL + "/conversations/" + id + "/history?limit=2")
	require.NoError(t, err)
	hist := decode[HistoryResponse](t, resp)
	require.Len(t, hist.Entries, 2)
	require.Equal(t, "second", hist.Entries[0].Payload)

	resp, err = http.Get(srv.URL + "/conversations/" + id + "/count")
	require.NoError(t, err)
	count := decode[map[string]any](t, resp)
	require.EqualValues(t, 3, count["count"])

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/conversations/"+id, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	deleted := decode[map[string]any](t, resp)
	require.EqualValues(t, 3, deleted["deleted"])

	resp, err = http.Get(srv.URL + "/conversations/" + id + "/history")
	require.NoError(t, err)
	hist = decode[HistoryResponse](t, resp)
	require.NotNil(t, hist.Entries)
	require.Empty(t, hist.Entries)
}

func TestMessage_BadRequests(t *testing.T) {
	srv := newTestServer(t, newFakeAgent())

	resp, err := http.Post(srv.URL+"/conversations/x/messages", "application/json", strings.NewReader(`{"message":`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/conversations/x/messages", "application/json", strings.NewReader(`{"message":""}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/conversations/x/history?limit=-1")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorStatusMapping(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
	}{
		"endpoint":    {&agent.EndpointError{Hop: 1, Err: errors.New("boom")}, http.StatusBadGateway},
		"persistence": {&agent.PersistenceError{Op: "append", Err: history.ErrClosed}, http.StatusServiceUnavailable},
		"max hops":    {agent.ErrMaxHopsExceeded, http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			a := newFakeAgent()
			a.err = tc.err
			srv := newTestServer(t, a)

			resp, err := http.Post(srv.URL+"/conversations/c/messages", "application/json", strings.NewReader(`{"message":"hi"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
			body := decode[errorBody](t, resp)
			require.Equal(t, tc.err.Error(), body.Error)
		})
	}
}

func TestHistory_PersistenceError(t *testing.T) {
	a := newFakeAgent()
	a.listErr = &agent.PersistenceError{Op: "list", Err: history.ErrClosed}
	srv := newTestServer(t, a)

	resp, err := http.Get(srv.URL + "/conversations/c/history")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebsocket_TurnPerFrame(t *testing.T) {
	a := newFakeAgent()
	srv := newTestServer(t, a)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/conversations/ws-1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	var frame wsFrame
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "echo: ping", frame.Reply)
	require.Empty(t, frame.Error)

	a.mu.Lock()
	a.err = &agent.EndpointError{Hop: 1, Err: errors.New("down")}
	a.mu.Unlock()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("again")))
	frame = wsFrame{}
	require.NoError(t, conn.ReadJSON(&frame))
	require.Contains(t, frame.Error, "down")

	n, err := a.Count(context.Background(), "ws-1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
