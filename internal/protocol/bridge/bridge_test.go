package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parnexcodes/pairlink/internal/logging"
	"github.com/parnexcodes/pairlink/internal/protocol"
)

func TestMain(m *testing.M) {
	logging.Init(logging.Options{Level: "error", Output: os.Stderr})
	os.Exit(m.Run())
}

type fakeGateway struct {
	mu       sync.Mutex
	opened   []openRequest
	codes    []string
	messages []messageRequest
	deleted  bool
	events   []wireEvent
	failPoll bool
}

func (g *fakeGateway) push(ev wireEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ev.Seq = uint64(len(g.events) + 1)
	g.events = append(g.events, ev)
}

func (g *fakeGateway) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		var req openRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		g.mu.Lock()
		g.opened = append(g.opened, req)
		g.mu.Unlock()
		_ = json.NewEncoder(w).Encode(openResponse{Registered: len(req.Credentials) > 0})
	})

	mux.HandleFunc("POST /sessions/{id}/pairing-code", func(w http.ResponseWriter, r *http.Request) {
		var req pairingCodeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Phone == "0" {
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(errorResponse{Message: "rate-overlimit"})
			return
		}
		g.mu.Lock()
		g.codes = append(g.codes, req.Phone)
		g.mu.Unlock()
		_ = json.NewEncoder(w).Encode(pairingCodeResponse{Code: "ABCD1234"})
	})

	mux.HandleFunc("POST /sessions/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		var req messageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		g.mu.Lock()
		g.messages = append(g.messages, req)
		g.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /sessions/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseUint(r.URL.Query().Get("after"), 10, 64)

		g.mu.Lock()
		fail := g.failPoll
		var out []wireEvent
		for _, ev := range g.events {
			if ev.Seq > after {
				out = append(out, ev)
			}
		}
		g.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if len(out) == 0 {
			time.Sleep(10 * time.Millisecond)
		}
		_ = json.NewEncoder(w).Encode(eventsResponse{Events: out})
	})

	mux.HandleFunc("DELETE /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.deleted = true
		g.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func next(t *testing.T, events <-chan protocol.Event) protocol.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return protocol.Event{}
	}
}

func TestClient_FullSession(t *testing.T) {
	gw := &fakeGateway{}
	server := httptest.NewServer(gw.handler(t))
	defer server.Close()

	dialer := NewDialer(Config{GatewayURL: server.URL + "/", PollWait: 50 * time.Millisecond, Timeout: time.Second})
	client, err := dialer.Dial(protocol.AuthState{SessionID: "4930123456"}, protocol.Options{
		Browser:        "Chrome (Windows)",
		ConnectTimeout: time.Minute,
	})
	require.NoError(t, err)

	events, unsubscribe := client.Subscribe()
	defer unsubscribe()

	require.NoError(t, client.Open(context.Background()))
	assert.False(t, client.Registered())

	gw.mu.Lock()
	require.Len(t, gw.opened, 1)
	assert.Equal(t, "4930123456", gw.opened[0].SessionID)
	assert.Equal(t, "Chrome (Windows)", gw.opened[0].Browser)
	assert.Equal(t, int64(60000), gw.opened[0].ConnectTimeoutMS)
	assert.False(t, gw.opened[0].MarkOnline)
	gw.mu.Unlock()

	code, err := client.RequestPairingCode(context.Background(), "4930123456")
	require.NoError(t, err)
	assert.Equal(t, "ABCD1234", code)

	gw.push(wireEvent{Type: "creds.update", Credentials: []byte(`{"registered":true}`)})
	gw.push(wireEvent{Type: "connection.update", Connection: "open", UserID: "4930123456:3@s.whatsapp.net"})

	ev := next(t, events)
	assert.Equal(t, protocol.EventCredentials, ev.Type)
	assert.Equal(t, `{"registered":true}`, string(ev.Credentials))

	ev = next(t, events)
	assert.Equal(t, protocol.EventConnection, ev.Type)
	assert.Equal(t, protocol.ConnectionOpen, ev.Connection)
	assert.Equal(t, uint64(2), ev.Seq)
	assert.Equal(t, "4930123456:3@s.whatsapp.net", client.UserID())
	assert.True(t, client.Registered())

	require.NoError(t, client.SendMessage(context.Background(), "4930123456@s.whatsapp.net", "hello"))
	gw.mu.Lock()
	assert.Equal(t, []messageRequest{{To: "4930123456@s.whatsapp.net", Text: "hello"}}, gw.messages)
	gw.mu.Unlock()

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	gw.mu.Lock()
	assert.True(t, gw.deleted)
	gw.mu.Unlock()

	// nothing is delivered after Close
	gw.push(wireEvent{Type: "connection.update", Connection: "close", StatusCode: 428})
	select {
	case ev := <-events:
		t.Fatalf("unexpected event after close: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClient_CloseEventCarriesReason(t *testing.T) {
	gw := &fakeGateway{}
	server := httptest.NewServer(gw.handler(t))
	defer server.Close()

	client, err := NewDialer(Config{GatewayURL: server.URL, PollWait: 50 * time.Millisecond}).
		Dial(protocol.AuthState{SessionID: "s1", Credentials: []byte("{}")}, protocol.Options{})
	require.NoError(t, err)
	defer client.Close()

	events, unsubscribe := client.Subscribe()
	defer unsubscribe()

	gw.push(wireEvent{Type: "connection.update", Connection: "close", StatusCode: 401, Reason: "logged out"})

	require.NoError(t, client.Open(context.Background()))
	assert.True(t, client.Registered())

	ev := next(t, events)
	require.NotNil(t, ev.LastDisconnect)
	assert.Equal(t, 401, ev.LastDisconnect.Code)
	assert.True(t, protocol.IsTerminal(ev.LastDisconnect))
}

func TestClient_PollFailuresReportConnectionLost(t *testing.T) {
	gw := &fakeGateway{failPoll: true}
	server := httptest.NewServer(gw.handler(t))
	defer server.Close()

	client, err := NewDialer(Config{
		GatewayURL:      server.URL,
		PollWait:        50 * time.Millisecond,
		MaxPollFailures: 2,
		PollRetryDelay:  time.Millisecond,
	}).Dial(protocol.AuthState{SessionID: "s1"}, protocol.Options{})
	require.NoError(t, err)
	defer client.Close()

	events, unsubscribe := client.Subscribe()
	defer unsubscribe()
	require.NoError(t, client.Open(context.Background()))

	ev := next(t, events)
	assert.Equal(t, protocol.ConnectionClose, ev.Connection)
	require.NotNil(t, ev.LastDisconnect)
	assert.Equal(t, protocol.CodeTimedOut, ev.LastDisconnect.Code)
	assert.Equal(t, protocol.CloseTransient, ev.LastDisconnect.Kind())
}

func TestClient_GatewayError(t *testing.T) {
	gw := &fakeGateway{}
	server := httptest.NewServer(gw.handler(t))
	defer server.Close()

	client, err := NewDialer(Config{GatewayURL: server.URL, PollWait: 50 * time.Millisecond}).
		Dial(protocol.AuthState{SessionID: "s1"}, protocol.Options{})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Open(context.Background()))

	_, err = client.RequestPairingCode(context.Background(), "0")
	require.Error(t, err)

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusTooManyRequests, gwErr.Status)
	assert.Equal(t, "rate-overlimit", gwErr.Message)
}

func TestDial_Validation(t *testing.T) {
	_, err := NewDialer(Config{}).Dial(protocol.AuthState{SessionID: "s1"}, protocol.Options{})
	assert.Error(t, err)

	_, err = NewDialer(Config{GatewayURL: "http://127.0.0.1:1"}).Dial(protocol.AuthState{}, protocol.Options{})
	assert.Error(t, err)
}

func TestOpen_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := NewDialer(Config{GatewayURL: url, Timeout: time.Second}).Dial(protocol.AuthState{SessionID: "s1"}, protocol.Options{})
	require.NoError(t, err)
	assert.Error(t, client.Open(context.Background()))
	assert.NoError(t, client.Close())
}
