package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/keepmind9/relaybot/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubHook imitates the relay's hook server
type stubHook struct {
	mu     sync.Mutex
	bodies []string
	except []string
}

func (s *stubHook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/broadcast":
		data, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.bodies = append(s.bodies, string(data))
		s.except = append(s.except, r.URL.Query().Get("except"))
		s.mu.Unlock()
		if r.URL.Query().Get("except") == "zz" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "unknown connection: zz"})
			return
		}
		json.NewEncoder(w).Encode(core.BroadcastResult{Delivered: 2})
	case "/status":
		json.NewEncoder(w).Encode(core.Status{
			Nick:   "relaybot",
			Uptime: "1m0s",
			Connections: []core.ConnectionStatus{
				{ID: "lan", Nick: "relaybot", State: "connected", Users: []string{"alice"}, Pending: 1},
				{ID: "dc", Nick: "relaybot", State: "reconnecting", Users: []string{}},
			},
			Plugins:   []string{"relay"},
			Available: []string{"control", "greet", "relay", "seen"},
		})
	default:
		w.WriteHeader(http.StatusTeapot)
	}
}

func newStubServer(t *testing.T) (*stubHook, *httptest.Server) {
	t.Helper()
	stub := &stubHook{}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return stub, srv
}

func serverHostPort(t *testing.T, srv *httptest.Server) (string, int) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), port
}

func TestHookClient_Broadcast(t *testing.T) {
	stub, srv := newStubServer(t)
	client := NewHookClient(srv.URL)

	result, err := client.Broadcast(context.Background(), "hi all", "")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Delivered)

	_, err = client.Broadcast(context.Background(), "hi", "a b")
	require.NoError(t, err)

	_, err = client.Broadcast(context.Background(), "hi", "zz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "unknown connection: zz")

	assert.Equal(t, []string{"hi all", "hi", "hi"}, stub.bodies)
	assert.Equal(t, []string{"", "a b", "zz"}, stub.except)
}

func TestHookClient_Status(t *testing.T) {
	_, srv := newStubServer(t)
	status, err := NewHookClient(srv.URL).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "relaybot", status.Nick)
	require.Len(t, status.Connections, 2)
	assert.Equal(t, "reconnecting", status.Connections[1].State)
}

func TestHookClient_Unreachable(t *testing.T) {
	_, srv := newStubServer(t)
	base := srv.URL
	srv.Close()

	_, err := NewHookClient(base).Status(context.Background())
	assert.Error(t, err)
}

func TestSayCommand(t *testing.T) {
	stub, srv := newStubServer(t)
	host, port := serverHostPort(t, srv)
	defer func() { sayExcept, sayHost, sayPort = "", "127.0.0.1", 8080 }()

	out, err := execute(t, "say", "--host", host, "--port", strconv.Itoa(port), "--except", "lan", "deploy", "done")
	require.NoError(t, err)
	assert.Contains(t, out, "queued on 2 connection(s)")

	sayExcept = ""
	rootCmd.SetIn(strings.NewReader("from stdin\n"))
	defer rootCmd.SetIn(nil)
	_, err = execute(t, "say", "--host", host, "--port", strconv.Itoa(port))
	require.NoError(t, err)

	assert.Equal(t, []string{"deploy done", "from stdin"}, stub.bodies)
	assert.Equal(t, []string{"lan", ""}, stub.except)

	rootCmd.SetIn(strings.NewReader("   "))
	_, err = execute(t, "say", "--host", host, "--port", strconv.Itoa(port))
	assert.Error(t, err)
}

func TestStatusCommand(t *testing.T) {
	_, srv := newStubServer(t)
	host, port := serverHostPort(t, srv)
	defer func() { statusHost, statusPort, statusJSON = "127.0.0.1", 8080, false }()

	out, err := execute(t, "status", "--host", host, "--port", strconv.Itoa(port))
	require.NoError(t, err)
	assert.Contains(t, out, "lan [connected] as relaybot, 1 pending, users: alice")
	assert.Contains(t, out, "dc [reconnecting] as relaybot, 0 pending, users: nobody")
	assert.Contains(t, out, "Plugins: relay")

	out, err = execute(t, "status", "--host", host, "--port", strconv.Itoa(port), "--json")
	require.NoError(t, err)
	var status core.Status
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, []string{"relay"}, status.Plugins)
}
