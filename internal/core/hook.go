package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/keepmind9/relaybot/internal/logger"
	"github.com/keepmind9/relaybot/internal/message"
	"github.com/keepmind9/relaybot/internal/plugin"
	"github.com/sirupsen/logrus"
)

// maxHookBody bounds the body of a broadcast request
const maxHookBody = 64 * 1024

// ConnectionStatus describes one connection in a status report
type ConnectionStatus struct {
	ID      string   `json:"id"`
	Nick    string   `json:"nick"`
	State   string   `json:"state"`
	Users   []string `json:"users"`
	Pending int      `json:"pending"`
}

// Status is the body of GET /status
type Status struct {
	Nick        string             `json:"nick"`
	Uptime      string             `json:"uptime"`
	Connections []ConnectionStatus `json:"connections"`
	Plugins     []string           `json:"plugins"`
	Available   []string           `json:"available"`
}

// BroadcastResult is the body of a successful POST /broadcast
type BroadcastResult struct {
	Delivered int `json:"delivered"`
}

// PluginsResult is the body of a successful POST /plugins
type PluginsResult struct {
	Plugins []string `json:"plugins"`
}

type errorBody struct {
	Error string `json:"error"`
}

// pendingCounter is implemented by connections that expose their queue length
type pendingCounter interface {
	Pending() int
}

// startHookServer binds the hook server and serves it in the background
func (e *Engine) startHookServer() error {
	addr := fmt.Sprintf("%s:%d", e.config.HookServer.Host, e.config.HookServer.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start hook server on %s: %w", addr, err)
	}

	e.hookServer = &http.Server{
		Addr:    addr,
		Handler: e.HookHandler(),
	}

	logger.WithField("address", ln.Addr().String()).Info("hook-server-listening")

	go func() {
		// When Shutdown() is called, Serve returns ErrServerClosed
		if err := e.hookServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("hook-server-error: %v", err)
		}
		logger.Info("hook-server-stopped")
	}()
	return nil
}

// HookHandler returns the HTTP API used by local tooling
func (e *Engine) HookHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/broadcast", e.handleBroadcast)
	mux.HandleFunc("/status", e.handleStatus)
	mux.HandleFunc("/plugins", e.handlePlugins)
	return mux
}

// handleBroadcast queues the request body on every connection, or every
// connection but ?except=<id>
func (e *Engine) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, maxHookBody+1))
	if err != nil {
		logger.Errorf("failed-to-read-request-body: %v", err)
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(data) > maxHookBody {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		logger.Warn("empty-request-body-in-broadcast-request")
		writeError(w, http.StatusBadRequest, "empty request body")
		return
	}

	except := r.URL.Query().Get("except")
	if except != "" {
		if _, ok := e.Connection(except); !ok {
			writeError(w, http.StatusNotFound, "unknown connection: "+except)
			return
		}
	}

	delivered := 0
	for _, conn := range e.Connections() {
		if conn.ShortID() != except {
			delivered++
		}
	}
	e.BroadcastExcept(message.Reply(text), except)

	logger.WithFields(logrus.Fields{
		"except":    except,
		"delivered": delivered,
		"length":    len(text),
	}).Info("hook-broadcast-queued")

	writeJSON(w, http.StatusOK, BroadcastResult{Delivered: delivered})
}

// handleStatus reports connections and plugins
func (e *Engine) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, e.Status())
}

// Status builds a snapshot of the running relay
func (e *Engine) Status() Status {
	conns := e.Connections()
	status := Status{
		Nick:        e.config.Nick,
		Uptime:      e.Uptime().Round(time.Second).String(),
		Connections: make([]ConnectionStatus, 0, len(conns)),
		Plugins:     e.Plugins(),
		Available:   e.catalog.Names(),
	}
	for _, conn := range conns {
		cs := ConnectionStatus{
			ID:    conn.ShortID(),
			Nick:  conn.Nick(),
			State: conn.State().String(),
			Users: conn.OnlineUsers(),
		}
		if cs.Users == nil {
			cs.Users = []string{}
		}
		if p, ok := conn.(pendingCounter); ok {
			cs.Pending = p.Pending()
		}
		status.Connections = append(status.Connections, cs)
	}
	return status
}

// handlePlugins loads or unloads one plugin: ?load=<name> or ?unload=<name>
func (e *Engine) handlePlugins(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, PluginsResult{Plugins: e.Plugins()})
		return
	case http.MethodPost:
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := r.URL.Query()
	load, unload := query.Get("load"), query.Get("unload")

	switch {
	case load != "" && unload != "":
		writeError(w, http.StatusBadRequest, "use either load or unload")
		return

	case load != "":
		if err := e.Load(load); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, plugin.ErrUnknownPlugin) {
				status = http.StatusNotFound
			}
			writeError(w, status, err.Error())
			return
		}

	case unload != "":
		if !e.plugins.Loaded(unload) {
			writeError(w, http.StatusNotFound, unload+" is not loaded")
			return
		}
		if err := e.Unload(unload); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

	default:
		writeError(w, http.StatusBadRequest, "missing load or unload parameter")
		return
	}

	logger.WithFields(logrus.Fields{
		"load":   load,
		"unload": unload,
	}).Info("hook-plugin-change-applied")
	writeJSON(w, http.StatusOK, PluginsResult{Plugins: e.Plugins()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithField("error", err).Warn("failed-to-write-hook-response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
