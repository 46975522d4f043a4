package integration

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kdimtricp/trainbox/internal/api"
	"github.com/kdimtricp/trainbox/internal/database"
	"github.com/kdimtricp/trainbox/internal/dataset"
	"github.com/kdimtricp/trainbox/internal/jobs"
	"github.com/kdimtricp/trainbox/internal/trainer"
	"github.com/kdimtricp/trainbox/internal/watcher"
	"github.com/kdimtricp/trainbox/internal/ws"
)

type frame struct {
	Type      string                 `json:"type"`
	RequestID string                 `json:"requestId,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// wsClient wraps one live channel connection, buffering incoming frames so
// tests can wait for specific event types.
type wsClient struct {
	conn   *websocket.Conn
	frames chan frame
}

func dial(t *testing.T, server *httptest.Server) *wsClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	c := &wsClient{conn: conn, frames: make(chan frame, 256)}
	go func() {
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				close(c.frames)
				return
			}
			c.frames <- f
		}
	}()

	// Registration happens between the handshake and the read pump; a probe
	// round-trip guarantees this client sees every later broadcast.
	c.send(t, "__probe__", "probe", map[string]interface{}{})
	c.waitFor(t, "commandError")

	return c
}

func (c *wsClient) send(t *testing.T, cmdType, requestID string, data interface{}) {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Failed to marshal command: %v", err)
	}
	msg, err := json.Marshal(map[string]interface{}{
		"type":      cmdType,
		"requestId": requestID,
		"data":      json.RawMessage(payload),
	})
	if err != nil {
		t.Fatalf("Failed to marshal envelope: %v", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("Failed to send %s: %v", cmdType, err)
	}
}

// waitFor returns the next frame of the wanted type, failing on any
// unexpected frame so ordering bugs surface.
func (c *wsClient) waitFor(t *testing.T, wanted string) frame {
	t.Helper()
	for {
		select {
		case f, ok := <-c.frames:
			if !ok {
				t.Fatalf("Connection closed while waiting for %s", wanted)
			}
			if f.Type == wanted {
				return f
			}
			t.Fatalf("Expected %s, got %s", wanted, f.Type)
		case <-time.After(10 * time.Second):
			t.Fatalf("Timed out waiting for %s", wanted)
		}
	}
}

// waitForAny skips frames until one of the wanted types arrives.
func (c *wsClient) waitForAny(t *testing.T, wanted ...string) frame {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case f, ok := <-c.frames:
			if !ok {
				t.Fatalf("Connection closed while waiting for %v", wanted)
			}
			for _, w := range wanted {
				if f.Type == w {
					return f
				}
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for %v", wanted)
		}
	}
}

func (c *wsClient) expectQuiet(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case f, ok := <-c.frames:
		if ok {
			t.Fatalf("Unexpected frame %s", f.Type)
		}
	case <-time.After(wait):
	}
}

type env struct {
	server *httptest.Server
	store  *dataset.Store
	runs   *database.RunRepository
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "job.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	return path
}

func setup(t *testing.T, trainScript, verifyScript string) *env {
	t.Helper()

	store, err := dataset.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.EnsureProject("pets"); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	runRepo := database.NewRunRepository(db)

	hub := ws.NewHub()
	go hub.Run()

	runner := trainer.NewExecRunner(trainScript, verifyScript)
	orchestrator := jobs.NewOrchestrator(runner, runner, store, runRepo, hub)
	wsServer := ws.NewServer(hub, store, orchestrator, 1<<20)

	fsWatcher, err := watcher.New(store.BasePath(), hub.NotifyDatasetChanged)
	if err != nil {
		t.Fatalf("Failed to watch dataset root: %v", err)
	}
	t.Cleanup(func() { fsWatcher.Close() })
	go fsWatcher.Start()
	wsServer.OnMutation(fsWatcher.Suppress)

	app := &api.App{Store: store, Runs: runRepo, WS: wsServer}
	server := httptest.NewServer(api.NewRouter(app))
	t.Cleanup(server.Close)

	return &env{server: server, store: store, runs: runRepo}
}
