package bridge

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zackkatz/freescout-gpt-assistant/internal/manager"
	"github.com/zackkatz/freescout-gpt-assistant/internal/settings"

	_ "github.com/zackkatz/freescout-gpt-assistant/internal/adapter/freescout"
	_ "github.com/zackkatz/freescout-gpt-assistant/internal/adapter/helpscout"
)

func dialTestBridge(t *testing.T) *websocket.Conn {
	t.Helper()
	h := NewHandler(manager.Options{Store: settings.NewMemory()}, nil)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?session_id=test-session"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial bridge: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// awaitType reads frames until one of the wanted type arrives, skipping
// forwarded manager events.
func awaitType(t *testing.T, conn *websocket.Conn, msgType string) Envelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	conn.SetReadDeadline(deadline)
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("read while waiting for %q: %v", msgType, err)
		}
		if env.Type == msgType {
			return env
		}
		if env.Type != "event" && env.Type != "connected" {
			t.Fatalf("unexpected frame %q while waiting for %q: %s", env.Type, msgType, env.Payload)
		}
	}
}

func payloadData(t *testing.T, env Envelope) map[string]any {
	t.Helper()
	var wrapper struct {
		RequestID string         `json:"request_id"`
		Data      map[string]any `json:"data"`
		Error     string         `json:"error"`
	}
	if err := json.Unmarshal(env.Payload, &wrapper); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if wrapper.Error != "" {
		t.Fatalf("error reply: %s", wrapper.Error)
	}
	return wrapper.Data
}

func sendSnapshot(t *testing.T, conn *websocket.Conn, id, url, html string) {
	t.Helper()
	payload, _ := json.Marshal(snapshotPayload{URL: url, HTML: html})
	if err := conn.WriteJSON(Envelope{ID: id, Type: "snapshot", Payload: payload}); err != nil {
		t.Fatalf("send snapshot: %v", err)
	}
}

func fixtureHTML(t *testing.T) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("..", "..", "testdata", "pages", "freescout-conversation.html"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(raw)
}

func TestSessionLifecycle(t *testing.T) {
	conn := dialTestBridge(t)

	connected := awaitType(t, conn, "connected")
	if connected.SessionID != "test-session" {
		t.Fatalf("unexpected session id: %s", connected.SessionID)
	}

	sendSnapshot(t, conn, "m1", "https://support.example.com/conversation/1542", fixtureHTML(t))
	ready := payloadData(t, awaitType(t, conn, "ready"))
	if ready["platform"] != "freescout" || ready["initialized"] != true {
		t.Fatalf("unexpected ready reply: %v", ready)
	}

	if err := conn.WriteJSON(Envelope{ID: "m2", Type: "extract"}); err != nil {
		t.Fatalf("send extract: %v", err)
	}
	thread := payloadData(t, awaitType(t, conn, "thread"))
	messages, ok := thread["messages"].([]any)
	if !ok || len(messages) != 3 {
		t.Fatalf("unexpected thread reply: %v", thread)
	}
	first := messages[0].(map[string]any)
	if first["role"] != "user" {
		t.Fatalf("unexpected first message: %v", first)
	}

	customer := payloadData(t, awaitType(t, conn, "customer"))
	info, ok := customer["info"].(map[string]any)
	if !ok || info["name"] != "Jane Customer" {
		t.Fatalf("unexpected customer reply: %v", customer)
	}
	if customer["user"] != "John Agent" {
		t.Fatalf("unexpected current user: %v", customer["user"])
	}
}

func TestInjectReturnsOps(t *testing.T) {
	conn := dialTestBridge(t)
	awaitType(t, conn, "connected")

	sendSnapshot(t, conn, "m1", "https://support.example.com/conversation/1542", fixtureHTML(t))
	awaitType(t, conn, "ready")

	payload, _ := json.Marshal(injectPayload{Text: "Hello **world**"})
	if err := conn.WriteJSON(Envelope{ID: "m2", Type: "inject", Payload: payload}); err != nil {
		t.Fatalf("send inject: %v", err)
	}

	reply := payloadData(t, awaitType(t, conn, "ops"))
	if reply["ok"] != true {
		t.Fatalf("injection reported failure: %v", reply)
	}
	ops, ok := reply["ops"].([]any)
	if !ok || len(ops) == 0 {
		t.Fatalf("no ops to replay: %v", reply)
	}
	firstOp := ops[0].(map[string]any)
	if firstOp["Action"] != "setHTML" {
		t.Fatalf("unexpected first op: %v", firstOp)
	}
}

func TestNavigationTriggersReset(t *testing.T) {
	conn := dialTestBridge(t)
	awaitType(t, conn, "connected")

	sendSnapshot(t, conn, "m1", "https://support.example.com/conversation/1542", fixtureHTML(t))
	awaitType(t, conn, "ready")

	// A snapshot from a different URL is a navigation: the session resets and
	// re-initializes against the new page.
	sendSnapshot(t, conn, "m2", "https://support.example.com/conversation/9999", fixtureHTML(t))
	ready := payloadData(t, awaitType(t, conn, "ready"))
	if ready["platform"] != "freescout" || ready["initialized"] != true {
		t.Fatalf("unexpected ready after navigation: %v", ready)
	}
}

func TestUnknownMessageType(t *testing.T) {
	conn := dialTestBridge(t)
	awaitType(t, conn, "connected")

	if err := conn.WriteJSON(Envelope{ID: "m1", Type: "bogus"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	errEnv := awaitType(t, conn, "error")
	var wrapper struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(errEnv.Payload, &wrapper); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if !strings.Contains(wrapper.Error, "bogus") {
		t.Fatalf("unexpected error message: %q", wrapper.Error)
	}
}
