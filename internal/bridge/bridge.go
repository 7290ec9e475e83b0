// Package bridge is the WebSocket endpoint the extension's content script
// connects to. Inbound it receives page snapshots and navigation signals;
// outbound it answers with extraction results and operation batches the
// content script replays against the live DOM.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zackkatz/freescout-gpt-assistant/internal/dom"
	"github.com/zackkatz/freescout-gpt-assistant/internal/manager"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 16,
	WriteBufferSize: 1 << 16,
}

// Envelope frames every bridge message in both directions.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type snapshotPayload struct {
	URL        string         `json:"url"`
	HTML       string         `json:"html"`
	Globals    map[string]any `json:"globals,omitempty"`
	ReadyState string         `json:"ready_state,omitempty"`
	Navigated  bool           `json:"navigated,omitempty"`
}

type injectPayload struct {
	Text string `json:"text"`
}

// Handler upgrades connections and runs one session per socket. Each
// connection gets its own Manager: a connection corresponds to one browser
// tab, and manager state is per page context.
type Handler struct {
	opts           manager.Options
	allowedOrigins map[string]bool
	log            *slog.Logger
}

// NewHandler builds a bridge handler; opts is the per-session Manager
// template.
func NewHandler(opts manager.Options, allowedOrigins []string) *Handler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Handler{
		opts:           opts,
		allowedOrigins: origins,
		log:            slog.With("component", "bridge"),
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients (CLI, tests)
	}
	return h.allowedOrigins[origin]
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader.CheckOrigin = h.checkOrigin
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	sess := &session{
		id:   sessionID,
		conn: conn,
		mgr:  manager.New(h.opts),
		log:  h.log.With("session", sessionID),
	}
	defer sess.mgr.Close()

	// Forward manager events as they happen.
	unsubscribe := sess.mgr.Listen(func(evt manager.Event) {
		sess.send(Envelope{ID: uuid.New().String(), Type: "event", SessionID: sessionID,
			Payload: mustMarshal(map[string]any{"name": evt.Type, "data": evt.Data})})
	})
	defer unsubscribe()

	sess.send(Envelope{ID: uuid.New().String(), Type: "connected", SessionID: sessionID})
	sess.run(r.Context())
}

type session struct {
	id   string
	conn *websocket.Conn
	mgr  *manager.Manager
	log  *slog.Logger

	writeMu sync.Mutex
	page    *dom.Snapshot
	lastURL string
}

func (s *session) run(ctx context.Context) {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket closed unexpectedly", "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.sendError("", "invalid envelope")
			continue
		}
		s.handle(ctx, env)
	}
}

func (s *session) handle(ctx context.Context, env Envelope) {
	switch env.Type {
	case "snapshot":
		s.handleSnapshot(ctx, env)
	case "navigated":
		s.handleNavigated(ctx, env)
	case "extract":
		s.handleExtract(ctx, env)
	case "inject":
		s.handleInject(ctx, env)
	case "health":
		s.reply(env, "health", map[string]any{
			"health":  s.mgr.HealthCheck(ctx),
			"metrics": s.mgr.Metrics(),
		})
	default:
		s.sendError(env.ID, "unknown message type: "+env.Type)
	}
}

func (s *session) handleSnapshot(ctx context.Context, env Envelope) {
	var p snapshotPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.sendError(env.ID, "invalid snapshot payload")
		return
	}
	snap, err := dom.ParseSnapshot(p.URL, p.HTML, &dom.SnapshotOptions{
		Globals:    p.Globals,
		ReadyState: p.ReadyState,
	})
	if err != nil {
		s.sendError(env.ID, "snapshot parse failed: "+err.Error())
		return
	}

	navigated := p.Navigated || (s.lastURL != "" && s.lastURL != p.URL)
	s.page = snap
	s.lastURL = p.URL
	s.mgr.SetPage(snap)

	if navigated {
		if err := s.mgr.Reset(ctx); err != nil {
			s.log.Info("reset after navigation left assistant inactive", "error", err)
		}
	} else if err := s.mgr.Initialize(ctx); err != nil {
		s.log.Info("assistant inactive on page", "url", p.URL, "error", err)
	}
	s.reply(env, "ready", map[string]any{
		"platform":    s.mgr.Platform().String(),
		"initialized": s.mgr.Initialized(),
	})
}

func (s *session) handleNavigated(ctx context.Context, env Envelope) {
	if err := s.mgr.Reset(ctx); err != nil {
		s.log.Info("reset after navigation left assistant inactive", "error", err)
	}
	s.reply(env, "ready", map[string]any{
		"platform":    s.mgr.Platform().String(),
		"initialized": s.mgr.Initialized(),
	})
}

func (s *session) handleExtract(ctx context.Context, env Envelope) {
	thread := s.mgr.ExtractThread(ctx)
	s.reply(env, "thread", map[string]any{"messages": thread})
	customer := s.mgr.ExtractCustomerInfo(ctx)
	s.reply(env, "customer", map[string]any{
		"info": customer,
		"user": s.mgr.CurrentUser(ctx),
	})
}

func (s *session) handleInject(ctx context.Context, env Envelope) {
	var p injectPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.sendError(env.ID, "invalid inject payload")
		return
	}
	if s.page != nil {
		s.page.ClearOps()
	}
	ok := s.mgr.InjectReply(ctx, p.Text)

	var ops []dom.Op
	if s.page != nil {
		ops = s.page.Ops()
	}
	s.reply(env, "ops", map[string]any{"ok": ok, "ops": ops})
}

func (s *session) reply(req Envelope, msgType string, payload any) {
	s.send(Envelope{
		ID:        uuid.New().String(),
		Type:      msgType,
		SessionID: s.id,
		Payload:   mustMarshal(map[string]any{"request_id": req.ID, "data": payload}),
	})
}

func (s *session) sendError(requestID, msg string) {
	s.send(Envelope{
		ID:        uuid.New().String(),
		Type:      "error",
		SessionID: s.id,
		Payload:   mustMarshal(map[string]any{"request_id": requestID, "error": msg}),
	})
}

func (s *session) send(env Envelope) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(env); err != nil {
		s.log.Warn("websocket write failed", "error", err)
	}
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}
