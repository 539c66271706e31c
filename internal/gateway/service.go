package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/lockin-app/lockin/internal/events"
	"github.com/lockin-app/lockin/internal/pod"
	"github.com/lockin-app/lockin/internal/room"
	"github.com/lockin-app/lockin/internal/timer"
)

// Service is the HTTP and websocket surface of the pod engine.
type Service struct {
	registry  *pod.Registry
	hub       *room.Hub
	authority *timer.Authority
	ledger    LedgerOps
	auth      Authenticator
	connCfg   ConnectionConfig
	upgrader  websocket.Upgrader
}

// NewService wires the surface together.
func NewService(registry *pod.Registry, hub *room.Hub, authority *timer.Authority, ledger LedgerOps, auth Authenticator, connCfg ConnectionConfig) *Service {
	return &Service{
		registry:  registry,
		hub:       hub,
		authority: authority,
		ledger:    ledger,
		auth:      auth,
		connCfg:   connCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  connCfg.ReadBufferSize,
			WriteBufferSize: connCfg.WriteBufferSize,
			CheckOrigin:     connCfg.CheckOrigin,
		},
	}
}

// RegisterRoutes attaches every route to mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/pods", s.handleCreatePod)
	mux.HandleFunc("POST /api/pods/{code}/join", s.handleJoinPod)
	mux.HandleFunc("GET /api/pods/{code}", s.handleGetPod)
	mux.HandleFunc("POST /api/sessions", s.handleRecordSession)
	mux.HandleFunc("PATCH /api/sessions/penalty", s.handleQuitPenalty)
	mux.HandleFunc("POST /api/logins", s.handleLogin)
	mux.HandleFunc("GET /api/users/{id}/progress", s.handleGetProgress)
	mux.HandleFunc("GET /ws/pod", s.handlePodSocket)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	log.Info().Msg("gateway routes registered")
}

// handlePodSocket upgrades a member onto a pod's event stream. The current
// timer state is pushed immediately; no past events are replayed.
func (s *Service) handlePodSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.UserID(r)
	if err != nil {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	code := pod.Normalize(r.URL.Query().Get("code"))
	if code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}
	if _, err := s.registry.GetPod(code); err != nil {
		http.Error(w, "pod not found", http.StatusNotFound)
		return
	}

	snap, err := s.authority.Snapshot(code)
	if err != nil {
		http.Error(w, "pod not found", http.StatusNotFound)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("pod_code", code).Msg("websocket upgrade failed")
		return
	}

	conn := &connection{
		userID:  userID,
		podCode: code,
		ws:      ws,
		sub:     s.hub.Subscribe(code),
		svc:     s,
		send:    make(chan []byte, 8),
	}

	go conn.writePump()
	go conn.readPump()

	// New joiners get the authoritative state explicitly since the hub
	// never replays.
	if ev, err := events.New(code, events.TypeSnapshot, time.Now().UTC(), events.SnapshotPayload{Timer: snap}); err == nil {
		if data, err := json.Marshal(ev); err == nil {
			select {
			case conn.send <- data:
			default:
			}
		}
	}

	log.Info().
		Str("pod_code", code).
		Str("user_id", userID).
		Int("subscribers", s.hub.SubscriberCount(code)).
		Msg("websocket connection established")
}

// handleIntent parses one inbound websocket message and applies it to the
// timer authority. Malformed messages earn an error event back to the
// sender; intents for pods that disappeared are silently ignored.
func (s *Service) handleIntent(c *connection, raw []byte) {
	in, err := events.ParseIntent(raw)
	if err != nil {
		log.Debug().
			Err(err).
			Str("pod_code", c.podCode).
			Str("user_id", c.userID).
			Msg("rejected intent")
		s.sendError(c, "invalid_intent", err.Error())
		return
	}

	if err := s.authority.Apply(context.Background(), c.podCode, in.Kind); err != nil {
		if errors.Is(err, pod.ErrNotFound) {
			return
		}
		if errors.Is(err, events.ErrInvalidIntent) {
			s.sendError(c, "invalid_intent", err.Error())
			return
		}
		log.Error().Err(err).Str("pod_code", c.podCode).Msg("intent failed")
	}
}

// sendError delivers an error event to one connection only.
func (s *Service) sendError(c *connection, code, msg string) {
	ev, err := events.New(c.podCode, events.TypeError, time.Now().UTC(), events.ErrorPayload{Code: code, Message: msg})
	if err != nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
