package http

import (
	"encoding/json"
	"net/http"

	"adaptive-test-service/internal/app"
	"adaptive-test-service/internal/domain"
	"adaptive-test-service/internal/engine"
	"adaptive-test-service/internal/logger"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *app.SessionService
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, log *logger.Logger) *WSHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type eventPayload struct {
	Index  int           `json:"index"`
	Answer domain.Answer `json:"answer"`
}

type eventAck struct {
	Event    app.EventType `json:"event"`
	Accepted bool          `json:"accepted"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades an authenticated request and streams one attempt over the socket.
// Inbound messages are student events; outbound are state snapshots, acks, the final
// report and errors.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	userID, err := UserFromContext(r.Context())
	if err != nil {
		writeError(w, domain.ErrUnauthorized)
		return
	}
	if sessionID == "" {
		http.Error(w, "missing sessionId", http.StatusBadRequest)
		return
	}

	updates, cancel, err := h.service.Subscribe(r.Context(), userID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	log := h.log.With("session_id", sessionID, "user_id", userID)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer goroutine touches conn for writes. After a write error it keeps
	// draining send so the reader never blocks; closing conn ends the read loop.
	go func() {
		defer close(writerDone)
		broken := false
		for msg := range send {
			if broken {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write error", "error", err)
				broken = true
				_ = conn.Close()
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		reported := false
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				msgs := []outboundMessage[any]{{Type: "state", Payload: h.view(snap)}}
				if snap.Session.Status == domain.StatusCompleted && !reported {
					reported = true
					report, err := h.service.Report(r.Context(), userID, sessionID)
					if err == nil {
						msgs = append(msgs, outboundMessage[any]{Type: "report", Payload: report})
					}
				}
				for _, msg := range msgs {
					select {
					case send <- msg:
					case <-closeSignals:
						return
					}
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var payload eventPayload
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid event payload"}}
				continue
			}
		}
		ev := app.Event{Type: app.EventType(inbound.Type), Index: payload.Index, Answer: payload.Answer}
		_, accepted, err := h.service.Dispatch(r.Context(), userID, sessionID, ev)
		if err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			continue
		}
		send <- outboundMessage[any]{Type: "ack", Payload: eventAck{Event: ev.Type, Accepted: accepted}}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) view(snap engine.Snapshot) stateView {
	return stateView{Snapshot: snap, Offline: h.service.Offline()}
}
