package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"studymed-quiz-service/internal/app"
)

type inboundMessage struct {
	Type    app.CommandType `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func errorMessage(err error) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error(), Status: statusFor(err)}}
}

// ServeWS upgrades to a websocket bound to one session. It streams state
// snapshots on every change, starting with the current one, accepts session
// commands and sends the result once the session is submitted.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Msg: "missing sessionId"})
		return
	}
	userID := identity(r).UserID
	ctx := r.Context()

	updates, cancel, err := h.service.Subscribe(ctx, userID, sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only this goroutine writes to conn.
	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write failed", zap.String("session_id", sessionID), zap.Error(err))
				return
			}
		}
	}()

	push := func(msg outboundMessage) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					// Session ended; unblock the reader.
					_ = conn.SetReadDeadline(time.Now())
					return
				}
				select {
				case send <- outboundMessage{Type: "state", Payload: snap}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
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
		cmd := app.Command{Type: inbound.Type}
		if len(inbound.Payload) > 0 {
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				if !push(outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid payload", Status: http.StatusBadRequest}}) {
					break
				}
				continue
			}
			cmd.QuestionID, cmd.OptionID = payload.QuestionID, payload.OptionID
		}

		out, err := h.service.Apply(ctx, userID, sessionID, cmd)
		if err != nil {
			if !push(errorMessage(err)) {
				break
			}
			continue
		}
		// Submit and exit close the update stream, which ends this loop.
		if out.Result != nil && !push(outboundMessage{Type: "result", Payload: out.Result}) {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}
