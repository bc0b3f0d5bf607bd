package services

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	ws "github.com/krshsl/mensetsu/backend/websocket"
)

// STTEndpoints serves the streaming transcription websocket.
type STTEndpoints struct {
	speech   SpeechService
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

func NewSTTEndpoints(speech SpeechService, hub *ws.Hub, allowedOrigins string) *STTEndpoints {
	return &STTEndpoints{
		speech: speech,
		hub:    hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return CheckOrigin(r, allowedOrigins)
			},
		},
	}
}

func (e *STTEndpoints) RegisterRoutes(r chi.Router) {
	r.Get("/ws/stt", e.WebSocketHandler)
}

func (e *STTEndpoints) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	if e.speech == nil {
		slog.Warn("STT websocket rejected: speech service disabled")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "speech service unavailable"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	client := e.hub.RegisterClient(conn, e.speech.Transcribe)
	slog.Info("STT websocket connected", "client_id", client.ID, "remote_addr", r.RemoteAddr)

	go client.WritePump()
	client.ReadPump(r.Context())
}
