// Package websocket streams recorded audio from the browser and replies with
// transcripts once the client asks for them.
package websocket

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	maxFrameBytes     = 1 << 20
	maxBufferedBytes  = 25 << 20
	defaultSampleRate = 16000
	pongWait          = 60 * time.Second
	pingPeriod        = 54 * time.Second
	writeWait         = 10 * time.Second
)

// Transcriber turns buffered audio into text.
type Transcriber func(ctx context.Context, audio []byte, contentType string) (string, error)

// Hub tracks live transcription clients.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

type Client struct {
	Hub        *Hub
	Conn       *websocket.Conn
	Send       chan []byte
	ID         string
	transcribe Transcriber

	mu         sync.Mutex
	buffer     bytes.Buffer
	mimeHint   string
	sampleRate int
	closed     bool // Send is closed; guarded by mu
}

// Message is the server-to-client frame.
type Message struct {
	Type   string `json:"type"` // "final", "error"
	Text   string `json:"text,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Control is a client text frame. Text that is not JSON is read as a raw
// MIME hint.
type Control struct {
	Type       string `json:"type,omitempty"` // "stop", "reset"
	MimeType   string `json:"mimeType,omitempty"`
	PCM        bool   `json:"pcm,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves register and unregister requests until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			slog.Info("STT client registered", "client_id", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
			}
			h.mu.Unlock()
			slog.Info("STT client unregistered", "client_id", client.ID)

		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.closeSend()
			}
			h.mu.Unlock()
			return
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RegisterClient(conn *websocket.Conn, transcribe Transcriber) *Client {
	client := &Client{
		Hub:        h,
		Conn:       conn,
		Send:       make(chan []byte, 16),
		ID:         uuid.New().String(),
		transcribe: transcribe,
	}
	select {
	case h.register <- client:
	case <-h.done:
	}
	return client
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// ReadPump consumes frames until the connection closes. Binary frames are
// buffered; a stop control transcribes the buffer and replies with a final
// message.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxFrameBytes)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("STT websocket error", "client_id", c.ID, "error", err)
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))

		switch messageType {
		case websocket.BinaryMessage:
			if !c.appendAudio(data) {
				c.reply(Message{Type: "error", Detail: "audio too large"})
				c.reset()
			}
		case websocket.TextMessage:
			c.handleControl(ctx, data)
		}
	}
}

func (c *Client) handleControl(ctx context.Context, data []byte) {
	var control Control
	if err := json.Unmarshal(data, &control); err != nil {
		hint := strings.TrimSpace(string(data))
		if hint == "stop" {
			c.flush(ctx)
			return
		}
		c.mu.Lock()
		c.mimeHint = hint
		c.mu.Unlock()
		slog.Info("STT websocket received raw MIME hint", "client_id", c.ID, "mime", hint)
		return
	}

	c.mu.Lock()
	if control.MimeType != "" {
		c.mimeHint = control.MimeType
	}
	if control.PCM {
		c.mimeHint = "audio/pcm"
		c.sampleRate = control.SampleRate
		if c.sampleRate <= 0 {
			c.sampleRate = defaultSampleRate
		}
	}
	c.mu.Unlock()

	switch control.Type {
	case "stop":
		c.flush(ctx)
	case "reset":
		c.reset()
	}
}

func (c *Client) appendAudio(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buffer.Len()+len(data) > maxBufferedBytes {
		return false
	}
	c.buffer.Write(data)
	return true
}

func (c *Client) reset() {
	c.mu.Lock()
	c.buffer.Reset()
	c.mu.Unlock()
}

// take drains the buffer and returns the audio with its content type. Raw
// PCM is wrapped in a WAV header.
func (c *Client) take() ([]byte, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	audio := bytes.Clone(c.buffer.Bytes())
	c.buffer.Reset()
	if c.mimeHint == "audio/pcm" && len(audio) > 0 {
		return WrapPCM(audio, c.sampleRate), "audio/wav"
	}
	return audio, c.mimeHint
}

func (c *Client) flush(ctx context.Context) {
	audio, contentType := c.take()
	if len(audio) == 0 {
		c.reply(Message{Type: "final"})
		return
	}

	text, err := c.transcribe(ctx, audio, contentType)
	if err != nil {
		slog.Error("STT transcription failed", "client_id", c.ID, "bytes", len(audio), "error", err)
		c.reply(Message{Type: "error", Detail: "transcription failed"})
		return
	}
	slog.Info("STT transcription complete", "client_id", c.ID, "bytes", len(audio), "text_length", len(text))
	c.reply(Message{Type: "final", Text: text})
}

func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal STT message", "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		slog.Debug("STT reply dropped after close", "client_id", c.ID)
		return
	}
	select {
	case c.Send <- data:
	default:
		slog.Warn("STT send buffer full", "client_id", c.ID)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WrapPCM prefixes 16-bit mono little-endian PCM samples with a WAV header.
func WrapPCM(pcm []byte, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
