package websocket

import (
	"context"
	"encoding/binary"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWrapPCM(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	wav := WrapPCM(pcm, 0)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, expected %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:16]) != "WAVEfmt " || string(wav[36:40]) != "data" {
		t.Fatalf("bad header: %q", wav[:44])
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(pcm)) {
		t.Errorf("riff size = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != defaultSampleRate {
		t.Errorf("sample rate = %d, expected default", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != defaultSampleRate*2 {
		t.Errorf("byte rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d", got)
	}
	if string(wav[44:]) != string(pcm) {
		t.Errorf("samples not copied")
	}

	if rate := binary.LittleEndian.Uint32(WrapPCM(pcm, 48000)[24:28]); rate != 48000 {
		t.Errorf("explicit sample rate = %d", rate)
	}
}

type recordedCall struct {
	audio       []byte
	contentType string
}

func newTestServer(t *testing.T, transcribe Transcriber) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := hub.RegisterClient(conn, transcribe)
		go client.WritePump()
		client.ReadPump(r.Context())
	}))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read error = %v", err)
	}
	return msg
}

func TestClientTranscription(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []recordedCall
	)
	transcribe := func(ctx context.Context, audio []byte, contentType string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, recordedCall{audio: audio, contentType: contentType})
		if string(audio) == "broken" {
			return "", errors.New("stt down")
		}
		return "こんにちは", nil
	}
	_, url := newTestServer(t, transcribe)

	t.Run("raw mime hint and stop", func(t *testing.T) {
		conn := dial(t, url)
		conn.WriteMessage(websocket.TextMessage, []byte("audio/webm"))
		conn.WriteMessage(websocket.BinaryMessage, []byte("chunk-1|"))
		conn.WriteMessage(websocket.BinaryMessage, []byte("chunk-2"))
		conn.WriteMessage(websocket.TextMessage, []byte("stop"))

		msg := readMessage(t, conn)
		if msg.Type != "final" || msg.Text != "こんにちは" {
			t.Fatalf("unexpected message %+v", msg)
		}
		mu.Lock()
		last := calls[len(calls)-1]
		mu.Unlock()
		if string(last.audio) != "chunk-1|chunk-2" || last.contentType != "audio/webm" {
			t.Errorf("unexpected call %+v", last)
		}
	})

	t.Run("pcm control wraps wav", func(t *testing.T) {
		conn := dial(t, url)
		conn.WriteJSON(Control{PCM: true, SampleRate: 24000})
		conn.WriteMessage(websocket.BinaryMessage, []byte{0, 1, 0, 1})
		conn.WriteJSON(Control{Type: "stop"})

		if msg := readMessage(t, conn); msg.Type != "final" {
			t.Fatalf("unexpected message %+v", msg)
		}
		mu.Lock()
		last := calls[len(calls)-1]
		mu.Unlock()
		if last.contentType != "audio/wav" || len(last.audio) != 48 || string(last.audio[:4]) != "RIFF" {
			t.Errorf("expected wav-wrapped pcm, got %s with %d bytes", last.contentType, len(last.audio))
		}
	})

	t.Run("empty buffer replies empty final", func(t *testing.T) {
		conn := dial(t, url)
		conn.WriteMessage(websocket.TextMessage, []byte("stop"))
		if msg := readMessage(t, conn); msg.Type != "final" || msg.Text != "" {
			t.Fatalf("unexpected message %+v", msg)
		}
	})

	t.Run("reset drops buffered audio", func(t *testing.T) {
		conn := dial(t, url)
		conn.WriteMessage(websocket.BinaryMessage, []byte("stale"))
		conn.WriteJSON(Control{Type: "reset"})
		conn.WriteMessage(websocket.TextMessage, []byte("stop"))
		if msg := readMessage(t, conn); msg.Type != "final" || msg.Text != "" {
			t.Fatalf("unexpected message %+v", msg)
		}
	})

	t.Run("transcriber error", func(t *testing.T) {
		conn := dial(t, url)
		conn.WriteMessage(websocket.BinaryMessage, []byte("broken"))
		conn.WriteMessage(websocket.TextMessage, []byte("stop"))
		if msg := readMessage(t, conn); msg.Type != "error" || msg.Detail == "" {
			t.Fatalf("unexpected message %+v", msg)
		}
	})
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub, url := newTestServer(t, func(ctx context.Context, audio []byte, contentType string) (string, error) {
		return "", nil
	})

	conn := dial(t, url)
	waitFor(t, func() bool { return hub.Count() == 1 })

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitFor(t, func() bool { return hub.Count() == 0 })
}

func TestClientReplyAfterClose(t *testing.T) {
	tests := []struct {
		name      string
		closeSend bool
		wantQueue int
	}{
		{"open client queues reply", false, 1},
		{"closed client drops reply", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &Client{Send: make(chan []byte, 4), ID: "c1"}
			if tt.closeSend {
				client.closeSend()
				client.closeSend()
			}
			client.reply(Message{Type: "final", Text: "hi"})

			queued := 0
			for range client.Send {
				queued++
				if !tt.closeSend {
					break
				}
			}
			if queued != tt.wantQueue {
				t.Errorf("queued = %d, want %d", queued, tt.wantQueue)
			}
		})
	}

	t.Run("concurrent close and reply", func(t *testing.T) {
		client := &Client{Send: make(chan []byte, 64), ID: "c2"}
		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				client.reply(Message{Type: "final"})
			}()
		}
		client.closeSend()
		wg.Wait()
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
