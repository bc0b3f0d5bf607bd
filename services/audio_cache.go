package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// AudioCache keeps synthesized audio for phrases the interviewer repeats in
// almost every session. An empty directory disables caching.
type AudioCache struct {
	cacheDir string
	mutex    sync.RWMutex
}

// CommonPhrases are the fallback questions and stock lines worth caching.
var CommonPhrases = map[string]bool{
	defaultFirstQuestion: true,
	defaultNextQuestion:  true,
	"本日はよろしくお願いいたします。":                    true,
	"最後に、何か質問はありますか？":                     true,
	"本日の面接は以上となります。結果については後日ご連絡いたします。":    true,
	"あなたの強みと弱みを教えてください。":                  true,
	"学生時代に力を入れたことを教えてください。":               true,
	"これまでで最も困難だった経験と、それをどう乗り越えたか教えてください。": true,
	"入社後にどのような仕事に挑戦したいですか？":               true,
	"5年後、どのようなキャリアを描いていますか？":              true,
}

func NewAudioCache(cacheDir string) *AudioCache {
	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			slog.Error("Failed to create cache directory", "dir", cacheDir, "error", err)
		}
	}
	return &AudioCache{cacheDir: cacheDir}
}

func (ac *AudioCache) cacheKey(text, voiceID string) string {
	hash := sha256.Sum256([]byte(voiceID + ":" + text))
	return hex.EncodeToString(hash[:])
}

func (ac *AudioCache) cachePath(key string) string {
	return filepath.Join(ac.cacheDir, key+".mp3")
}

// Cacheable reports whether text would be served from or written to disk.
func (ac *AudioCache) Cacheable(text string) bool {
	return ac.cacheDir != "" && CommonPhrases[text]
}

// Get returns cached audio for text, if any.
func (ac *AudioCache) Get(ctx context.Context, text, voiceID string) ([]byte, bool) {
	if !ac.Cacheable(text) {
		return nil, false
	}

	ac.mutex.RLock()
	defer ac.mutex.RUnlock()

	path := ac.cachePath(ac.cacheKey(text, voiceID))
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("Failed to read cached audio", "path", path, "error", err)
		}
		return nil, false
	}

	slog.Debug("Audio cache hit", "voice_id", voiceID, "size", len(data))
	return data, true
}

func (ac *AudioCache) Set(ctx context.Context, text, voiceID string, audio []byte) error {
	if !ac.Cacheable(text) {
		return nil
	}

	ac.mutex.Lock()
	defer ac.mutex.Unlock()

	path := ac.cachePath(ac.cacheKey(text, voiceID))
	if err := os.WriteFile(path, audio, 0644); err != nil {
		return fmt.Errorf("failed to write cached audio: %w", err)
	}
	slog.Info("Cached phrase audio", "voice_id", voiceID, "size", len(audio))
	return nil
}

// GetOrGenerate serves text from the cache or runs generate and stores the
// result when the phrase is cacheable.
func (ac *AudioCache) GetOrGenerate(ctx context.Context, text, voiceID string, generate func() (io.ReadCloser, error)) ([]byte, error) {
	if data, found := ac.Get(ctx, text, voiceID); found {
		return data, nil
	}

	reader, err := generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate audio: %w", err)
	}
	defer reader.Close()

	audio, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if err := ac.Set(ctx, text, voiceID, audio); err != nil {
		slog.Warn("Failed to cache audio", "error", err)
	}
	return audio, nil
}

// Stats returns the number and total size of cached files.
func (ac *AudioCache) Stats() (int, int64, error) {
	if ac.cacheDir == "" {
		return 0, 0, nil
	}

	ac.mutex.RLock()
	defer ac.mutex.RUnlock()

	entries, err := os.ReadDir(ac.cacheDir)
	if err != nil {
		return 0, 0, err
	}

	var totalSize int64
	count := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".mp3" {
			continue
		}
		count++
		if info, err := entry.Info(); err == nil {
			totalSize += info.Size()
		}
	}
	return count, totalSize, nil
}
