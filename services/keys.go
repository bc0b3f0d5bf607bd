package services

import (
	"log/slog"
	"strings"
	"sync"
)

// KeyRotator hands out API keys round-robin. It is safe for concurrent use.
type KeyRotator struct {
	mu    sync.Mutex
	keys  []string
	index int
}

func NewKeyRotator(keys []string) *KeyRotator {
	var valid []string
	for _, key := range keys {
		if key = strings.TrimSpace(key); key != "" {
			valid = append(valid, key)
		}
	}
	if len(valid) == 0 {
		slog.Warn("Key rotator initialized with no valid keys")
	}
	return &KeyRotator{keys: valid}
}

// Count returns the number of usable keys.
func (r *KeyRotator) Count() int {
	return len(r.keys)
}

// Index returns the position of the current key.
func (r *KeyRotator) Index() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

// Current returns the current key without advancing.
func (r *KeyRotator) Current() (string, bool) {
	if len(r.keys) == 0 {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keys[r.index], true
}

// Next advances to the following key and returns it.
func (r *KeyRotator) Next() (string, bool) {
	if len(r.keys) == 0 {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index = (r.index + 1) % len(r.keys)
	slog.Info("Rotated API key", "index", r.index)
	return r.keys[r.index], true
}
