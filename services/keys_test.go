package services

import (
	"sync"
	"testing"
)

func TestKeyRotator(t *testing.T) {
	tests := []struct {
		name         string
		keys         []string
		calls        int
		expectedKey  string
		expectedIdx  int
		expectedOK   bool
		expectedSize int
	}{
		{name: "single key stays put", keys: []string{"k1"}, calls: 3, expectedKey: "k1", expectedIdx: 0, expectedOK: true, expectedSize: 1},
		{name: "three keys wrap around", keys: []string{"k1", "k2", "k3"}, calls: 4, expectedKey: "k2", expectedIdx: 1, expectedOK: true, expectedSize: 3},
		{name: "blank keys dropped", keys: []string{" ", "k1", "", " k2 "}, calls: 1, expectedKey: "k2", expectedIdx: 1, expectedOK: true, expectedSize: 2},
		{name: "empty", keys: nil, calls: 2, expectedKey: "", expectedIdx: 0, expectedOK: false, expectedSize: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rotator := NewKeyRotator(tt.keys)
			var key string
			var ok bool
			for i := 0; i < tt.calls; i++ {
				key, ok = rotator.Next()
			}
			if key != tt.expectedKey || ok != tt.expectedOK {
				t.Errorf("Next() = %q, %v, expected %q, %v", key, ok, tt.expectedKey, tt.expectedOK)
			}
			if rotator.Index() != tt.expectedIdx {
				t.Errorf("Index() = %d, expected %d", rotator.Index(), tt.expectedIdx)
			}
			if rotator.Count() != tt.expectedSize {
				t.Errorf("Count() = %d, expected %d", rotator.Count(), tt.expectedSize)
			}
			current, _ := rotator.Current()
			if current != tt.expectedKey {
				t.Errorf("Current() = %q, expected %q", current, tt.expectedKey)
			}
		})
	}
}

func TestKeyRotatorConcurrentNext(t *testing.T) {
	rotator := NewKeyRotator([]string{"a", "b", "c"})
	var wg sync.WaitGroup
	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rotator.Next()
		}()
	}
	wg.Wait()
	if rotator.Index() != 0 {
		t.Errorf("Index() after 300 rotations = %d, expected 0", rotator.Index())
	}
}
