package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/krshsl/mensetsu/backend/models"
)

// MemoryStore keeps everything in process. It backs tests and local runs.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]models.User
	interviews map[string]*models.Interview
	nextID     int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]models.User),
		interviews: make(map[string]*models.Interview),
	}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateUser(ctx context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[userID]; exists {
		return fmt.Errorf("user %s: %w", userID, models.ErrConflict)
	}
	s.users[userID] = models.User{UserID: userID, PasswordHash: passwordHash}
	slog.Info("User created", "user_id", userID, "store", s.Name())
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (s *MemoryStore) CreateInterview(ctx context.Context, userID string, payload models.InterviewPayload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := fmt.Sprintf("interview_%d", s.nextID)
	s.interviews[id] = newInterview(id, userID, payload)
	slog.Info("Interview created", "interview_id", id, "user_id", userID, "store", s.Name())
	return id, nil
}

func (s *MemoryStore) GetInterview(ctx context.Context, id string) (*models.Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	interview, ok := s.interviews[id]
	if !ok {
		return nil, nil
	}
	out := interview.Clone()
	canonicalize(out)
	return out, nil
}

func (s *MemoryStore) UpdateInterview(ctx context.Context, id string, update models.InterviewUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	interview, ok := s.interviews[id]
	if !ok {
		return notFound(id)
	}
	applyUpdate(interview, update)
	return nil
}

func (s *MemoryStore) AppendTranscriptEntry(ctx context.Context, id string, entry any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	interview, ok := s.interviews[id]
	if !ok {
		return notFound(id)
	}
	appendEntry(interview, entry)
	return nil
}

func (s *MemoryStore) ListInterviews(ctx context.Context, userID string) ([]models.Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []models.Interview{}
	for _, interview := range s.interviews {
		if interview.UserID != userID {
			continue
		}
		out := interview.Clone()
		canonicalize(out)
		results = append(results, *out)
	}
	sortNewestFirst(results)
	return results, nil
}

func (s *MemoryStore) ClearInterviews(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, interview := range s.interviews {
		if interview.UserID == userID {
			delete(s.interviews, id)
			removed++
		}
	}
	slog.Info("Interviews cleared", "user_id", userID, "count", removed, "store", s.Name())
	return nil
}
