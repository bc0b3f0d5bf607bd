package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/krshsl/mensetsu/backend/models"
	"github.com/krshsl/mensetsu/backend/normalizer"
)

// DocumentCollection is the slice of a document database the DocumentStore
// needs. Versions are opaque tokens returned by Get and checked by Replace.
type DocumentCollection interface {
	// Create fails with models.ErrConflict when id already exists.
	Create(ctx context.Context, id string, doc map[string]any) error
	// Get fails with models.ErrNotFound when id is absent.
	Get(ctx context.Context, id string) (map[string]any, string, error)
	// Replace overwrites id. A non-empty version that no longer matches
	// fails with models.ErrConflict.
	Replace(ctx context.Context, id string, doc map[string]any, version string) error
	Delete(ctx context.Context, id string) error
	QueryByField(ctx context.Context, field string, value any) ([]map[string]any, error)
}

// DocumentStore keeps users and interviews as whole documents. Updates read,
// merge in memory and replace with the read version as a precondition, so a
// concurrent writer causes models.ErrConflict instead of a lost update.
type DocumentStore struct {
	name       string
	users      DocumentCollection
	interviews DocumentCollection
	ping       func(ctx context.Context) error
	close      func() error
}

func NewDocumentStore(name string, users, interviews DocumentCollection) *DocumentStore {
	return &DocumentStore{name: name, users: users, interviews: interviews}
}

func (s *DocumentStore) Name() string { return s.name }

func (s *DocumentStore) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *DocumentStore) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func (s *DocumentStore) CreateUser(ctx context.Context, userID, passwordHash string) error {
	doc := map[string]any{
		"id":            userID,
		"userId":        userID,
		"user_id":       userID,
		"password_hash": passwordHash,
	}
	if err := s.users.Create(ctx, userID, doc); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return fmt.Errorf("user %s: %w", userID, models.ErrConflict)
		}
		slog.Error("Failed to create user", "error", err, "store", s.name)
		return fmt.Errorf("failed to create user: %w", err)
	}
	slog.Info("User created", "user_id", userID, "store", s.name)
	return nil
}

func (s *DocumentStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	doc, _, err := s.users.Get(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		slog.Error("Failed to get user", "error", err, "user_id", userID)
		return nil, err
	}
	return &models.User{
		UserID:       docString(doc["user_id"], userID),
		PasswordHash: docString(doc["password_hash"], ""),
	}, nil
}

func (s *DocumentStore) CreateInterview(ctx context.Context, userID string, payload models.InterviewPayload) (string, error) {
	interview := newInterview(uuid.NewString(), userID, payload)
	doc, err := toDocument(interview)
	if err != nil {
		return "", err
	}
	if err := s.interviews.Create(ctx, interview.ID, doc); err != nil {
		slog.Error("Failed to create interview", "error", err, "user_id", userID)
		return "", fmt.Errorf("failed to create interview: %w", err)
	}
	slog.Info("Interview created", "interview_id", interview.ID, "user_id", userID, "store", s.name)
	return interview.ID, nil
}

func (s *DocumentStore) GetInterview(ctx context.Context, id string) (*models.Interview, error) {
	interview, _, err := s.load(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return interview, nil
}

func (s *DocumentStore) load(ctx context.Context, id string) (*models.Interview, string, error) {
	doc, version, err := s.interviews.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, "", notFound(id)
		}
		slog.Error("Failed to get interview", "error", err, "interview_id", id)
		return nil, "", err
	}
	return fromDocument(id, doc), version, nil
}

func (s *DocumentStore) UpdateInterview(ctx context.Context, id string, update models.InterviewUpdate) error {
	return s.modify(ctx, id, func(interview *models.Interview) {
		applyUpdate(interview, update)
	})
}

func (s *DocumentStore) AppendTranscriptEntry(ctx context.Context, id string, entry any) error {
	return s.modify(ctx, id, func(interview *models.Interview) {
		appendEntry(interview, entry)
	})
}

func (s *DocumentStore) modify(ctx context.Context, id string, change func(*models.Interview)) error {
	interview, version, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	change(interview)
	doc, err := toDocument(interview)
	if err != nil {
		return err
	}
	if err := s.interviews.Replace(ctx, id, doc, version); err != nil {
		if errors.Is(err, models.ErrConflict) {
			slog.Warn("Concurrent interview update rejected", "interview_id", id)
		} else {
			slog.Error("Failed to replace interview", "error", err, "interview_id", id)
		}
		return fmt.Errorf("failed to update interview %s: %w", id, err)
	}
	return nil
}

func (s *DocumentStore) ListInterviews(ctx context.Context, userID string) ([]models.Interview, error) {
	docs, err := s.interviews.QueryByField(ctx, "userId", userID)
	if err != nil {
		slog.Error("Failed to list interviews", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to list interviews: %w", err)
	}
	results := make([]models.Interview, 0, len(docs))
	for _, doc := range docs {
		results = append(results, *fromDocument(docString(doc["id"], ""), doc))
	}
	sortNewestFirst(results)
	return results, nil
}

func (s *DocumentStore) ClearInterviews(ctx context.Context, userID string) error {
	docs, err := s.interviews.QueryByField(ctx, "userId", userID)
	if err != nil {
		return fmt.Errorf("failed to list interviews: %w", err)
	}
	for _, doc := range docs {
		id := docString(doc["id"], "")
		if id == "" {
			continue
		}
		if err := s.interviews.Delete(ctx, id); err != nil && !isNotFound(err) {
			slog.Error("Failed to delete interview", "error", err, "interview_id", id)
			return fmt.Errorf("failed to delete interview %s: %w", id, err)
		}
	}
	slog.Info("Interviews cleared", "user_id", userID, "count", len(docs), "store", s.name)
	return nil
}

func toDocument(interview *models.Interview) (map[string]any, error) {
	var summary any
	if interview.SummaryReport != nil {
		plain, err := toPlain(interview.SummaryReport)
		if err != nil {
			return nil, err
		}
		summary = plain
	}
	transcript, err := toPlain(interview.Transcript)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":                      interview.ID,
		"userId":                  interview.UserID,
		"created_at":              interview.CreatedAt,
		"mode":                    interview.Mode,
		"setup":                   models.CloneSetup(interview.Setup),
		"transcript":              transcript,
		"last_question":           interview.LastQuestion,
		"last_question_audio_url": interview.LastQuestionAudioURL,
		"summary_report":          summary,
	}, nil
}

// fromDocument rebuilds an interview, ignoring metadata keys that start with
// an underscore.
func fromDocument(id string, doc map[string]any) *models.Interview {
	clean := make(map[string]any, len(doc))
	for key, value := range doc {
		if strings.HasPrefix(key, "_") {
			continue
		}
		clean[key] = value
	}

	interview := &models.Interview{
		ID:                   docString(clean["id"], id),
		UserID:               docString(clean["userId"], ""),
		CreatedAt:            docString(clean["created_at"], docString(clean["createdAt"], "")),
		Mode:                 models.NormalizeMode(docString(clean["mode"], "")),
		Transcript:           normalizer.Transcript(clean["transcript"]),
		LastQuestion:         docString(clean["last_question"], ""),
		LastQuestionAudioURL: docString(clean["last_question_audio_url"], ""),
		SummaryReport:        normalizer.Summary(clean["summary_report"]),
		Setup:                map[string]any{},
	}
	if setup, ok := clean["setup"].(map[string]any); ok {
		interview.Setup = models.CloneSetup(setup)
	}
	return interview
}

// toPlain converts typed values into the maps and slices document databases
// store natively.
func toPlain(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document field: %w", err)
	}
	var plain any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, fmt.Errorf("failed to decode document field: %w", err)
	}
	return plain, nil
}

func docString(v any, fallback string) string {
	switch val := v.(type) {
	case nil:
		return fallback
	case string:
		if val == "" {
			return fallback
		}
		return val
	}
	return fmt.Sprint(v)
}
