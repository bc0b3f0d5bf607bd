package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/krshsl/mensetsu/backend/models"
	"github.com/krshsl/mensetsu/backend/normalizer"
)

// Store persists users and interviews. Every transcript and summary passes
// through the normalizer on the way in and on the way out, and every value
// returned is a copy the caller may mutate freely.
type Store interface {
	CreateUser(ctx context.Context, userID, passwordHash string) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	CreateInterview(ctx context.Context, userID string, payload models.InterviewPayload) (string, error)
	GetInterview(ctx context.Context, id string) (*models.Interview, error)
	UpdateInterview(ctx context.Context, id string, update models.InterviewUpdate) error
	AppendTranscriptEntry(ctx context.Context, id string, entry any) error
	ListInterviews(ctx context.Context, userID string) ([]models.Interview, error)
	ClearInterviews(ctx context.Context, userID string) error

	Name() string
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a Store backend.
type Config struct {
	UseInMemory  bool
	SQLitePath   string
	DatabaseURL  string
	MaxOpenConns int
	LogLevel     string
	Firestore    FirestoreConfig
}

// FirestoreConfig configures the cloud document store.
type FirestoreConfig struct {
	ProjectID            string
	CredentialsFile      string
	UsersCollection      string
	InterviewsCollection string
}

// Enabled reports whether enough settings are present to try Firestore.
func (c FirestoreConfig) Enabled() bool {
	return c.ProjectID != "" && !isPlaceholder(c.ProjectID) && !isPlaceholder(c.CredentialsFile)
}

var placeholderMarkers = []string{
	"your-account",
	"your-primary-or-secondary-key",
	"your-project",
	"change-me",
}

func isPlaceholder(value string) bool {
	lower := strings.ToLower(value)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Open builds the backend named by cfg. An unusable sqlite path is an error;
// a failing postgres or document store degrades to memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch {
	case cfg.UseInMemory:
		slog.Info("Using in-memory store")
		return NewMemoryStore(), nil
	case cfg.SQLitePath != "":
		store, err := OpenSQLite(cfg.SQLitePath, cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil
	case cfg.DatabaseURL != "":
		store, err := OpenPostgres(ctx, cfg.DatabaseURL, cfg.MaxOpenConns, cfg.LogLevel)
		if err != nil {
			slog.Warn("Falling back to in-memory store", "backend", "postgres", "error", err)
			return NewMemoryStore(), nil
		}
		return store, nil
	case cfg.Firestore.Enabled():
		store, err := OpenFirestore(ctx, cfg.Firestore)
		if err != nil {
			slog.Warn("Falling back to in-memory store", "backend", "firestore", "error", err)
			return NewMemoryStore(), nil
		}
		return store, nil
	}
	slog.Info("No persistent store configured, using in-memory store")
	return NewMemoryStore(), nil
}

// newInterview builds the canonical record for a create call.
func newInterview(id, userID string, payload models.InterviewPayload) *models.Interview {
	return &models.Interview{
		ID:                   id,
		UserID:               userID,
		CreatedAt:            payload.CreatedAt,
		Mode:                 models.NormalizeMode(payload.Mode),
		Setup:                models.CloneSetup(payload.Setup),
		Transcript:           normalizer.Transcript(payload.Transcript),
		LastQuestion:         payload.LastQuestion,
		LastQuestionAudioURL: payload.LastQuestionAudioURL,
		SummaryReport:        normalizer.Summary(payload.SummaryReport),
	}
}

// applyUpdate merges update into interview in place.
func applyUpdate(interview *models.Interview, update models.InterviewUpdate) {
	if update.LastQuestion != nil {
		interview.LastQuestion = *update.LastQuestion
	}
	if update.LastQuestionAudioURL != nil {
		interview.LastQuestionAudioURL = *update.LastQuestionAudioURL
	}
	if update.Mode != nil {
		interview.Mode = models.NormalizeMode(*update.Mode)
	}
	if update.Setup != nil {
		interview.Setup = models.CloneSetup(update.Setup)
	}
	if update.Transcript != nil {
		interview.Transcript = normalizer.Transcript(update.Transcript)
	}
	if update.SummaryReport != nil {
		interview.SummaryReport = normalizer.Summary(update.SummaryReport)
	}
}

// appendEntry appends entry and re-normalizes the whole transcript.
func appendEntry(interview *models.Interview, entry any) {
	raw := make([]any, 0, len(interview.Transcript)+1)
	for _, turn := range interview.Transcript {
		raw = append(raw, turn)
	}
	raw = append(raw, entry)
	interview.Transcript = normalizer.Transcript(raw)
}

// canonicalize re-normalizes a record read back from a backend.
func canonicalize(interview *models.Interview) {
	interview.Mode = models.NormalizeMode(interview.Mode)
	interview.Transcript = normalizer.Transcript(interview.Transcript)
	if interview.SummaryReport != nil {
		interview.SummaryReport = normalizer.Summary(interview.SummaryReport)
	}
	if interview.Setup == nil {
		interview.Setup = map[string]any{}
	}
}

// sortNewestFirst orders by created_at descending using string comparison.
func sortNewestFirst(interviews []models.Interview) {
	slices.SortStableFunc(interviews, func(a, b models.Interview) int {
		return strings.Compare(b.CreatedAt, a.CreatedAt)
	})
}

func notFound(id string) error {
	return fmt.Errorf("interview %s: %w", id, models.ErrNotFound)
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
