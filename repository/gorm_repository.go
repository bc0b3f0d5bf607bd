package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/krshsl/mensetsu/backend/models"
	"github.com/krshsl/mensetsu/backend/normalizer"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// interviewRow is the relational shape of an interview. Setup, transcript and
// summary are stored as JSON text.
type interviewRow struct {
	ID                   string  `gorm:"column:id;primaryKey"`
	UserID               string  `gorm:"column:user_id;index;not null"`
	CreatedAt            string  `gorm:"column:created_at;autoCreateTime:false"`
	LastQuestion         *string `gorm:"column:last_question"`
	LastQuestionAudioURL *string `gorm:"column:last_question_audio_url"`
	Mode                 string  `gorm:"column:mode;not null;default:training"`
	SummaryReport        *string `gorm:"column:summary_report"`
	SetupJSON            string  `gorm:"column:setup_json"`
	TranscriptJSON       string  `gorm:"column:transcript_json"`
}

func (interviewRow) TableName() string {
	return "interviews"
}

// GORMStore persists to sqlite or postgres through gorm.
type GORMStore struct {
	db   *gorm.DB
	name string
	// mu serializes mutations so read-modify-write appends never interleave.
	mu   sync.Mutex
	pool *pgxpool.Pool
}

func NewGORMStore(db *gorm.DB, name string) *GORMStore {
	return &GORMStore{db: db, name: name}
}

// OpenSQLite opens (creating if needed) the database file at path and
// migrates it.
func OpenSQLite(path, logLevel string) (*GORMStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), gormConfig(logLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store := NewGORMStore(db, "sqlite")
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	slog.Info("Connected to sqlite", "path", path)
	return store, nil
}

// OpenPostgres connects through a pgx pool and migrates the schema.
func OpenPostgres(ctx context.Context, url string, maxOpenConns int, logLevel string) (*GORMStore, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxOpenConns > 0 {
		poolConfig.MaxConns = int32(maxOpenConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), gormConfig(logLevel))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store := NewGORMStore(db, "postgres")
	store.pool = pool
	if err := store.Migrate(); err != nil {
		pool.Close()
		return nil, err
	}
	slog.Info("Connected to postgres")
	return store, nil
}

func gormConfig(level string) *gorm.Config {
	logLevel := logger.Silent
	switch strings.ToLower(level) {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}
	return &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *GORMStore) Name() string { return s.name }

// DB exposes the underlying gorm handle.
func (s *GORMStore) DB() *gorm.DB { return s.db }

func (s *GORMStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	err = sqlDB.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// Migrate creates missing tables and upgrades older layouts in place: the
// users.email column becomes user_id and later interview columns are added.
func (s *GORMStore) Migrate() error {
	migrator := s.db.Migrator()
	if migrator.HasTable(&models.User{}) &&
		migrator.HasColumn(&models.User{}, "email") &&
		!migrator.HasColumn(&models.User{}, "user_id") {
		if err := migrator.RenameColumn(&models.User{}, "email", "user_id"); err != nil {
			return fmt.Errorf("failed to rename users.email: %w", err)
		}
		slog.Info("Migrated users table", "from", "email", "to", "user_id")
	}
	if err := s.db.AutoMigrate(&models.User{}, &interviewRow{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// User operations
func (s *GORMStore) CreateUser(ctx context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := &models.User{UserID: userID, PasswordHash: passwordHash}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", userID, models.ErrConflict)
		}
		slog.Error("Failed to create user", "error", err)
		return fmt.Errorf("failed to create user: %w", err)
	}
	slog.Info("User created", "user_id", userID, "store", s.name)
	return nil
}

func (s *GORMStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get user", "error", err, "user_id", userID)
		return nil, err
	}
	return &user, nil
}

// Interview operations
func (s *GORMStore) CreateInterview(ctx context.Context, userID string, payload models.InterviewPayload) (string, error) {
	interview := newInterview(uuid.NewString(), userID, payload)
	row, err := toRow(interview)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		slog.Error("Failed to create interview", "error", err, "user_id", userID)
		return "", fmt.Errorf("failed to create interview: %w", err)
	}
	slog.Info("Interview created", "interview_id", row.ID, "user_id", userID, "store", s.name)
	return row.ID, nil
}

func (s *GORMStore) GetInterview(ctx context.Context, id string) (*models.Interview, error) {
	row, err := s.findRow(ctx, id)
	if err != nil || row == nil {
		return nil, err
	}
	return fromRow(row), nil
}

func (s *GORMStore) findRow(ctx context.Context, id string) (*interviewRow, error) {
	var row interviewRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get interview", "error", err, "interview_id", id)
		return nil, err
	}
	return &row, nil
}

func (s *GORMStore) UpdateInterview(ctx context.Context, id string, update models.InterviewUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.findRow(ctx, id)
	if err != nil {
		return err
	}
	if row == nil {
		return notFound(id)
	}
	if update.IsEmpty() {
		return nil
	}

	columns := map[string]any{}
	if update.LastQuestion != nil {
		columns["last_question"] = *update.LastQuestion
	}
	if update.LastQuestionAudioURL != nil {
		columns["last_question_audio_url"] = *update.LastQuestionAudioURL
	}
	if update.Mode != nil {
		columns["mode"] = models.NormalizeMode(*update.Mode)
	}
	if update.Setup != nil {
		setup, err := encodeColumn(models.CloneSetup(update.Setup))
		if err != nil {
			return err
		}
		columns["setup_json"] = setup
	}
	if update.Transcript != nil {
		transcript, err := encodeColumn(normalizer.Transcript(update.Transcript))
		if err != nil {
			return err
		}
		columns["transcript_json"] = transcript
	}
	if update.SummaryReport != nil {
		summary, err := encodeSummary(normalizer.Summary(update.SummaryReport))
		if err != nil {
			return err
		}
		columns["summary_report"] = summary
	}

	if err := s.db.WithContext(ctx).Model(&interviewRow{}).Where("id = ?", id).Updates(columns).Error; err != nil {
		slog.Error("Failed to update interview", "error", err, "interview_id", id)
		return fmt.Errorf("failed to update interview: %w", err)
	}
	return nil
}

func (s *GORMStore) AppendTranscriptEntry(ctx context.Context, id string, entry any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.findRow(ctx, id)
	if err != nil {
		return err
	}
	if row == nil {
		return notFound(id)
	}
	interview := fromRow(row)
	appendEntry(interview, entry)
	transcript, err := encodeColumn(interview.Transcript)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(&interviewRow{}).Where("id = ?", id).Update("transcript_json", transcript).Error; err != nil {
		slog.Error("Failed to append transcript entry", "error", err, "interview_id", id)
		return fmt.Errorf("failed to append transcript entry: %w", err)
	}
	return nil
}

func (s *GORMStore) ListInterviews(ctx context.Context, userID string) ([]models.Interview, error) {
	var rows []interviewRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&rows).Error; err != nil {
		slog.Error("Failed to list interviews", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to list interviews: %w", err)
	}
	results := make([]models.Interview, 0, len(rows))
	for i := range rows {
		results = append(results, *fromRow(&rows[i]))
	}
	return results, nil
}

func (s *GORMStore) ClearInterviews(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&interviewRow{})
	if result.Error != nil {
		slog.Error("Failed to clear interviews", "error", result.Error, "user_id", userID)
		return fmt.Errorf("failed to clear interviews: %w", result.Error)
	}
	slog.Info("Interviews cleared", "user_id", userID, "count", result.RowsAffected, "store", s.name)
	return nil
}

func toRow(interview *models.Interview) (*interviewRow, error) {
	setup, err := encodeColumn(interview.Setup)
	if err != nil {
		return nil, err
	}
	transcript, err := encodeColumn(interview.Transcript)
	if err != nil {
		return nil, err
	}
	summary, err := encodeSummary(interview.SummaryReport)
	if err != nil {
		return nil, err
	}
	lastQuestion := interview.LastQuestion
	lastAudio := interview.LastQuestionAudioURL
	return &interviewRow{
		ID:                   interview.ID,
		UserID:               interview.UserID,
		CreatedAt:            interview.CreatedAt,
		LastQuestion:         &lastQuestion,
		LastQuestionAudioURL: &lastAudio,
		Mode:                 interview.Mode,
		SummaryReport:        summary,
		SetupJSON:            setup,
		TranscriptJSON:       transcript,
	}, nil
}

// fromRow decodes a row. Malformed JSON columns degrade rather than fail:
// an unreadable transcript is kept as text and an unreadable setup is empty.
func fromRow(row *interviewRow) *models.Interview {
	interview := &models.Interview{
		ID:        row.ID,
		UserID:    row.UserID,
		CreatedAt: row.CreatedAt,
		Mode:      row.Mode,
		Setup:     map[string]any{},
	}
	if row.LastQuestion != nil {
		interview.LastQuestion = *row.LastQuestion
	}
	if row.LastQuestionAudioURL != nil {
		interview.LastQuestionAudioURL = *row.LastQuestionAudioURL
	}
	if row.SetupJSON != "" {
		if err := json.Unmarshal([]byte(row.SetupJSON), &interview.Setup); err != nil {
			slog.Warn("Discarding unreadable setup", "interview_id", row.ID, "error", err)
			interview.Setup = map[string]any{}
		}
	}

	var rawTranscript any
	if row.TranscriptJSON != "" {
		if err := json.Unmarshal([]byte(row.TranscriptJSON), &rawTranscript); err != nil {
			slog.Warn("Discarding unreadable transcript", "interview_id", row.ID, "error", err)
			rawTranscript = nil
		}
	}
	interview.Transcript = normalizer.Transcript(rawTranscript)
	if row.SummaryReport != nil {
		interview.SummaryReport = normalizer.Summary(*row.SummaryReport)
	}
	interview.Mode = models.NormalizeMode(interview.Mode)
	return interview
}

func encodeColumn(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode column: %w", err)
	}
	return string(data), nil
}

func encodeSummary(summary *models.Summary) (*string, error) {
	if summary == nil {
		return nil, nil
	}
	encoded, err := encodeColumn(summary)
	if err != nil {
		return nil, err
	}
	return &encoded, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
