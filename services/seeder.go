package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/krshsl/mensetsu/backend/models"
	"github.com/krshsl/mensetsu/backend/repository"
	"golang.org/x/crypto/bcrypt"
)

const (
	DemoUserID   = "demo"
	demoPassword = "demo-password"
)

// DatabaseSeeder creates a demo account with one finished interview so a
// fresh local install has something to show on the dashboard.
type DatabaseSeeder struct {
	store repository.Store
}

func NewDatabaseSeeder(store repository.Store) *DatabaseSeeder {
	return &DatabaseSeeder{store: store}
}

// SeedDatabase is idempotent: an existing demo user means seeding already
// ran.
func (s *DatabaseSeeder) SeedDatabase(ctx context.Context) error {
	existing, err := s.store.GetUser(ctx, DemoUserID)
	if err != nil {
		return fmt.Errorf("failed to check demo user: %w", err)
	}
	if existing != nil {
		slog.Info("Database seeding already completed, skipping")
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.store.CreateUser(ctx, DemoUserID, string(hashed)); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil
		}
		return fmt.Errorf("failed to seed demo user: %w", err)
	}

	// Stored the way older clients wrote records: question/answer/feedback
	// entries and a JSON-encoded summary.
	id, err := s.store.CreateInterview(ctx, DemoUserID, models.InterviewPayload{
		CreatedAt: "2024-04-01T10:00:00",
		Mode:      models.ModeInterview,
		Setup:     map[string]any{"interviewType": "一次面接", "targetIndustry": "IT / エンジニア"},
		Transcript: []any{
			map[string]any{
				"question":  defaultFirstQuestion,
				"answer":    "山田太郎と申します。大学では情報工学を専攻し、Webアプリ開発のサークルで代表を務めました。",
				"timestamp": "2024-04-01T10:00:00",
			},
			map[string]any{
				"question":  defaultNextQuestion,
				"answer":    "ユーザーの課題を技術で解決する仕事に携わりたいと考え、志望いたしました。",
				"timestamp": "2024-04-01T10:06:00",
			},
			map[string]any{"role": "ai", "content": "最後に、何か質問はありますか？", "timestamp": "2024-04-01T10:12:00"},
		},
		LastQuestion: "最後に、何か質問はありますか？",
		SummaryReport: `{"text": "落ち着いて受け答えができていました。具体的な数字を交えると説得力が増します。",
			"overallScore": 72,
			"skills": {"logic": 70, "specificity": 60, "expression": 78, "proactive": 74, "selfaware": 68}}`,
	})
	if err != nil {
		return fmt.Errorf("failed to seed demo interview: %w", err)
	}

	slog.Info("Database seeded", "user_id", DemoUserID, "interview_id", id)
	return nil
}
