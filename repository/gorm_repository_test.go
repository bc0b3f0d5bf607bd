package repository

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMigrateUpgradesLegacySchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	db, err := gorm.Open(sqlite.Open(path), gormConfig("silent"))
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}
	legacy := []string{
		`CREATE TABLE users (email TEXT PRIMARY KEY, password_hash TEXT NOT NULL)`,
		`CREATE TABLE interviews (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at TEXT,
			last_question TEXT,
			setup_json TEXT,
			transcript_json TEXT
		)`,
		`INSERT INTO users (email, password_hash) VALUES ('alice', 'hash')`,
		`INSERT INTO interviews (id, user_id, created_at, last_question, setup_json, transcript_json)
			VALUES ('old-1', 'alice', '2023-01-01T00:00:00', 'Q', '{}', '[{"question":"Q","answer":"A"}]')`,
	}
	for _, stmt := range legacy {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("seed legacy schema: %v", err)
		}
	}

	store := NewGORMStore(db, "sqlite")
	if err := store.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, column := range []string{"last_question_audio_url", "mode", "summary_report"} {
		if !db.Migrator().HasColumn(&interviewRow{}, column) {
			t.Errorf("expected column %s after migration", column)
		}
	}

	ctx := context.Background()
	user, err := store.GetUser(ctx, "alice")
	if err != nil || user == nil || user.PasswordHash != "hash" {
		t.Errorf("GetUser() after migration = %+v, %v", user, err)
	}
	interview, err := store.GetInterview(ctx, "old-1")
	if err != nil || interview == nil {
		t.Fatalf("GetInterview() after migration = %v, %v", interview, err)
	}
	if interview.Mode != "training" || len(interview.Transcript) != 2 {
		t.Errorf("legacy interview = %+v", interview)
	}
}

func TestFromRowDegradesMalformedColumns(t *testing.T) {
	summary := "plain summary text"
	row := &interviewRow{
		ID:             "x",
		UserID:         "alice",
		SetupJSON:      "{not json",
		TranscriptJSON: "just a string",
		SummaryReport:  &summary,
	}
	interview := fromRow(row)
	if len(interview.Setup) != 0 {
		t.Errorf("Setup = %v, expected empty", interview.Setup)
	}
	if interview.Transcript == nil || len(interview.Transcript) != 0 {
		t.Errorf("Transcript = %#v, expected empty", interview.Transcript)
	}
	if interview.SummaryReport == nil || interview.SummaryReport.Text != "plain summary text" {
		t.Errorf("SummaryReport = %+v", interview.SummaryReport)
	}
}

func TestFromRowTranscriptColumn(t *testing.T) {
	tests := []struct {
		name      string
		column    string
		wantTurns int
	}{
		{"empty column", "", 0},
		{"truncated json", `[{"role":"ai","content":"Q1"}`, 0},
		{"bare text", "just a string", 0},
		{"canonical turns", `[{"role":"ai","content":"Q1"},{"role":"user","content":"A1"}]`, 2},
		{"json string value", `"free text"`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interview := fromRow(&interviewRow{ID: "x", UserID: "alice", TranscriptJSON: tt.column})
			if interview.Transcript == nil {
				t.Fatal("Transcript is nil")
			}
			if len(interview.Transcript) != tt.wantTurns {
				t.Errorf("len(Transcript) = %d, want %d: %+v", len(interview.Transcript), tt.wantTurns, interview.Transcript)
			}
		})
	}
}
