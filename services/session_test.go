package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/krshsl/mensetsu/backend/models"
	"github.com/krshsl/mensetsu/backend/repository"
)

type fakeGenerator struct {
	mu         sync.Mutex
	text       string
	textErr    error
	structured map[string]any
	structErr  error
	prompts    []string
}

func (f *fakeGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.text, f.textErr
}

func (f *fakeGenerator) GenerateStructured(ctx context.Context, prompt string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.structured, f.structErr
}

type fakeSpeech struct {
	url           string
	synthErr      error
	transcript    string
	transcribeErr error
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text string) (string, error) {
	return f.url, f.synthErr
}

func (f *fakeSpeech) Transcribe(ctx context.Context, audio []byte, contentType string) (string, error) {
	return f.transcript, f.transcribeErr
}

var errModelDown = errors.New("model down")

func newTestSession(gen TextGenerator, speech SpeechService) (*SessionService, repository.Store) {
	store := repository.NewMemoryStore()
	svc := NewSessionService(store, gen, speech, NewKeyRotator([]string{"k1", "k2"}), nil)
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	return svc, store
}

func startInterview(t *testing.T, svc *SessionService, userID, mode string) string {
	t.Helper()
	result, err := svc.Start(context.Background(), userID, StartRequest{
		InterviewType:  "一次面接",
		TargetIndustry: "IT",
		Mode:           mode,
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return result.InterviewID
}

func TestSessionStart(t *testing.T) {
	tests := []struct {
		name             string
		gen              TextGenerator
		speech           SpeechService
		mode             string
		expectedQuestion string
		expectedMode     string
		expectedAudio    string
		expectedErr      error
	}{
		{name: "no generator uses default", mode: "training", expectedQuestion: defaultFirstQuestion, expectedMode: "training"},
		{name: "blank mode is training", mode: "", expectedQuestion: defaultFirstQuestion, expectedMode: "training"},
		{name: "mode is case folded", mode: "Interview", expectedQuestion: defaultFirstQuestion, expectedMode: "interview"},
		{name: "generated question with audio", gen: &fakeGenerator{text: " 志望理由を教えてください。\n"}, speech: &fakeSpeech{url: "/static/audio/tts-1.mp3"}, mode: "interview", expectedQuestion: "志望理由を教えてください。", expectedMode: "interview", expectedAudio: "/static/audio/tts-1.mp3"},
		{name: "generator failure falls back", gen: &fakeGenerator{textErr: errModelDown}, mode: "training", expectedQuestion: defaultFirstQuestion, expectedMode: "training"},
		{name: "speech failure leaves audio empty", speech: &fakeSpeech{synthErr: errModelDown}, mode: "training", expectedQuestion: defaultFirstQuestion, expectedMode: "training"},
		{name: "unknown mode", mode: "casual", expectedErr: models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestSession(tt.gen, tt.speech)
			result, err := svc.Start(context.Background(), "alice", StartRequest{InterviewType: "二次面接", TargetIndustry: "金融", Mode: tt.mode})
			if tt.expectedErr != nil {
				if !errors.Is(err, tt.expectedErr) {
					t.Fatalf("Start() error = %v, expected %v", err, tt.expectedErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			if result.QuestionText != tt.expectedQuestion || result.Mode != tt.expectedMode || result.AudioURL != tt.expectedAudio {
				t.Errorf("Start() = %+v", result)
			}

			interview, err := store.GetInterview(context.Background(), result.InterviewID)
			if err != nil || interview == nil {
				t.Fatalf("GetInterview() = %v, %v", interview, err)
			}
			if interview.CreatedAt != "2024-05-01T09:00:00" {
				t.Errorf("CreatedAt = %q", interview.CreatedAt)
			}
			if len(interview.Transcript) != 1 || interview.Transcript[0].Role != models.RoleAI || interview.Transcript[0].Type != "question" {
				t.Errorf("Transcript = %+v", interview.Transcript)
			}
			if interview.Setup["interviewType"] != "二次面接" || interview.Setup["targetIndustry"] != "金融" {
				t.Errorf("Setup = %v", interview.Setup)
			}
			if interview.LastQuestion != tt.expectedQuestion {
				t.Errorf("LastQuestion = %q", interview.LastQuestion)
			}
			if svc.rotator.Index() != 1 {
				t.Errorf("rotator index = %d, expected 1", svc.rotator.Index())
			}
		})
	}
}

func TestFirstQuestionPromptPersona(t *testing.T) {
	gen := &fakeGenerator{text: "質問"}
	svc, _ := newTestSession(gen, nil)
	startInterview(t, svc, "alice", "training")

	if len(gen.prompts) != 1 || !strings.Contains(gen.prompts[0], personaFirst) || !strings.Contains(gen.prompts[0], "IT") {
		t.Errorf("prompt does not carry persona and industry: %v", gen.prompts)
	}
}

func TestProcessAnswerTraining(t *testing.T) {
	gen := &fakeGenerator{text: "```json\n{\"feedback\": \"結論から話しましょう。\\n具体例も。\", \"next_question\": \"強みは何ですか？\"}\n```"}
	svc, store := newTestSession(gen, &fakeSpeech{url: "/static/audio/tts-2.mp3"})
	id := startInterview(t, svc, "alice", "training")

	result, err := svc.ProcessAnswer(context.Background(), "alice", id, "山田です。")
	if err != nil {
		t.Fatalf("ProcessAnswer() error = %v", err)
	}
	if result.Feedback != "結論から話しましょう。\n具体例も。" || result.NextQuestionText != "強みは何ですか？" || result.NextQuestionAudioURL != "/static/audio/tts-2.mp3" {
		t.Errorf("ProcessAnswer() = %+v", result)
	}

	interview, _ := store.GetInterview(context.Background(), id)
	if len(interview.Transcript) != 4 {
		t.Fatalf("len(Transcript) = %d, expected 4: %+v", len(interview.Transcript), interview.Transcript)
	}
	answer := interview.Transcript[2]
	if answer.Role != models.RoleUser || answer.Content != "山田です。" {
		t.Errorf("answer turn = %+v", answer)
	}
	feedback := interview.Transcript[3]
	if feedback.Type != "feedback" || feedback.FeedbackSnippet != "結論から話しましょう。" || feedback.NextQuestion != "強みは何ですか？" {
		t.Errorf("feedback turn = %+v", feedback)
	}
	if interview.LastQuestion != "強みは何ですか？" || interview.LastQuestionAudioURL != "/static/audio/tts-2.mp3" {
		t.Errorf("last question = %q, %q", interview.LastQuestion, interview.LastQuestionAudioURL)
	}
}

func TestProcessAnswerTrainingFallbacks(t *testing.T) {
	tests := []struct {
		name             string
		gen              *fakeGenerator
		answer           string
		expectedFeedback string
		expectedQuestion string
	}{
		{name: "plain lines", gen: &fakeGenerator{text: "\nよく話せています。\n次に長所を教えてください。\n"}, answer: "回答", expectedFeedback: "よく話せています。", expectedQuestion: "次に長所を教えてください。"},
		{name: "json without keys", gen: &fakeGenerator{text: `{"other": 1}`}, answer: "回答", expectedFeedback: defaultFeedback, expectedQuestion: defaultNextQuestion},
		{name: "blank answer skips generator", gen: &fakeGenerator{textErr: errModelDown}, answer: "  ", expectedFeedback: placeholderFeedback, expectedQuestion: defaultNextQuestion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestSession(tt.gen, nil)
			id := startInterview(t, svc, "alice", "training")
			result, err := svc.ProcessAnswer(context.Background(), "alice", id, tt.answer)
			if err != nil {
				t.Fatalf("ProcessAnswer() error = %v", err)
			}
			if result.Feedback != tt.expectedFeedback || result.NextQuestionText != tt.expectedQuestion {
				t.Errorf("ProcessAnswer() = %+v", result)
			}
		})
	}
}

func TestProcessAnswerTrainingUpstreamFailure(t *testing.T) {
	gen := &fakeGenerator{text: "最初の質問"}
	svc, store := newTestSession(gen, nil)
	id := startInterview(t, svc, "alice", "training")
	gen.textErr = errModelDown

	if _, err := svc.ProcessAnswer(context.Background(), "alice", id, "回答"); !errors.Is(err, models.ErrUpstream) {
		t.Fatalf("ProcessAnswer() error = %v, expected ErrUpstream", err)
	}
	interview, _ := store.GetInterview(context.Background(), id)
	if len(interview.Transcript) != 1 {
		t.Errorf("len(Transcript) = %d, expected nothing persisted", len(interview.Transcript))
	}
}

func TestProcessAnswerInterview(t *testing.T) {
	gen := &fakeGenerator{text: `{"next_question": "前職での役割は？"}`}
	svc, store := newTestSession(gen, &fakeSpeech{url: "/static/audio/tts-3.mp3"})
	id := startInterview(t, svc, "alice", "interview")

	result, err := svc.ProcessAnswer(context.Background(), "alice", id, "よろしくお願いします。")
	if err != nil {
		t.Fatalf("ProcessAnswer() error = %v", err)
	}
	if result.Feedback != "" || result.NextQuestionText != "前職での役割は？" {
		t.Errorf("ProcessAnswer() = %+v", result)
	}

	interview, _ := store.GetInterview(context.Background(), id)
	if len(interview.Transcript) != 3 {
		t.Fatalf("len(Transcript) = %d, expected 3", len(interview.Transcript))
	}
	last := interview.Transcript[2]
	if last.Role != models.RoleAI || last.Type != "question" || last.AudioURL != "/static/audio/tts-3.mp3" {
		t.Errorf("question turn = %+v", last)
	}
	if !strings.Contains(gen.prompts[len(gen.prompts)-1], "候補者: よろしくお願いします。") {
		t.Errorf("history not passed to prompt")
	}
	if interview.LastQuestion != "前職での役割は？" {
		t.Errorf("LastQuestion = %q", interview.LastQuestion)
	}
}

func TestProcessAnswerInterviewUpstreamFailure(t *testing.T) {
	gen := &fakeGenerator{text: "最初の質問"}
	svc, store := newTestSession(gen, nil)
	id := startInterview(t, svc, "alice", "interview")
	gen.textErr = errModelDown

	_, err := svc.ProcessAnswer(context.Background(), "alice", id, "私の回答")
	if !errors.Is(err, models.ErrUpstream) {
		t.Fatalf("ProcessAnswer() error = %v, expected ErrUpstream", err)
	}

	interview, _ := store.GetInterview(context.Background(), id)
	if len(interview.Transcript) != 2 {
		t.Fatalf("len(Transcript) = %d, expected answer persisted", len(interview.Transcript))
	}
	if interview.Transcript[1].Role != models.RoleUser || interview.Transcript[1].Content != "私の回答" {
		t.Errorf("answer turn = %+v", interview.Transcript[1])
	}
	if interview.LastQuestion != "最初の質問" {
		t.Errorf("LastQuestion = %q, expected unchanged", interview.LastQuestion)
	}
}

func TestConcurrentTurnsKeepEveryAnswer(t *testing.T) {
	for _, mode := range []string{models.ModeInterview, models.ModeTraining} {
		t.Run(mode, func(t *testing.T) {
			svc, store := newTestSession(nil, nil)
			id := startInterview(t, svc, "alice", mode)

			const workers = 8
			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := svc.Chat(context.Background(), "alice", ChatRequest{InterviewID: id, UserMessage: "回答"})
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				if err != nil {
					t.Fatalf("Chat() error = %v", err)
				}
			}

			interview, _ := store.GetInterview(context.Background(), id)
			userTurns := 0
			for _, turn := range interview.Transcript {
				if turn.Role == models.RoleUser {
					userTurns++
				}
			}
			if userTurns != workers || len(interview.Transcript) != 1+2*workers {
				t.Errorf("got %d user turns in %d turns, expected %d in %d", userTurns, len(interview.Transcript), workers, 1+2*workers)
			}
		})
	}
}

func TestProcessAudio(t *testing.T) {
	tests := []struct {
		name           string
		speech         *fakeSpeech
		audio          []byte
		expectedAnswer string
		expectedErr    error
	}{
		{name: "transcribed", speech: &fakeSpeech{transcript: "音声の回答です"}, audio: []byte("data"), expectedAnswer: "音声の回答です"},
		{name: "empty transcript", speech: &fakeSpeech{transcript: " "}, audio: []byte("data"), expectedAnswer: audioAnswerPlaceholder},
		{name: "empty audio", speech: &fakeSpeech{transcript: "unused"}, audio: nil, expectedAnswer: audioAnswerPlaceholder},
		{name: "transcription failure", speech: &fakeSpeech{transcribeErr: errModelDown}, audio: []byte("data"), expectedErr: models.ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestSession(nil, tt.speech)
			id := startInterview(t, svc, "alice", "interview")

			_, err := svc.ProcessAudio(context.Background(), "alice", id, tt.audio, "audio/webm")
			if tt.expectedErr != nil {
				if !errors.Is(err, tt.expectedErr) {
					t.Fatalf("ProcessAudio() error = %v, expected %v", err, tt.expectedErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ProcessAudio() error = %v", err)
			}
			interview, _ := store.GetInterview(context.Background(), id)
			if got := interview.Transcript[1].Content; got != tt.expectedAnswer {
				t.Errorf("answer = %q, expected %q", got, tt.expectedAnswer)
			}
		})
	}
}

func TestChat(t *testing.T) {
	t.Run("training combines feedback and question", func(t *testing.T) {
		gen := &fakeGenerator{text: `{"feedback": "良いですね。", "next_question": "具体例は？"}`}
		svc, store := newTestSession(gen, nil)
		id := startInterview(t, svc, "alice", "training")

		result, err := svc.Chat(context.Background(), "alice", ChatRequest{InterviewID: id, UserMessage: " 頑張りました "})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		expected := "フィードバック：\n良いですね。\n\n次の質問：\n具体例は？"
		if result.AIMessageText != expected || result.AIMessage != expected {
			t.Errorf("AIMessageText = %q", result.AIMessageText)
		}
		if result.Feedback != "良いですね。" || result.NextQuestion != "具体例は？" || result.UserTranscript != "頑張りました" {
			t.Errorf("Chat() = %+v", result)
		}

		interview, _ := store.GetInterview(context.Background(), id)
		if len(interview.Transcript) != 3 {
			t.Fatalf("len(Transcript) = %d, expected 3", len(interview.Transcript))
		}
		if turn := interview.Transcript[2]; turn.Type != "feedback" || turn.Feedback != "良いですね。" || turn.FeedbackSnippet != "良いですね。" {
			t.Errorf("feedback turn = %+v", turn)
		}
	})

	t.Run("interview returns the question only", func(t *testing.T) {
		gen := &fakeGenerator{text: "最後に、何か質問はありますか？"}
		svc, _ := newTestSession(gen, nil)
		id := startInterview(t, svc, "alice", "interview")

		result, err := svc.Chat(context.Background(), "alice", ChatRequest{InterviewID: id, UserMessage: "はい"})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if result.Feedback != "" || result.AIMessageText != "最後に、何か質問はありますか？" {
			t.Errorf("Chat() = %+v", result)
		}
	})

	t.Run("upstream failure keeps the message", func(t *testing.T) {
		gen := &fakeGenerator{text: "最初"}
		svc, store := newTestSession(gen, nil)
		id := startInterview(t, svc, "alice", "training")
		gen.textErr = errModelDown

		if _, err := svc.Chat(context.Background(), "alice", ChatRequest{InterviewID: id, UserMessage: "こんにちは"}); !errors.Is(err, models.ErrUpstream) {
			t.Fatalf("Chat() error = %v, expected ErrUpstream", err)
		}
		interview, _ := store.GetInterview(context.Background(), id)
		if len(interview.Transcript) != 2 || interview.Transcript[1].Content != "こんにちは" {
			t.Errorf("Transcript = %+v", interview.Transcript)
		}
	})

	t.Run("validation", func(t *testing.T) {
		svc, _ := newTestSession(nil, nil)
		id := startInterview(t, svc, "alice", "training")
		for _, req := range []ChatRequest{{InterviewID: "", UserMessage: "x"}, {InterviewID: id, UserMessage: "  "}} {
			if _, err := svc.Chat(context.Background(), "alice", req); !errors.Is(err, models.ErrValidation) {
				t.Errorf("Chat(%+v) error = %v, expected ErrValidation", req, err)
			}
		}
	})
}

func TestFinish(t *testing.T) {
	t.Run("training mode rejected", func(t *testing.T) {
		svc, _ := newTestSession(nil, nil)
		id := startInterview(t, svc, "alice", "training")
		if _, err := svc.Finish(context.Background(), "alice", id); !errors.Is(err, models.ErrValidation) {
			t.Errorf("Finish() error = %v, expected ErrValidation", err)
		}
	})

	t.Run("generated summary is normalized", func(t *testing.T) {
		gen := &fakeGenerator{
			text: "次の質問",
			structured: map[string]any{
				"summaryText":  "全体的に良好です。",
				"overallScore": 150.0,
				"skills":       map[string]any{"logic": 80.0, "expression": "72.46", "charm": 99.0},
			},
		}
		svc, store := newTestSession(gen, nil)
		id := startInterview(t, svc, "alice", "interview")
		if _, err := svc.ProcessAnswer(context.Background(), "alice", id, "回答"); err != nil {
			t.Fatalf("ProcessAnswer() error = %v", err)
		}

		text, err := svc.Finish(context.Background(), "alice", id)
		if err != nil {
			t.Fatalf("Finish() error = %v", err)
		}
		if text != "全体的に良好です。" {
			t.Errorf("Finish() = %q", text)
		}

		interview, _ := store.GetInterview(context.Background(), id)
		summary := interview.SummaryReport
		if summary == nil || summary.Score == nil || *summary.Score != 100 {
			t.Fatalf("SummaryReport = %+v", summary)
		}
		if summary.DurationSeconds == nil || *summary.DurationSeconds != 90 {
			t.Errorf("DurationSeconds = %v, expected 90", summary.DurationSeconds)
		}
		if len(summary.Skills) != len(models.SkillKeys) || summary.Skills["logic"] != 80 || summary.Skills["expression"] != 72.5 || summary.Skills["proactive"] != 0 {
			t.Errorf("Skills = %v", summary.Skills)
		}
		if _, ok := summary.Skills["charm"]; ok {
			t.Errorf("unknown skill kept: %v", summary.Skills)
		}
	})

	t.Run("no generator stores unavailable summary", func(t *testing.T) {
		svc, store := newTestSession(nil, nil)
		id := startInterview(t, svc, "alice", "interview")
		text, err := svc.Finish(context.Background(), "alice", id)
		if err != nil || text != summaryUnavailableText {
			t.Fatalf("Finish() = %q, %v", text, err)
		}
		interview, _ := store.GetInterview(context.Background(), id)
		if interview.SummaryReport == nil || interview.SummaryReport.Score == nil || *interview.SummaryReport.Score != 0 {
			t.Errorf("SummaryReport = %+v", interview.SummaryReport)
		}
	})

	t.Run("upstream failure stores nothing", func(t *testing.T) {
		gen := &fakeGenerator{text: "質問", structErr: errModelDown}
		svc, store := newTestSession(gen, nil)
		id := startInterview(t, svc, "alice", "interview")
		if _, err := svc.Finish(context.Background(), "alice", id); !errors.Is(err, models.ErrUpstream) {
			t.Fatalf("Finish() error = %v, expected ErrUpstream", err)
		}
		interview, _ := store.GetInterview(context.Background(), id)
		if interview.SummaryReport != nil {
			t.Errorf("SummaryReport = %+v, expected nil", interview.SummaryReport)
		}
	})
}

func TestSessionOwnership(t *testing.T) {
	svc, _ := newTestSession(nil, nil)
	id := startInterview(t, svc, "alice", "interview")
	ctx := context.Background()

	checks := map[string]func() error{
		"Get": func() error { _, err := svc.Get(ctx, "bob", id); return err },
		"ProcessAnswer": func() error {
			_, err := svc.ProcessAnswer(ctx, "bob", id, "x")
			return err
		},
		"ProcessAudio": func() error {
			_, err := svc.ProcessAudio(ctx, "bob", id, []byte("x"), "audio/webm")
			return err
		},
		"Chat": func() error {
			_, err := svc.Chat(ctx, "bob", ChatRequest{InterviewID: id, UserMessage: "x"})
			return err
		},
		"Finish": func() error { _, err := svc.Finish(ctx, "bob", id); return err },
		"Missing": func() error {
			_, err := svc.Get(ctx, "alice", "interview_999")
			return err
		},
	}
	for name, check := range checks {
		t.Run(name, func(t *testing.T) {
			if err := check(); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("error = %v, expected ErrNotFound", err)
			}
		})
	}

	list, err := svc.List(ctx, "bob")
	if err != nil || len(list) != 0 {
		t.Errorf("List(bob) = %v, %v", list, err)
	}
}

func TestStats(t *testing.T) {
	svc, store := newTestSession(nil, nil)
	ctx := context.Background()

	payloads := []models.InterviewPayload{
		{
			CreatedAt:     "2024-01-01T10:00:00",
			Mode:          "interview",
			SummaryReport: map[string]any{"text": "a", "score": 80, "durationSeconds": 600, "skills": map[string]any{"logic": 70}},
		},
		{
			CreatedAt:  "2024-01-02T10:00:00",
			Mode:       "training",
			Transcript: []any{map[string]any{"role": "user", "content": "x", "timestamp": "2024-01-02T10:05:00"}},
		},
		{
			CreatedAt:     "2024-01-03T10:00:00",
			Mode:          "interview",
			SummaryReport: map[string]any{"text": "b", "score": 65, "skills": map[string]any{"logic": 50, "expression": 40}},
		},
	}
	for _, payload := range payloads {
		if _, err := store.CreateInterview(ctx, "alice", payload); err != nil {
			t.Fatalf("CreateInterview() error = %v", err)
		}
	}
	if _, err := store.CreateInterview(ctx, "bob", payloads[0]); err != nil {
		t.Fatalf("CreateInterview() error = %v", err)
	}

	stats, err := svc.Stats(ctx, "alice")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalSessions != 3 {
		t.Errorf("TotalSessions = %d, expected 3", stats.TotalSessions)
	}
	if stats.AvgScore != 72.5 {
		t.Errorf("AvgScore = %v, expected 72.5", stats.AvgScore)
	}
	if stats.TotalTimeMinutes != 15 {
		t.Errorf("TotalTimeMinutes = %d, expected 15", stats.TotalTimeMinutes)
	}
	expectedSkills := map[string]float64{"logic": 60, "specificity": 0, "expression": 40, "proactive": 0, "selfaware": 0}
	for key, expected := range expectedSkills {
		if stats.Skills[key] != expected {
			t.Errorf("Skills[%s] = %v, expected %v", key, stats.Skills[key], expected)
		}
	}

	empty, err := svc.Stats(ctx, "carol")
	if err != nil || empty.TotalSessions != 0 || empty.AvgScore != 0 || len(empty.Skills) != len(models.SkillKeys) {
		t.Errorf("Stats(carol) = %+v, %v", empty, err)
	}
}

func TestClear(t *testing.T) {
	svc, _ := newTestSession(nil, nil)
	startInterview(t, svc, "alice", "training")
	startInterview(t, svc, "bob", "training")

	message, err := svc.Clear(context.Background(), "alice")
	if err != nil || message != historyClearedMessage {
		t.Fatalf("Clear() = %q, %v", message, err)
	}
	if list, _ := svc.List(context.Background(), "alice"); len(list) != 0 {
		t.Errorf("alice still has %d interviews", len(list))
	}
	if list, _ := svc.List(context.Background(), "bob"); len(list) != 1 {
		t.Errorf("bob has %d interviews, expected 1", len(list))
	}
}
