package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/krshsl/mensetsu/backend/models"
	"github.com/krshsl/mensetsu/backend/normalizer"
	"github.com/krshsl/mensetsu/backend/repository"
)

// SessionService runs interview sessions on top of a Store. The generator
// and speech collaborators may be nil, in which case stock questions are
// used and no audio is produced.
type SessionService struct {
	store   repository.Store
	gen     TextGenerator
	speech  SpeechService
	rotator *KeyRotator
	metrics *Metrics
	now     func() time.Time
}

type StartRequest struct {
	InterviewType  string `json:"interviewType"`
	TargetIndustry string `json:"targetIndustry"`
	Mode           string `json:"mode"`
}

type StartResult struct {
	InterviewID  string `json:"interviewId"`
	QuestionText string `json:"questionText"`
	AudioURL     string `json:"audioUrl"`
	Mode         string `json:"mode"`
}

type AnswerResult struct {
	Feedback             string `json:"feedback"`
	NextQuestionText     string `json:"nextQuestionText"`
	NextQuestionAudioURL string `json:"nextQuestionAudioUrl"`
}

type ChatRequest struct {
	InterviewID string `json:"interviewId"`
	UserMessage string `json:"userMessage"`
}

type ChatResult struct {
	AIMessage            string `json:"aiMessage"`
	AIMessageText        string `json:"aiMessageText"`
	AIAudioURL           string `json:"aiAudioUrl,omitempty"`
	Feedback             string `json:"feedback,omitempty"`
	NextQuestion         string `json:"nextQuestion"`
	NextQuestionAudioURL string `json:"nextQuestionAudioUrl"`
	UserTranscript       string `json:"userTranscript"`
}

func NewSessionService(store repository.Store, gen TextGenerator, speech SpeechService, rotator *KeyRotator, metrics *Metrics) *SessionService {
	return &SessionService{
		store:   store,
		gen:     gen,
		speech:  speech,
		rotator: rotator,
		metrics: metrics,
		now:     time.Now,
	}
}

// timestamp is UTC ISO-8601 at second precision without an offset.
func (s *SessionService) timestamp() string {
	return s.now().UTC().Format("2006-01-02T15:04:05")
}

// Start creates an interview and returns its opening question.
func (s *SessionService) Start(ctx context.Context, userID string, req StartRequest) (*StartResult, error) {
	if s.rotator != nil {
		s.rotator.Next()
	}

	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = models.ModeTraining
	}
	if mode != models.ModeTraining && mode != models.ModeInterview {
		return nil, fmt.Errorf("invalid mode %q: %w", req.Mode, models.ErrValidation)
	}

	question := s.firstQuestion(ctx, req)
	audioURL := s.synthesize(ctx, question)
	createdAt := s.timestamp()

	id, err := s.store.CreateInterview(ctx, userID, models.InterviewPayload{
		CreatedAt: createdAt,
		Mode:      mode,
		Setup: map[string]any{
			"interviewType":  req.InterviewType,
			"targetIndustry": req.TargetIndustry,
		},
		Transcript: []models.Turn{{
			Role:      models.RoleAI,
			Content:   question,
			Type:      "question",
			Timestamp: createdAt,
			AudioURL:  audioURL,
		}},
		LastQuestion:         question,
		LastQuestionAudioURL: audioURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create interview: %w", err)
	}

	slog.Info("Interview started", "interview_id", id, "user_id", userID, "mode", mode)
	return &StartResult{
		InterviewID:  id,
		QuestionText: question,
		AudioURL:     audioURL,
		Mode:         mode,
	}, nil
}

// ProcessAnswer records a typed answer and returns what the interviewer says
// next.
func (s *SessionService) ProcessAnswer(ctx context.Context, userID, id, answer string) (*AnswerResult, error) {
	interview, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.answer(ctx, interview, answer)
}

// ProcessAudio transcribes a recorded answer and then handles it like a
// typed one.
func (s *SessionService) ProcessAudio(ctx context.Context, userID, id string, audio []byte, contentType string) (*AnswerResult, error) {
	interview, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	var text string
	if s.speech != nil && len(audio) > 0 {
		text, err = s.speech.Transcribe(ctx, audio, contentType)
		if err != nil {
			return nil, fmt.Errorf("failed to transcribe answer: %w", upstream(err))
		}
	}
	if strings.TrimSpace(text) == "" {
		text = audioAnswerPlaceholder
	}
	slog.Info("Audio answer received", "interview_id", id, "bytes", len(audio), "content_type", contentType)
	return s.answer(ctx, interview, text)
}

func (s *SessionService) answer(ctx context.Context, interview *models.Interview, answer string) (*AnswerResult, error) {
	if interview.Mode == models.ModeInterview {
		question, audioURL, err := s.advanceInterview(ctx, interview.ID, interview.Transcript, s.userTurn(answer))
		if err != nil {
			return nil, err
		}
		return &AnswerResult{NextQuestionText: question, NextQuestionAudioURL: audioURL}, nil
	}

	feedback, question, err := s.feedback(ctx, answer, "")
	if err != nil {
		return nil, err
	}
	audioURL := s.synthesize(ctx, question)

	entry := map[string]any{
		"question":             interview.LastQuestion,
		"answer":               answer,
		"feedback":             feedback,
		"feedbackSnippet":      normalizer.FeedbackSnippet(feedback),
		"questionAudioUrl":     interview.LastQuestionAudioURL,
		"nextQuestion":         question,
		"nextQuestionAudioUrl": audioURL,
		"timestamp":            s.timestamp(),
	}
	if err := s.store.AppendTranscriptEntry(ctx, interview.ID, entry); err != nil {
		return nil, fmt.Errorf("failed to append transcript entry: %w", err)
	}
	if err := s.store.UpdateInterview(ctx, interview.ID, models.InterviewUpdate{
		LastQuestion:         &question,
		LastQuestionAudioURL: &audioURL,
	}); err != nil {
		return nil, fmt.Errorf("failed to update interview: %w", err)
	}

	s.metrics.RecordTurn(models.ModeTraining)
	return &AnswerResult{Feedback: feedback, NextQuestionText: question, NextQuestionAudioURL: audioURL}, nil
}

// advanceInterview appends the candidate's answer, then asks for the next
// question given the prior turns plus that answer. Turns are written with
// AppendTranscriptEntry so concurrent writers on the same interview do not
// overwrite each other. The answer stays persisted if the generator fails.
func (s *SessionService) advanceInterview(ctx context.Context, id string, prior []models.Turn, answer models.Turn) (string, string, error) {
	if err := s.store.AppendTranscriptEntry(ctx, id, answer); err != nil {
		return "", "", fmt.Errorf("failed to append answer: %w", err)
	}

	question, err := s.nextQuestion(ctx, append(slices.Clone(prior), answer))
	if err != nil {
		slog.Warn("Next question generation failed", "interview_id", id, "error", err)
		return "", "", fmt.Errorf("failed to generate next question: %w", upstream(err))
	}

	audioURL := s.synthesize(ctx, question)
	turn := models.Turn{
		Role:      models.RoleAI,
		Content:   question,
		Type:      "question",
		Timestamp: s.timestamp(),
		AudioURL:  audioURL,
	}
	if err := s.store.AppendTranscriptEntry(ctx, id, turn); err != nil {
		return "", "", fmt.Errorf("failed to append question: %w", err)
	}
	if err := s.store.UpdateInterview(ctx, id, models.InterviewUpdate{
		LastQuestion:         &question,
		LastQuestionAudioURL: &audioURL,
	}); err != nil {
		return "", "", fmt.Errorf("failed to update interview: %w", err)
	}

	s.metrics.RecordTurn(models.ModeInterview)
	return question, audioURL, nil
}

// Chat handles a free-form message against an existing interview.
func (s *SessionService) Chat(ctx context.Context, userID string, req ChatRequest) (*ChatResult, error) {
	if strings.TrimSpace(req.InterviewID) == "" {
		return nil, fmt.Errorf("interviewId is required: %w", models.ErrValidation)
	}
	interview, err := s.owned(ctx, userID, req.InterviewID)
	if err != nil {
		return nil, err
	}
	message := strings.TrimSpace(req.UserMessage)
	if message == "" {
		return nil, fmt.Errorf("ユーザー入力が必要です: %w", models.ErrValidation)
	}

	history := interview.Transcript
	userTurn := s.userTurn(message)

	if interview.Mode == models.ModeInterview {
		question, audioURL, err := s.advanceInterview(ctx, interview.ID, history, userTurn)
		if err != nil {
			return nil, err
		}
		return &ChatResult{
			AIMessage:            question,
			AIMessageText:        question,
			AIAudioURL:           audioURL,
			NextQuestion:         question,
			NextQuestionAudioURL: audioURL,
			UserTranscript:       message,
		}, nil
	}

	if err := s.store.AppendTranscriptEntry(ctx, interview.ID, userTurn); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	feedback, question, err := s.feedback(ctx, message, historyText(history))
	if err != nil {
		return nil, err
	}

	audioURL := s.synthesize(ctx, question)
	combined := "フィードバック：\n" + feedback + "\n\n次の質問：\n" + question
	if err := s.store.AppendTranscriptEntry(ctx, interview.ID, models.Turn{
		Role:                 models.RoleAI,
		Content:              combined,
		Type:                 "feedback",
		Timestamp:            s.timestamp(),
		AudioURL:             audioURL,
		Feedback:             feedback,
		NextQuestion:         question,
		NextQuestionAudioURL: audioURL,
		FeedbackSnippet:      normalizer.FeedbackSnippet(feedback),
	}); err != nil {
		return nil, fmt.Errorf("failed to append feedback: %w", err)
	}
	if err := s.store.UpdateInterview(ctx, interview.ID, models.InterviewUpdate{
		LastQuestion:         &question,
		LastQuestionAudioURL: &audioURL,
	}); err != nil {
		return nil, fmt.Errorf("failed to update interview: %w", err)
	}

	s.metrics.RecordTurn(models.ModeTraining)
	return &ChatResult{
		AIMessage:            combined,
		AIMessageText:        combined,
		AIAudioURL:           audioURL,
		Feedback:             feedback,
		NextQuestion:         question,
		NextQuestionAudioURL: audioURL,
		UserTranscript:       message,
	}, nil
}

// Finish writes the summary report of an interview-mode session and returns
// its text.
func (s *SessionService) Finish(ctx context.Context, userID, id string) (string, error) {
	interview, err := s.owned(ctx, userID, id)
	if err != nil {
		return "", err
	}
	if interview.Mode != models.ModeInterview {
		return "", fmt.Errorf("面接モードのみサマリーを生成できます: %w", models.ErrValidation)
	}

	report, err := s.summarize(ctx, interview.Transcript)
	if err != nil {
		return "", err
	}

	summary := normalizer.Summary(report)
	if summary == nil {
		summary = &models.Summary{Text: summaryFailedText}
	}
	if summary.Skills == nil {
		summary.Skills = map[string]float64{}
	}
	if err := s.store.UpdateInterview(ctx, id, models.InterviewUpdate{SummaryReport: summary}); err != nil {
		return "", fmt.Errorf("failed to store summary: %w", err)
	}

	slog.Info("Interview finished", "interview_id", id, "user_id", userID)
	if summary.Text == "" {
		return summaryFailedText, nil
	}
	return summary.Text, nil
}

func (s *SessionService) summarize(ctx context.Context, transcript []models.Turn) (map[string]any, error) {
	duration := normalizer.EstimateDurationSeconds(transcript)
	fallback := func(text string) map[string]any {
		skills := map[string]any{}
		for _, key := range models.SkillKeys {
			skills[key] = 0.0
		}
		return map[string]any{"text": text, "score": 0.0, "durationSeconds": duration, "skills": skills}
	}

	if len(transcript) == 0 {
		return fallback(summaryNoTranscript), nil
	}
	if s.gen == nil {
		return fallback(summaryUnavailableText), nil
	}

	data, err := s.gen.GenerateStructured(ctx, summaryPrompt(historyText(transcript)))
	if err != nil {
		return nil, fmt.Errorf("failed to generate summary: %w", upstream(err))
	}

	text := stringField(data, "summaryText")
	if text == "" {
		text = summaryFailedText
	}
	score, ok := data["overallScore"]
	if !ok || score == nil {
		score = data["score"]
	}
	if score == nil {
		score = 0.0
	}
	skills := map[string]any{}
	parsed := normalizer.Skills(data["skills"])
	for _, key := range models.SkillKeys {
		skills[key] = parsed[key]
	}
	return map[string]any{"text": text, "score": score, "durationSeconds": duration, "skills": skills}, nil
}

// List returns the caller's interviews, newest first.
func (s *SessionService) List(ctx context.Context, userID string) ([]models.Interview, error) {
	interviews, err := s.store.ListInterviews(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list interviews: %w", err)
	}
	return interviews, nil
}

// Get returns one interview owned by the caller.
func (s *SessionService) Get(ctx context.Context, userID, id string) (*models.Interview, error) {
	return s.owned(ctx, userID, id)
}

// Clear deletes every interview the caller owns.
func (s *SessionService) Clear(ctx context.Context, userID string) (string, error) {
	if err := s.store.ClearInterviews(ctx, userID); err != nil {
		return "", fmt.Errorf("failed to clear interviews: %w", err)
	}
	slog.Info("Interview history cleared", "user_id", userID)
	return historyClearedMessage, nil
}

// Stats aggregates scores, time spent and skill averages across the caller's
// interviews.
func (s *SessionService) Stats(ctx context.Context, userID string) (*models.DashboardStats, error) {
	interviews, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	var (
		scoreTotal   float64
		scoreCount   int
		totalSeconds int
		skillTotals  = map[string]float64{}
		skillCounts  = map[string]int{}
	)
	for i := range interviews {
		interview := &interviews[i]
		summary := interview.SummaryReport
		if summary == nil {
			totalSeconds += normalizer.ElapsedSeconds(interview)
			continue
		}
		if summary.Score != nil {
			scoreTotal += *summary.Score
			scoreCount++
		}
		seconds := 0
		if summary.DurationSeconds != nil {
			seconds = *summary.DurationSeconds
		}
		if seconds <= 0 {
			seconds = normalizer.ElapsedSeconds(interview)
		}
		totalSeconds += max(0, seconds)
		for key, value := range summary.Skills {
			if !models.IsSkillKey(key) || math.IsNaN(value) || math.IsInf(value, 0) {
				continue
			}
			skillTotals[key] += value
			skillCounts[key]++
		}
	}

	stats := &models.DashboardStats{
		TotalSessions: len(interviews),
		Skills:        map[string]float64{},
	}
	if scoreCount > 0 {
		stats.AvgScore = roundTenth(scoreTotal / float64(scoreCount))
	}
	if totalSeconds > 0 {
		stats.TotalTimeMinutes = int(math.RoundToEven(float64(totalSeconds) / 60))
	}
	for _, key := range models.SkillKeys {
		if skillCounts[key] > 0 {
			stats.Skills[key] = roundTenth(skillTotals[key] / float64(skillCounts[key]))
		} else {
			stats.Skills[key] = 0
		}
	}
	return stats, nil
}

func roundTenth(f float64) float64 {
	return math.Round(f*10) / 10
}

// owned loads an interview and hides it from anyone but its owner.
func (s *SessionService) owned(ctx context.Context, userID, id string) (*models.Interview, error) {
	interview, err := s.store.GetInterview(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get interview: %w", err)
	}
	if interview == nil || interview.UserID != userID {
		return nil, fmt.Errorf("interview %s: %w", id, models.ErrNotFound)
	}
	return interview, nil
}

func (s *SessionService) userTurn(content string) models.Turn {
	return models.Turn{
		Role:      models.RoleUser,
		Content:   content,
		Type:      "answer",
		Timestamp: s.timestamp(),
	}
}

func (s *SessionService) firstQuestion(ctx context.Context, req StartRequest) string {
	if s.gen == nil {
		return defaultFirstQuestion
	}
	text, err := s.gen.GenerateText(ctx, firstQuestionPrompt(req.InterviewType, req.TargetIndustry))
	if err != nil {
		slog.Warn("First question generation failed, using default", "error", err)
		return defaultFirstQuestion
	}
	if text = strings.TrimSpace(text); text == "" {
		return defaultFirstQuestion
	}
	return text
}

// feedback returns coaching feedback and the next question for a training
// answer. Output that is not JSON is read as feedback on the first line and
// the question on the second.
func (s *SessionService) feedback(ctx context.Context, answer, history string) (string, string, error) {
	if s.gen == nil || strings.TrimSpace(answer) == "" {
		return placeholderFeedback, defaultNextQuestion, nil
	}

	text, err := s.gen.GenerateText(ctx, feedbackPrompt(answer, history))
	if err != nil {
		return "", "", fmt.Errorf("failed to generate feedback: %w", upstream(err))
	}

	if data := normalizer.ExtractJSONObject(text); data != nil {
		feedback := stringField(data, "feedback")
		if feedback == "" {
			feedback = defaultFeedback
		}
		question := stringField(data, "next_question", "nextQuestion")
		if question == "" {
			question = defaultNextQuestion
		}
		return feedback, question, nil
	}

	lines := nonBlankLines(text)
	feedback, question := defaultFeedback, defaultNextQuestion
	if len(lines) > 0 {
		feedback = lines[0]
	}
	if len(lines) > 1 {
		question = lines[1]
	}
	return feedback, question, nil
}

func (s *SessionService) nextQuestion(ctx context.Context, transcript []models.Turn) (string, error) {
	if s.gen == nil {
		return defaultNextQuestion, nil
	}
	text, err := s.gen.GenerateText(ctx, nextQuestionPrompt(historyText(transcript)))
	if err != nil {
		return "", err
	}
	if data := normalizer.ExtractJSONObject(text); data != nil {
		if question := stringField(data, "next_question", "nextQuestion"); question != "" {
			return question, nil
		}
	}
	if lines := nonBlankLines(text); len(lines) > 0 {
		return lines[0], nil
	}
	return defaultNextQuestion, nil
}

// synthesize returns an audio path for text, or "" when speech is disabled
// or fails.
func (s *SessionService) synthesize(ctx context.Context, text string) string {
	if s.speech == nil || text == "" {
		return ""
	}
	url, err := s.speech.Synthesize(ctx, text)
	if err != nil {
		slog.Warn("Speech synthesis failed", "error", err)
		return ""
	}
	return url
}

// upstream tags err as an upstream failure unless it already is one.
func upstream(err error) error {
	if errors.Is(err, models.ErrUpstream) {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrUpstream, err)
}
