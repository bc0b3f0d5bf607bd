package models

import (
	"encoding/json"
	"maps"
	"slices"
)

// Interview modes
const (
	ModeTraining  = "training"
	ModeInterview = "interview"
)

// Turn roles
const (
	RoleAI   = "ai"
	RoleUser = "user"
)

// SkillKeys is the fixed set of skills a summary may score, in display order.
var SkillKeys = []string{"logic", "specificity", "expression", "proactive", "selfaware"}

// IsSkillKey reports whether key is one of SkillKeys.
func IsSkillKey(key string) bool {
	return slices.Contains(SkillKeys, key)
}

// Turn is one canonical utterance in an interview transcript.
// Role and Content are always set; every other field is optional.
type Turn struct {
	Role                 string `json:"role" jsonschema:"enum=ai,enum=user"`
	Content              string `json:"content"`
	Type                 string `json:"type,omitempty"`
	Timestamp            string `json:"timestamp,omitempty"`
	AudioURL             string `json:"audioUrl,omitempty"`
	AnswerAudioURL       string `json:"answerAudioUrl,omitempty"`
	Feedback             string `json:"feedback,omitempty"`
	NextQuestion         string `json:"nextQuestion,omitempty"`
	NextQuestionAudioURL string `json:"nextQuestionAudioUrl,omitempty"`
	FeedbackSnippet      string `json:"feedbackSnippet,omitempty"`
	Summary              string `json:"summary,omitempty"`
}

// Summary is the report produced once an interview-mode session finishes.
type Summary struct {
	Text            string             `json:"text"`
	Score           *float64           `json:"score,omitempty" jsonschema:"minimum=0,maximum=100"`
	DurationSeconds *int               `json:"durationSeconds,omitempty" jsonschema:"minimum=0"`
	Skills          map[string]float64 `json:"skills,omitempty"`
}

// Clone returns a deep copy of the summary. A nil summary clones to nil.
func (s *Summary) Clone() *Summary {
	if s == nil {
		return nil
	}
	out := &Summary{Text: s.Text}
	if s.Score != nil {
		score := *s.Score
		out.Score = &score
	}
	if s.DurationSeconds != nil {
		duration := *s.DurationSeconds
		out.DurationSeconds = &duration
	}
	if s.Skills != nil {
		out.Skills = maps.Clone(s.Skills)
	}
	return out
}

// Interview is one practice session owned by a user.
type Interview struct {
	ID                   string         `json:"id"`
	UserID               string         `json:"userId"`
	CreatedAt            string         `json:"created_at"`
	Mode                 string         `json:"mode" jsonschema:"enum=training,enum=interview"`
	Setup                map[string]any `json:"setup"`
	Transcript           []Turn         `json:"transcript"`
	LastQuestion         string         `json:"last_question"`
	LastQuestionAudioURL string         `json:"last_question_audio_url"`
	SummaryReport        *Summary       `json:"summary_report"`
}

// Clone returns a deep copy of the interview so callers never share state
// with a backend.
func (i *Interview) Clone() *Interview {
	if i == nil {
		return nil
	}
	out := *i
	out.Setup = CloneSetup(i.Setup)
	out.Transcript = slices.Clone(i.Transcript)
	if out.Transcript == nil {
		out.Transcript = []Turn{}
	}
	out.SummaryReport = i.SummaryReport.Clone()
	return &out
}

// CloneSetup deep-copies a free-form setup mapping through JSON. Values that
// cannot be encoded are dropped and an empty mapping is returned.
func CloneSetup(setup map[string]any) map[string]any {
	if setup == nil {
		return map[string]any{}
	}
	data, err := json.Marshal(setup)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// NormalizeMode folds an absent or unrecognized mode into ModeTraining.
func NormalizeMode(mode string) string {
	if mode == ModeInterview {
		return ModeInterview
	}
	return ModeTraining
}

// InterviewPayload is the input to Store.CreateInterview. Transcript and
// SummaryReport accept any shape the normalizer understands.
type InterviewPayload struct {
	CreatedAt            string
	Mode                 string
	Setup                map[string]any
	Transcript           any
	LastQuestion         string
	LastQuestionAudioURL string
	SummaryReport        any
}

// InterviewUpdate is a partial update. Nil fields are left untouched.
type InterviewUpdate struct {
	LastQuestion         *string
	LastQuestionAudioURL *string
	Mode                 *string
	Setup                map[string]any
	Transcript           any
	// SummaryReport is normalized before it is stored. A nil value cannot
	// reset the report to null; pass an empty string to clear it.
	SummaryReport any
}

// IsEmpty reports whether the update carries no fields.
func (u InterviewUpdate) IsEmpty() bool {
	return u.LastQuestion == nil && u.LastQuestionAudioURL == nil && u.Mode == nil &&
		u.Setup == nil && u.Transcript == nil && u.SummaryReport == nil
}

// DashboardStats aggregates a user's finished and unfinished interviews.
type DashboardStats struct {
	TotalSessions    int                `json:"totalSessions"`
	AvgScore         float64            `json:"avgScore"`
	TotalTimeMinutes int                `json:"totalTimeMinutes"`
	Skills           map[string]float64 `json:"skills"`
}
