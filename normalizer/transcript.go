// Package normalizer converts the many transcript and summary shapes that
// have been persisted over time into the canonical models.Turn and
// models.Summary forms. Every function is pure and idempotent: feeding a
// normalized value back in returns an equal value.
package normalizer

import (
	"github.com/krshsl/mensetsu/backend/models"
)

// chatKeys are copied verbatim from chat-shaped entries when present.
var chatKeys = []string{
	"type",
	"timestamp",
	"audioUrl",
	"questionAudioUrl",
	"answerAudioUrl",
	"feedback",
	"nextQuestion",
	"nextQuestionAudioUrl",
	"feedbackSnippet",
	"summary",
}

// Transcript returns the canonical turn list for data. It never fails: any
// unrecognized value degrades to an ai turn holding its string form.
func Transcript(data any) []models.Turn {
	turns := []models.Turn{}
	if !truthy(data) {
		return turns
	}
	for _, entry := range transcriptEntries(data) {
		turns = append(turns, normalizeEntry(entry)...)
	}
	return turns
}

func transcriptEntries(data any) []any {
	if m, ok := asMap(data); ok {
		return []any{m}
	}
	switch val := data.(type) {
	case string:
		return []any{map[string]any{"role": models.RoleAI, "content": val}}
	case []byte:
		return []any{map[string]any{"role": models.RoleAI, "content": string(val)}}
	}
	if list, ok := asList(data); ok {
		return list
	}
	return []any{map[string]any{"role": models.RoleAI, "content": stringify(data)}}
}

func normalizeEntry(entry any) []models.Turn {
	if entry == nil {
		return nil
	}
	m, ok := asMap(entry)
	if !ok {
		return []models.Turn{{Role: models.RoleAI, Content: stringify(entry)}}
	}

	role, content := m["role"], m["content"]
	if role != nil && content != nil {
		return []models.Turn{chatTurn(m, role, content)}
	}
	return legacyTurns(m)
}

func foldRole(role any) string {
	switch role {
	case "ai", "assistant", "system":
		return models.RoleAI
	}
	return models.RoleUser
}

func chatTurn(m map[string]any, role, content any) models.Turn {
	turn := models.Turn{Role: foldRole(role), Content: stringify(content)}
	var questionAudio string
	for _, key := range chatKeys {
		v := m[key]
		if v == nil {
			continue
		}
		if key == "questionAudioUrl" {
			questionAudio = stringify(v)
			continue
		}
		setField(&turn, key, stringify(v))
	}
	if turn.AudioURL == "" && questionAudio != "" {
		turn.AudioURL = questionAudio
	}
	return turn
}

func setField(turn *models.Turn, key, value string) {
	switch key {
	case "type":
		turn.Type = value
	case "timestamp":
		turn.Timestamp = value
	case "audioUrl":
		turn.AudioURL = value
	case "answerAudioUrl":
		turn.AnswerAudioURL = value
	case "feedback":
		turn.Feedback = value
	case "nextQuestion":
		turn.NextQuestion = value
	case "nextQuestionAudioUrl":
		turn.NextQuestionAudioURL = value
	case "feedbackSnippet":
		turn.FeedbackSnippet = value
	case "summary":
		turn.Summary = value
	}
}

// legacyTurns expands a {question, answer, feedback} record into up to three
// turns that share the record's timestamp.
func legacyTurns(m map[string]any) []models.Turn {
	var timestamp string
	if ts := m["timestamp"]; truthy(ts) {
		timestamp = stringify(ts)
	}
	typeOr := func(key, fallback string) string {
		if v := m[key]; truthy(v) {
			return stringify(v)
		}
		return fallback
	}

	var turns []models.Turn
	if question := m["question"]; truthy(question) {
		turn := models.Turn{
			Role:      models.RoleAI,
			Content:   stringify(question),
			Type:      typeOr("questionType", "question"),
			Timestamp: timestamp,
		}
		if audio := firstTruthy(m, "questionAudioUrl", "audioUrl"); audio != nil {
			turn.AudioURL = stringify(audio)
		}
		turns = append(turns, turn)
	}

	if answer := m["answer"]; truthy(answer) {
		turns = append(turns, models.Turn{
			Role:      models.RoleUser,
			Content:   stringify(answer),
			Type:      typeOr("answerType", "answer"),
			Timestamp: timestamp,
		})
	}

	if feedback := m["feedback"]; truthy(feedback) {
		turn := models.Turn{
			Role:      models.RoleAI,
			Content:   stringify(feedback),
			Type:      typeOr("feedbackType", "feedback"),
			Timestamp: timestamp,
		}
		if v := m["feedbackSnippet"]; truthy(v) {
			turn.FeedbackSnippet = stringify(v)
		}
		if v := m["nextQuestion"]; truthy(v) {
			turn.NextQuestion = stringify(v)
		}
		if v := m["nextQuestionAudioUrl"]; truthy(v) {
			turn.NextQuestionAudioURL = stringify(v)
		}
		turns = append(turns, turn)
	}
	return turns
}
