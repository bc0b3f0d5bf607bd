package normalizer

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/krshsl/mensetsu/backend/models"
)

// Summary returns the canonical summary for data, or nil when data carries
// nothing usable.
func Summary(data any) *models.Summary {
	switch val := data.(type) {
	case nil:
		return nil
	case *models.Summary:
		if val == nil {
			return nil
		}
		return summaryFromMap(summaryToMap(*val))
	case []byte:
		if !utf8.Valid(val) {
			return nil
		}
		return summaryFromString(string(val))
	case string:
		return summaryFromString(val)
	}
	if m, ok := asMap(data); ok {
		return summaryFromMap(m)
	}
	return &models.Summary{Text: stringify(data)}
}

func summaryFromString(raw string) *models.Summary {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return &models.Summary{Text: text}
	}
	switch val := parsed.(type) {
	case map[string]any:
		return summaryFromMap(val)
	case string:
		return &models.Summary{Text: val}
	}
	return &models.Summary{Text: text}
}

func summaryFromMap(data map[string]any) *models.Summary {
	out := &models.Summary{}
	recognized := false

	if textValue := firstTruthy(data, "text", "summary", "content"); textValue != nil {
		out.Text = strings.TrimSpace(summaryText(textValue))
		recognized = true
	} else if text, ok := data["text"].(string); ok {
		out.Text = strings.TrimSpace(text)
		recognized = true
	}

	if score, ok := toFloat(firstNumber(data, "score", "overallScore")); ok {
		score = clampPercentage(score)
		out.Score = &score
	}

	if duration, ok := toInt(firstNumber(data, "durationSeconds", "duration_seconds")); ok && duration >= 0 {
		out.DurationSeconds = &duration
	}

	if skills := Skills(data["skills"]); len(skills) > 0 {
		out.Skills = skills
	}

	if !recognized && out.Score == nil && out.DurationSeconds == nil && out.Skills == nil && len(data) > 0 {
		encoded, err := encodeJSON(data)
		if err != nil {
			encoded = stringify(data)
		}
		return &models.Summary{Text: encoded}
	}
	return out
}

func summaryText(v any) string {
	if _, ok := asMap(v); ok {
		if encoded, err := encodeJSON(v); err == nil {
			return encoded
		}
	}
	if _, ok := asList(v); ok {
		if encoded, err := encodeJSON(v); err == nil {
			return encoded
		}
	}
	return stringify(v)
}

// Skills accepts either a mapping keyed by skill name or a list of
// {name|key, score} records. Unknown skills and non-numeric scores are
// dropped; scores are clamped to 0..100.
func Skills(payload any) map[string]float64 {
	out := map[string]float64{}
	if m, ok := asMap(payload); ok {
		for _, key := range models.SkillKeys {
			if score, ok := toFloat(m[key]); ok {
				out[key] = clampPercentage(score)
			}
		}
		return out
	}

	list, ok := asList(payload)
	if !ok {
		return out
	}
	for _, item := range list {
		entry, ok := asMap(item)
		if !ok {
			continue
		}
		name := firstTruthy(entry, "name", "key")
		if name == nil {
			continue
		}
		key := stringify(name)
		if !models.IsSkillKey(key) {
			continue
		}
		if score, ok := toFloat(entry["score"]); ok {
			out[key] = clampPercentage(score)
		}
	}
	return out
}
