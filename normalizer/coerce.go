package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/krshsl/mensetsu/backend/models"
)

// stringify coerces a decoded JSON value to its string form. Collections are
// JSON-encoded so nothing is lost.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case json.Number:
		return val.String()
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(val)
	case fmt.Stringer:
		return val.String()
	}
	encoded, err := encodeJSON(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return encoded
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// encodeJSON encodes v without HTML escaping and without a trailing newline.
func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// truthy mirrors the loose "has a value" test legacy records were written
// against: empty strings, zero numbers, false and empty collections are all
// treated as absent.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case float64:
		return val != 0
	case json.Number:
		f, err := val.Float64()
		return err != nil || f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32:
		return rv.Float() != 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// firstTruthy returns the first truthy value among keys, or nil.
func firstTruthy(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v := m[key]; truthy(v) {
			return v
		}
	}
	return nil
}

// firstPresent returns the first non-nil value among keys, or nil.
func firstPresent(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// firstNumber prefers the first truthy value among keys, so a zero under an
// earlier alias does not hide a real value under a later one. When every
// value is falsy it returns the first non-nil one, which keeps an explicit 0.
func firstNumber(m map[string]any, keys ...string) any {
	if v := firstTruthy(m, keys...); v != nil {
		return v
	}
	return firstPresent(m, keys...)
}

// toFloat coerces numbers, numeric strings and booleans. Non-finite values
// are rejected.
func toFloat(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case nil:
		return 0, false
	case bool:
		if val {
			f = 1
		}
	case float64:
		f = val
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			f = float64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			f = float64(rv.Uint())
		case reflect.Float32:
			f = rv.Float()
		default:
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// toInt coerces to an integer, truncating fractions. "12.7" becomes 12.
func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		trimmed := strings.TrimSpace(val)
		if n, err := strconv.Atoi(trimmed); err == nil {
			return n, true
		}
		v = trimmed
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return int(n), true
		}
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	f = math.Trunc(f)
	if f >= math.MaxInt || f < math.MinInt {
		return 0, false
	}
	return int(f), true
}

// clampPercentage clamps to [0, 100] and rounds to one decimal.
func clampPercentage(f float64) float64 {
	return math.Round(math.Max(0, math.Min(100, f))*10) / 10
}

// asMap returns v as a string-keyed mapping when it is one.
func asMap(v any) (map[string]any, bool) {
	switch val := v.(type) {
	case map[string]any:
		return val, true
	case models.Turn:
		return turnToMap(val), true
	case *models.Turn:
		if val == nil {
			return nil, false
		}
		return turnToMap(*val), true
	case models.Summary:
		return summaryToMap(val), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// asList returns v as a sequence when it is one. Byte slices are not lists.
func asList(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []byte:
		return nil, false
	case []models.Turn:
		out := make([]any, len(val))
		for i, turn := range val {
			out[i] = turn
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func turnToMap(t models.Turn) map[string]any {
	m := map[string]any{
		"role":    t.Role,
		"content": t.Content,
	}
	optional := map[string]string{
		"type":                 t.Type,
		"timestamp":            t.Timestamp,
		"audioUrl":             t.AudioURL,
		"answerAudioUrl":       t.AnswerAudioURL,
		"feedback":             t.Feedback,
		"nextQuestion":         t.NextQuestion,
		"nextQuestionAudioUrl": t.NextQuestionAudioURL,
		"feedbackSnippet":      t.FeedbackSnippet,
		"summary":              t.Summary,
	}
	for key, value := range optional {
		if value != "" {
			m[key] = value
		}
	}
	return m
}

func summaryToMap(s models.Summary) map[string]any {
	m := map[string]any{"text": s.Text}
	if s.Score != nil {
		m["score"] = *s.Score
	}
	if s.DurationSeconds != nil {
		m["durationSeconds"] = *s.DurationSeconds
	}
	if len(s.Skills) > 0 {
		skills := make(map[string]any, len(s.Skills))
		for key, value := range s.Skills {
			skills[key] = value
		}
		m["skills"] = skills
	}
	return m
}
