package normalizer

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/krshsl/mensetsu/backend/models"
)

// secondsPerAnswer is the fallback duration credited to each user turn when
// timestamps cannot bound the session.
const secondsPerAnswer = 90

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts ISO-8601 strings (with or without a zone), the two
// common "date time" layouts, and epoch seconds given as a number or as a
// numeric string. Zone-less values are UTC.
func ParseTimestamp(v any) (time.Time, bool) {
	if text, ok := v.(string); ok {
		text = strings.TrimSpace(text)
		if text == "" {
			return time.Time{}, false
		}
		for _, layout := range timestampLayouts {
			if t, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
				return t, true
			}
		}
		// Turns carry timestamps as strings, so numeric epochs arrive here.
		seconds, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return time.Time{}, false
		}
		return fromEpoch(seconds)
	}
	if _, isBool := v.(bool); isBool {
		return time.Time{}, false
	}
	seconds, ok := toFloat(v)
	if !ok {
		return time.Time{}, false
	}
	return fromEpoch(seconds)
}

func fromEpoch(seconds float64) (time.Time, bool) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || math.Abs(seconds) > maxEpochSeconds {
		return time.Time{}, false
	}
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), true
}

// maxEpochSeconds keeps converted values inside time.Time's sane range.
const maxEpochSeconds = 1 << 40

// EstimateDurationSeconds returns the spread between the earliest and latest
// turn timestamps. Without two usable timestamps it credits 90 seconds per
// user turn.
func EstimateDurationSeconds(turns []models.Turn) int {
	var stamps []time.Time
	userTurns := 0
	for _, turn := range turns {
		if turn.Role == models.RoleUser {
			userTurns++
		}
		if t, ok := ParseTimestamp(turn.Timestamp); ok {
			stamps = append(stamps, t)
		}
	}
	if spread := spreadSeconds(stamps); spread > 0 {
		return spread
	}
	return userTurns * secondsPerAnswer
}

// ElapsedSeconds bounds an interview by its creation time and turn
// timestamps. It returns 0 when fewer than two timestamps parse.
func ElapsedSeconds(interview *models.Interview) int {
	if interview == nil {
		return 0
	}
	var stamps []time.Time
	if t, ok := ParseTimestamp(interview.CreatedAt); ok {
		stamps = append(stamps, t)
	}
	for _, turn := range interview.Transcript {
		if t, ok := ParseTimestamp(turn.Timestamp); ok {
			stamps = append(stamps, t)
		}
	}
	return max(0, spreadSeconds(stamps))
}

func spreadSeconds(stamps []time.Time) int {
	if len(stamps) < 2 {
		return 0
	}
	earliest, latest := stamps[0], stamps[0]
	for _, t := range stamps[1:] {
		if t.Before(earliest) {
			earliest = t
		}
		if t.After(latest) {
			latest = t
		}
	}
	return int(latest.Sub(earliest).Seconds())
}
