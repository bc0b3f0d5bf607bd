package services

import (
	"hash/fnv"
	"strings"
)

// Stock ElevenLabs voices that read Japanese well with the multilingual model
var femaleVoices = []string{
	"EXAVITQu4vr4xnSDxMaL", // Sarah
	"XrExE9yKIg1WjnnlVkGX", // Matilda
	"pFZP5JQG7iQjIQuC4Bku", // Lily
	"Xb7hH8MSUJpSbSDYk0k2", // Alice
}

var maleVoices = []string{
	"pNInz6obpgDQGcFmaJgB", // Adam
	"onwK4e9ZLuTAKqWW03F9", // Daniel
	"TX3LPaxmHKxFdv7VOQHJ", // Liam
	"JBFqnCBsd6RMkjVDRZzb", // George
}

const fallbackVoice = "EXAVITQu4vr4xnSDxMaL"

// PickDeterministicVoice maps a seed to a stock voice of the requested
// gender so the same interviewer always sounds the same.
func PickDeterministicVoice(seed, gender string) string {
	var pool []string
	switch strings.ToLower(strings.TrimSpace(gender)) {
	case "female":
		pool = femaleVoices
	case "male":
		pool = maleVoices
	default:
		pool = append(append([]string{}, femaleVoices...), maleVoices...)
	}
	if len(pool) == 0 {
		return fallbackVoice
	}
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(seed)))
	return pool[h.Sum32()%uint32(len(pool))]
}
