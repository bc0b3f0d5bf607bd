package normalizer

import (
	"reflect"
	"testing"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected map[string]any
	}{
		{
			name:     "bare object",
			raw:      `{"feedback":"ok"}`,
			expected: map[string]any{"feedback": "ok"},
		},
		{
			name:     "fenced object",
			raw:      "```json\n{\"nextQuestion\":\"Q\"}\n```",
			expected: map[string]any{"nextQuestion": "Q"},
		},
		{
			name:     "object inside prose",
			raw:      `Sure! Here it is: {"a":"x}y"} hope that helps {"b":1}`,
			expected: map[string]any{"a": "x}y"},
		},
		{
			name:     "skips broken candidate",
			raw:      `{oops} then {"b":true}`,
			expected: map[string]any{"b": true},
		},
		{
			name:     "no object",
			raw:      "just text",
			expected: nil,
		},
		{
			name:     "array is not an object",
			raw:      `[1,2,3]`,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSONObject(tt.raw)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ExtractJSONObject() = %#v, expected %#v", got, tt.expected)
			}
		})
	}
}
