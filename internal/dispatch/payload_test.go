package dispatch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorPayloadMatchesPythonFormatting(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"device_control.py timed out", `{"status": "error", "message": "device_control.py timed out"}`},
		{"No output from device_control.py", `{"status": "error", "message": "No output from device_control.py"}`},
		{`bad "quote"`, `{"status": "error", "message": "bad \"quote\""}`},
		{"a<b>&c", `{"status": "error", "message": "a<b>&c"}`},
		{"café", `{"status": "error", "message": "caf\u00e9"}`},
		{"line\nbreak", `{"status": "error", "message": "line\nbreak"}`},
		{"del\x7f", `{"status": "error", "message": "del\u007f"}`},
		{"\U0001F600", `{"status": "error", "message": "\ud83d\ude00"}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, string(ErrorPayload(tt.message)), "message %q", tt.message)
	}
}

func TestErrorPayloadIsValidJSON(t *testing.T) {
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(ErrorPayload("café \"x\" \U0001F600"), &decoded))
	assert.Equal(t, "error", decoded["status"])
	assert.Equal(t, "café \"x\" \U0001F600", decoded["message"])
}
