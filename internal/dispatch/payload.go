package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf16"
)

// ErrorPayload builds the status object sent to the client when a command
// fails. Separators and escaping match Python's json.dumps defaults so
// clients written against the measurement script see identical bytes:
//
//	{"status": "error", "message": "device_control.py timed out"}
func ErrorPayload(message string) []byte {
	return []byte(fmt.Sprintf(`{"status": "error", "message": %s}`, quoteASCII(message)))
}

// quoteASCII JSON-quotes s, escaping DEL and everything outside ASCII.
func quoteASCII(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	quoted := bytes.TrimRight(buf.Bytes(), "\n")

	var out bytes.Buffer
	for _, r := range string(quoted) {
		switch {
		case r < 0x7f:
			out.WriteRune(r)
		case r > 0xFFFF:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&out, `\u%04x\u%04x`, hi, lo)
		default:
			fmt.Fprintf(&out, `\u%04x`, r)
		}
	}
	return out.String()
}
