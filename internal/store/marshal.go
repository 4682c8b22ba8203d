package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalParam converts an opaque event param to JSON TEXT for storage.
// Values JSON cannot encode (channels, funcs, cyclic structures) are stored
// as their %v rendering so journaling never fails on a param.
func marshalParam(v any) string {
	if err, ok := v.(error); ok {
		v = err.Error()
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		buf.Reset()
		_ = enc.Encode(fmt.Sprintf("%v", v))
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String())
}
