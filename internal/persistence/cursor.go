// Package persistence contains helpers shared by store implementations.
package persistence

import (
	"encoding/base64"
	"strings"
	"time"
)

// EncodeCursor serialises a sync watermark to an opaque token. A zero time
// encodes to the empty token.
func EncodeCursor(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	raw := ts.UTC().Format(time.RFC3339Nano)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses an encoded cursor token. Empty or whitespace tokens
// decode to the zero time, which callers treat as "send everything".
func DecodeCursor(token string) (time.Time, error) {
	if strings.TrimSpace(token) == "" {
		return time.Time{}, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, string(decoded))
	if err != nil {
		return time.Time{}, err
	}
	return ts, nil
}
