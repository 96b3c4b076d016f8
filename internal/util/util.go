package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

// DisplayLayout mirrors the en-NG medium date / short time style ("7 Feb 2026, 09:00").
const DisplayLayout = "2 Jan 2006, 15:04"

var lagos = loadLagos()

func loadLagos() *time.Location {
	loc, err := time.LoadLocation("Africa/Lagos")
	if err != nil {
		// WAT has no DST.
		return time.FixedZone("WAT", 60*60)
	}
	return loc
}

func NowISO() string {
	return time.Now().Format(time.RFC3339)
}

// FormatRegisteredAt renders a registration instant for display. The stored value is never reformatted.
func FormatRegisteredAt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(lagos).Format(DisplayLayout)
}

func NormalizeBool(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "yes", "true", "1", "y", "on":
		return true
	default:
		return false
	}
}

func HMACSHA256Hex(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// EncodeURIComponent escapes s the way browsers' encodeURIComponent does.
func EncodeURIComponent(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	// QueryEscape leaves none of these alone, encodeURIComponent does.
	for _, r := range []struct{ from, to string }{
		{"%21", "!"}, {"%27", "'"}, {"%28", "("}, {"%29", ")"}, {"%2A", "*"},
	} {
		escaped = strings.ReplaceAll(escaped, r.from, r.to)
	}
	return escaped
}
