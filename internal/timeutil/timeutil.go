// Package timeutil parses caller-supplied timestamps into UTC instants.
package timeutil

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"fiapstore/internal/models"
)

// ParseTimestamp parses an ISO-8601 style timestamp and normalizes it to UTC.
// Strings without a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, models.InvalidInput("parse_timestamp", "empty time string")
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, models.NewError(models.ErrParse, "parse_timestamp", err)
	}
	return t.UTC(), nil
}

// FormatUTC renders t as an RFC 3339 UTC literal with second precision.
func FormatUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
