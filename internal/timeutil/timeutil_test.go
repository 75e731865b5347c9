package timeutil

import (
	"errors"
	"testing"
	"time"

	"fiapstore/internal/models"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "UTC designator",
			input: "2024-01-01T00:00:00Z",
			want:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "positive offset is normalized",
			input: "2024-01-01T09:00:00+09:00",
			want:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "no zone is read as UTC",
			input: "2024-03-15 12:30:00",
			want:  time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC),
		},
		{
			name:  "surrounding whitespace",
			input: "  2024-01-01T00:00:00Z ",
			want:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
			if got.Location() != time.UTC {
				t.Errorf("Expected UTC location, got %s", got.Location())
			}
		})
	}
}

func TestParseTimestamp_Errors(t *testing.T) {
	if _, err := ParseTimestamp(""); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected invalid input for empty string, got %v", err)
	}
	if _, err := ParseTimestamp("   "); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected invalid input for blank string, got %v", err)
	}
	if _, err := ParseTimestamp("2024-13-01T00:00:00Z"); !errors.Is(err, models.ErrParse) {
		t.Errorf("Expected parse error for month 13, got %v", err)
	}
}

func TestFormatUTC(t *testing.T) {
	loc := time.FixedZone("JST", 9*60*60)
	got := FormatUTC(time.Date(2024, 1, 1, 9, 0, 0, 500, loc))
	if got != "2024-01-01T00:00:00Z" {
		t.Errorf("Expected 2024-01-01T00:00:00Z, got %s", got)
	}
}
