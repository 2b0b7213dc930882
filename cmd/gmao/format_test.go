package main

import (
	"testing"
	"time"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"Pompe", 10, "Pompe"},
		{"Inspection générale", 10, "Inspectio…"},
		{"abc", 3, "abc"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2025-04-07", time.Date(2025, 4, 7, 0, 0, 0, 0, time.Local), true},
		{"2025-04-07 06:30", time.Date(2025, 4, 7, 6, 30, 0, 0, time.Local), true},
		{"2025-04-07T06:30:00Z", time.Date(2025, 4, 7, 6, 30, 0, 0, time.UTC), true},
		{"07/04/2025", time.Time{}, false},
	}
	for _, tt := range tests {
		got, err := parseTime(tt.in)
		if tt.ok != (err == nil) {
			t.Errorf("parseTime(%q) err = %v", tt.in, err)
			continue
		}
		if tt.ok && !got.Equal(tt.want) {
			t.Errorf("parseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "0", true},
		{"120.50", "120.5", true},
		{"80,25", "80.25", true},
		{"dix", "", false},
	}
	for _, tt := range tests {
		got, err := parseMoney("labor", tt.in)
		if tt.ok != (err == nil) {
			t.Errorf("parseMoney(%q) err = %v", tt.in, err)
			continue
		}
		if tt.ok && got.String() != tt.want {
			t.Errorf("parseMoney(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
