package util

import (
	"math"
	"testing"
	"time"
)

func TestParseDateISO(t *testing.T) {
	got, ok := ParseDate("2024-03-01")
	if !ok {
		t.Fatalf("expected ok")
	}
	if !got.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", got)
	}
}

func TestParseDateDayFirst(t *testing.T) {
	got, ok := ParseDate("05/03/2024")
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Month() != time.March || got.Day() != 5 {
		t.Fatalf("expected day-first parse, got %v", got)
	}
}

func TestParseDateTruncatesClock(t *testing.T) {
	got, ok := ParseDate("2024-03-01T17:45:00+02:00")
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Hour() != 0 || got.Location() != time.UTC {
		t.Fatalf("expected midnight UTC, got %v", got)
	}
}

func TestFormatFloatMissing(t *testing.T) {
	if s := FormatFloat(math.NaN()); s != "" {
		t.Fatalf("expected empty marker, got %q", s)
	}
	if s := FormatFloat(0); s != "0" {
		t.Fatalf("zero must not be rendered as missing, got %q", s)
	}
}

func TestParseFloat(t *testing.T) {
	if _, ok := ParseFloat(""); ok {
		t.Fatalf("empty cell must be missing")
	}
	v, ok := ParseFloat(" 1.25 ")
	if !ok || v != 1.25 {
		t.Fatalf("unexpected %v %v", v, ok)
	}
}
