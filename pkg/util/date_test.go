package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestAlignFromTo(t *testing.T) {
	from := time.Date(2024, 10, 10, 10, 10, 10, 500, time.UTC)
	to := time.Date(2024, 10, 10, 10, 17, 42, 0, time.UTC)

	af, at := AlignFromTo(from, to, "1s")
	if af.Nanosecond() != 0 || at.Second() != 42 {
		t.Fatalf("1s alignment wrong: %v %v", af, at)
	}

	af, at = AlignFromTo(from, to, "1m")
	if af.Second() != 0 || at.Second() != 0 || at.Minute() != 17 {
		t.Fatalf("1m alignment wrong: %v %v", af, at)
	}

	af, at = AlignFromTo(from, to, "5m")
	if af.Minute() != 10 || at.Minute() != 15 {
		t.Fatalf("5m alignment wrong: %v %v", af, at)
	}
}
