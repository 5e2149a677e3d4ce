package rfc1123

import (
	"testing"
	"time"
)

func TestFormatParseRoundTrip(t *testing.T) {
	for _, sec := range []int64{0, 1, 784111777, 1700000000} {
		want := time.Unix(sec, 0).UTC()
		got, ok := Parse(Format(want))
		if !ok {
			t.Fatalf("Parse rejected its own Format output for %d", sec)
		}
		if !got.Equal(want) {
			t.Fatalf("round trip of %v yielded %v", want, got)
		}
	}
}

func TestParseAcceptsObsoleteForms(t *testing.T) {
	want := time.Date(1994, time.November, 6, 8, 49, 37, 0, time.UTC)
	for _, s := range []string{
		"Sun, 06 Nov 1994 08:49:37 GMT",
		"Sunday, 06-Nov-94 08:49:37 GMT",
		"Sun Nov  6 08:49:37 1994",
	} {
		got, ok := Parse(s)
		if !ok || !got.Equal(want) {
			t.Fatalf("Parse(%q) = %v, %v; want %v, true", s, got, ok, want)
		}
	}
}

func TestParseRejectsNonGMTZone(t *testing.T) {
	if _, ok := Parse("Sun, 06 Nov 1994 08:49:37 PST"); ok {
		t.Fatal("non-GMT zone accepted")
	}
	if _, ok := Parse("not a date"); ok {
		t.Fatal("garbage accepted")
	}
}
