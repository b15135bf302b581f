package sms_test

import (
	"strings"
	"testing"

	"github.com/smsfleet/smsfleet-api/internal/domain/sms"
)

func TestAnalyzePlainASCII(t *testing.T) {
	a := sms.Analyze("hello world")

	if a.Encoding != sms.EncodingGSM7 {
		t.Fatalf("expected GSM-7, got %s", a.Encoding)
	}
	if a.Length != 11 {
		t.Fatalf("expected length 11, got %d", a.Length)
	}
	if a.Segments != 1 {
		t.Fatalf("expected 1 segment, got %d", a.Segments)
	}
}

func TestAnalyzeEmptyMessage(t *testing.T) {
	a := sms.Analyze("")
	if a.Segments != 0 {
		t.Fatalf("expected 0 segments for empty message, got %d", a.Segments)
	}
	if a.Length != 0 {
		t.Fatalf("expected length 0, got %d", a.Length)
	}
}

func TestAnalyzeLongASCII(t *testing.T) {
	// 500 plain chars: ceil(500/153) = 4 concatenated parts
	a := sms.Analyze(strings.Repeat("a", 500))

	if a.Encoding != sms.EncodingGSM7 {
		t.Fatalf("expected GSM-7, got %s", a.Encoding)
	}
	if a.Segments != 4 {
		t.Fatalf("expected 4 segments, got %d", a.Segments)
	}
}

func TestAnalyzeBoundary160(t *testing.T) {
	if a := sms.Analyze(strings.Repeat("a", 160)); a.Segments != 1 {
		t.Fatalf("160 chars should be 1 segment, got %d", a.Segments)
	}
	if a := sms.Analyze(strings.Repeat("a", 161)); a.Segments != 2 {
		t.Fatalf("161 chars should be 2 segments, got %d", a.Segments)
	}
}

func TestAnalyzeExtensionCharsCostTwoSeptets(t *testing.T) {
	// 80 euro signs cost 160 septets: still a single part
	a := sms.Analyze(strings.Repeat("€", 80))
	if a.Encoding != sms.EncodingGSM7 {
		t.Fatalf("expected GSM-7, got %s", a.Encoding)
	}
	if a.Length != 160 {
		t.Fatalf("expected 160 septets, got %d", a.Length)
	}
	if a.Segments != 1 {
		t.Fatalf("expected 1 segment, got %d", a.Segments)
	}

	// One more pushes it over the single-part limit
	a = sms.Analyze(strings.Repeat("€", 81))
	if a.Segments != 2 {
		t.Fatalf("expected 2 segments, got %d", a.Segments)
	}
}

func TestAnalyzeEmojiForcesUCS2(t *testing.T) {
	a := sms.Analyze("Emoji 😊😊😊 test msg")

	if a.Encoding != sms.EncodingUCS2 {
		t.Fatalf("expected UCS-2, got %s", a.Encoding)
	}
	if a.Segments != 1 {
		t.Fatalf("expected 1 segment, got %d", a.Segments)
	}
}

func TestAnalyzeSingleWideCharAnywhereForcesUCS2(t *testing.T) {
	msg := strings.Repeat("a", 140) + "漢"
	a := sms.Analyze(msg)

	if a.Encoding != sms.EncodingUCS2 {
		t.Fatalf("expected UCS-2, got %s", a.Encoding)
	}
	// 141 code points > 70: ceil(141/67) = 3
	if a.Segments != 3 {
		t.Fatalf("expected 3 segments, got %d", a.Segments)
	}
}

func TestAnalyzeUCS2Boundary70(t *testing.T) {
	if a := sms.Analyze(strings.Repeat("ω", 70)); a.Segments != 1 {
		t.Fatalf("70 UCS-2 chars should be 1 segment, got %d", a.Segments)
	}
	if a := sms.Analyze(strings.Repeat("ω", 71)); a.Segments != 2 {
		t.Fatalf("71 UCS-2 chars should be 2 segments, got %d", a.Segments)
	}
}

func TestAnalyzeDanishGSM7(t *testing.T) {
	// æ is not in the GSM-7 basic set; ø and å are
	a := sms.Analyze("Hej med øå")
	if a.Encoding != sms.EncodingGSM7 {
		t.Fatalf("expected GSM-7 for øå, got %s", a.Encoding)
	}

	a = sms.Analyze("Hej med æøå")
	if a.Encoding != sms.EncodingUCS2 {
		t.Fatalf("expected UCS-2 for æ, got %s", a.Encoding)
	}
}
