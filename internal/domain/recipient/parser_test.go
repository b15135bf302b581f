package recipient_test

import (
	"testing"

	"github.com/smsfleet/smsfleet-api/internal/domain/recipient"
)

func TestParseCountsInvalidAndDuplicates(t *testing.T) {
	raw := []byte("4511111111\n4511111111\nabc\n4511")

	r := recipient.Parse(raw, recipient.FileTypeText, recipient.Options{})

	if r.TotalParsed != 4 {
		t.Fatalf("expected totalParsed 4, got %d", r.TotalParsed)
	}
	if r.Duplicates != 1 {
		t.Fatalf("expected 1 duplicate, got %d", r.Duplicates)
	}
	// "abc" has no digits, "4511" has fewer than 8
	if r.Invalid != 2 {
		t.Fatalf("expected 2 invalid, got %d", r.Invalid)
	}
	if len(r.Sendable) != 1 || r.Sendable[0] != "4511111111" {
		t.Fatalf("unexpected sendable: %v", r.Sendable)
	}
}

func TestParseAccountingIdentity(t *testing.T) {
	raw := []byte("4511111111, 4522222222; 4511111111\tabc 4533333333|12")

	r := recipient.Parse(raw, recipient.FileTypeText, recipient.Options{})

	if r.TotalParsed != r.Invalid+r.Duplicates+len(r.Sendable) {
		t.Fatalf("identity broken: total=%d invalid=%d dup=%d sendable=%d",
			r.TotalParsed, r.Invalid, r.Duplicates, len(r.Sendable))
	}
}

func TestParseFirstOccurrenceOrder(t *testing.T) {
	raw := []byte("4533333333\n4511111111\n4522222222\n4511111111")

	r := recipient.Parse(raw, recipient.FileTypeText, recipient.Options{})

	want := []string{"4533333333", "4511111111", "4522222222"}
	if len(r.Sendable) != len(want) {
		t.Fatalf("expected %d sendable, got %d", len(want), len(r.Sendable))
	}
	for i, n := range want {
		if r.Sendable[i] != n {
			t.Fatalf("at %d: expected %s, got %s", i, n, r.Sendable[i])
		}
	}
}

func TestParseDeterministic(t *testing.T) {
	raw := []byte("45 1111 1111\n+45 2222-2222\n45.3333.3333")

	first := recipient.Parse(raw, recipient.FileTypeText, recipient.Options{})
	second := recipient.Parse(raw, recipient.FileTypeText, recipient.Options{})

	if len(first.Sendable) != len(second.Sendable) {
		t.Fatalf("parse not deterministic")
	}
	for i := range first.Sendable {
		if first.Sendable[i] != second.Sendable[i] {
			t.Fatalf("order differs at %d: %s vs %s", i, first.Sendable[i], second.Sendable[i])
		}
	}
}

func TestParseCSVCells(t *testing.T) {
	raw := []byte("name,phone\nalice,4511111111\nbob,4522222222\n")

	r := recipient.Parse(raw, recipient.FileTypeCSV, recipient.Options{})

	if len(r.Sendable) != 2 {
		t.Fatalf("expected 2 sendable, got %v", r.Sendable)
	}
	if r.Sendable[0] != "4511111111" || r.Sendable[1] != "4522222222" {
		t.Fatalf("unexpected sendable: %v", r.Sendable)
	}
}

func TestNormalizeStripsFormatting(t *testing.T) {
	n, ok := recipient.Normalize("+45 11 22 33 44", recipient.Options{})
	if !ok {
		t.Fatal("expected valid number")
	}
	if n != "4511223344" {
		t.Fatalf("expected 4511223344, got %s", n)
	}
}

func TestNormalizeLooseBounds(t *testing.T) {
	if _, ok := recipient.Normalize("1234567", recipient.Options{}); ok {
		t.Fatal("7 digits should be invalid")
	}
	if _, ok := recipient.Normalize("12345678", recipient.Options{}); !ok {
		t.Fatal("8 digits should be valid")
	}
	if _, ok := recipient.Normalize("123456789012345", recipient.Options{}); !ok {
		t.Fatal("15 digits should be valid")
	}
	if _, ok := recipient.Normalize("1234567890123456", recipient.Options{}); ok {
		t.Fatal("16 digits should be invalid")
	}
}

func TestNormalizeStrictMode(t *testing.T) {
	opts := recipient.Options{Strict: &recipient.StrictRule{CountryCode: "45", NationalLength: 8}}

	if n, ok := recipient.Normalize("4511223344", opts); !ok || n != "4511223344" {
		t.Fatalf("expected strict match, got %q ok=%v", n, ok)
	}
	if _, ok := recipient.Normalize("+4511223344", opts); ok {
		t.Fatal("leading + must be rejected in strict mode")
	}
	if _, ok := recipient.Normalize("004511223344", opts); ok {
		t.Fatal("leading 00 must be rejected in strict mode")
	}
	if _, ok := recipient.Normalize("4611223344", opts); ok {
		t.Fatal("wrong country code must be rejected")
	}
	if _, ok := recipient.Normalize("451122334", opts); ok {
		t.Fatal("wrong national length must be rejected")
	}
}
