package recipient

import (
	"bytes"
	"encoding/csv"
	"strings"
)

// FileType declares how a recipient source should be read
type FileType string

const (
	FileTypeText FileType = "text" // delimited text, tokens per line
	FileTypeCSV  FileType = "csv"  // tabular, cells flattened in row order
)

// StrictRule enables exact-prefix validation: a number must consist of the
// country code followed by a fixed-length national number, written without
// a leading "+" or "00".
type StrictRule struct {
	CountryCode    string
	NationalLength int
}

// Options controls normalization
type Options struct {
	// Strict, when set, replaces the loosened 8-15 digit rule
	Strict *StrictRule
}

// Result is the outcome of parsing one recipient source.
//
// TotalParsed counts every attempted token, including invalid and duplicate
// ones — it is the billing basis. Charging for garbage input is documented
// behavior: it discourages unvalidated uploads.
type Result struct {
	TotalParsed int      `json:"total_parsed"`
	Invalid     int      `json:"invalid"`
	Duplicates  int      `json:"duplicates"`
	Sendable    []string `json:"sendable"`
}

// Parse turns raw file content into a deduplicated, ordered recipient list.
// The sendable order is first-occurrence order and the whole function is
// deterministic, so re-parsing the same source yields the same slice — the
// dispatch worker relies on that to resume from a numeric checkpoint.
func Parse(raw []byte, fileType FileType, opts Options) Result {
	cells := extractCells(raw, fileType)

	seen := make(map[string]struct{})
	result := Result{Sendable: []string{}}

	for _, cell := range cells {
		for _, token := range splitTokens(cell) {
			result.TotalParsed++

			number, ok := Normalize(token, opts)
			if !ok {
				result.Invalid++
				continue
			}
			if _, dup := seen[number]; dup {
				result.Duplicates++
				continue
			}
			seen[number] = struct{}{}
			result.Sendable = append(result.Sendable, number)
		}
	}

	return result
}

// Normalize strips formatting from one token and validates it as an MSISDN.
// Returns the digit string and whether the token qualifies.
func Normalize(token string, opts Options) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	digits := stripNonDigits(token)
	if digits == "" {
		return "", false
	}

	if opts.Strict != nil {
		// International prefixes are rejected outright in strict mode
		if strings.HasPrefix(token, "+") || strings.HasPrefix(token, "00") {
			return "", false
		}
		cc := opts.Strict.CountryCode
		if len(digits) != len(cc)+opts.Strict.NationalLength {
			return "", false
		}
		if !strings.HasPrefix(digits, cc) {
			return "", false
		}
		return digits, true
	}

	// Loosened rule: 8-15 digits covers national numbers and E.164 without +
	if len(digits) < 8 || len(digits) > 15 {
		return "", false
	}
	return digits, true
}

func stripNonDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// extractCells flattens the source into cells. CSV rows are read with a
// tolerant reader; on a malformed file we fall back to plain line splitting
// so a half-broken upload still bills every attempted token.
func extractCells(raw []byte, fileType FileType) []string {
	if fileType == FileTypeCSV {
		reader := csv.NewReader(bytes.NewReader(raw))
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
		reader.TrimLeadingSpace = true

		records, err := reader.ReadAll()
		if err == nil {
			var cells []string
			for _, row := range records {
				cells = append(cells, row...)
			}
			return cells
		}
	}

	return splitLines(string(raw))
}

func splitLines(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == '\r'
	})
}

// splitTokens breaks one cell or line on every supported delimiter
func splitTokens(cell string) []string {
	return strings.FieldsFunc(cell, func(r rune) bool {
		switch r {
		case ',', ';', '\t', '|', ' ':
			return true
		}
		return false
	})
}
