package sms

// Encoding identifies how a message body is carried on the wire
type Encoding string

const (
	EncodingGSM7 Encoding = "GSM-7"
	EncodingUCS2 Encoding = "UCS-2"
)

// Segment thresholds per GSM 03.38: a single-part message carries 160
// septets (70 UCS-2 code points); concatenated parts lose header room and
// carry 153 (67) each.
const (
	gsm7SingleLimit = 160
	gsm7MultiLimit  = 153
	ucs2SingleLimit = 70
	ucs2MultiLimit  = 67
)

// Analysis is the billing-relevant shape of a message body
type Analysis struct {
	Encoding Encoding `json:"encoding"`
	Length   int      `json:"length"`
	Segments int      `json:"segments"`
}

// gsm7Basic is the GSM 03.38 basic character set. Each member costs one septet.
var gsm7Basic = makeRuneSet("@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞ !\"#¤%&'()*+,-./0123456789:;<=>?¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà")

// gsm7Extension members cost two septets (escape + character)
var gsm7Extension = makeRuneSet("^{}\\[~]|€")

func makeRuneSet(chars string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(chars))
	for _, r := range chars {
		set[r] = struct{}{}
	}
	return set
}

// Analyze classifies a message body and counts its transport segments.
// A single rune outside both GSM-7 repertoires forces the whole message to
// UCS-2 accounting. An empty message has zero segments.
//
// This is the billing basis: it is always recomputed server-side at
// admission and client-reported segment counts are never trusted.
func Analyze(message string) Analysis {
	if message == "" {
		return Analysis{Encoding: EncodingGSM7, Length: 0, Segments: 0}
	}

	septets := 0
	gsm7 := true
	for _, r := range message {
		if _, ok := gsm7Basic[r]; ok {
			septets++
			continue
		}
		if _, ok := gsm7Extension[r]; ok {
			septets += 2
			continue
		}
		gsm7 = false
		break
	}

	if gsm7 {
		return Analysis{
			Encoding: EncodingGSM7,
			Length:   septets,
			Segments: segmentCount(septets, gsm7SingleLimit, gsm7MultiLimit),
		}
	}

	codePoints := 0
	for range message {
		codePoints++
	}
	return Analysis{
		Encoding: EncodingUCS2,
		Length:   codePoints,
		Segments: segmentCount(codePoints, ucs2SingleLimit, ucs2MultiLimit),
	}
}

func segmentCount(length, singleLimit, multiLimit int) int {
	switch {
	case length == 0:
		return 0
	case length <= singleLimit:
		return 1
	default:
		return (length + multiLimit - 1) / multiLimit
	}
}
