package extraction

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"certproof/internal/document/mrz"
	"certproof/internal/document/ocr"
)

var (
	datePattern = regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b|\b\d{2}-\d{2}-\d{4}\b`)

	// Tried in order; the first pattern with a match wins.
	documentNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b[A-Z]{2}\d{7}\b`),
		regexp.MustCompile(`\b\d{9}\b`),
		regexp.MustCompile(`\b[A-Z]\d{8}\b`),
	}
)

const minNameRunes = 5

// Fallback extracts fields from OCR text with local rules only. It never
// fails and performs no I/O. Confidence is the OCR confidence.
//
// When the text carries a machine-readable zone with passing check digits,
// mrz_validated is set, regional flags come from the issuing state, and MRZ
// values fill fields the regex rules left empty.
func Fallback(ocrText string, ocrConfidence float64, now time.Time) Fields {
	f := Fields{Confidence: ocr.ClampConfidence(ocrConfidence)}

	dates := datePattern.FindAllString(ocrText, -1)
	if len(dates) > 0 {
		f.DateOfBirth = optional(dates[0])
	}
	if len(dates) >= 2 {
		f.ExpiryDate = optional(dates[len(dates)-1])
	}

	for _, p := range documentNumberPatterns {
		if m := p.FindString(ocrText); m != "" {
			f.DocumentNumber = optional(m)
			break
		}
	}

	f.FullName = optional(detectName(ocrText))

	if zone, ok := mrz.Find(ocrText, now); ok && zone.Valid {
		f.MRZValidated = true
		f.IsUEMOA = mrz.IsUEMOA(zone.IssuingState)
		f.IsCEDEAO = mrz.IsCEDEAO(zone.IssuingState)
		f.fillMissing(Fields{
			FullName:       optional(zone.FullName()),
			DateOfBirth:    optional(zone.BirthDate),
			DocumentNumber: optional(zone.DocumentNumber),
			ExpiryDate:     optional(zone.ExpiryDate),
			Nationality:    optional(zone.Nationality),
			Gender:         optional(zone.Sex),
		})
	}
	return f
}

// detectName returns the first line made only of letters and spaces with at
// least five characters and two tokens.
func detectName(text string) string {
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(norm.NFC.String(raw))
		if utf8.RuneCountInString(line) < minNameRunes {
			continue
		}
		if !lettersAndSpaces(line) {
			continue
		}
		if len(strings.Fields(line)) < 2 {
			continue
		}
		return strings.Join(strings.Fields(line), " ")
	}
	return ""
}

func lettersAndSpaces(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && r != ' ' {
			return false
		}
	}
	return true
}
