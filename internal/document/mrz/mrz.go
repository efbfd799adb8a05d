// Package mrz finds and validates ICAO 9303 machine-readable zones in OCR text.
//
// Only TD1 (identity cards, 3x30) and TD3 (passports, 2x44) are recognized.
// A zone is Valid only when every check digit, including the composite, passes.
package mrz

import (
	"strings"
	"time"
)

// Format names the MRZ layout.
type Format string

const (
	FormatTD1 Format = "TD1"
	FormatTD3 Format = "TD3"
)

// Zone is a parsed MRZ. Dates are formatted DD/MM/YYYY to match the
// fallback extractor.
type Zone struct {
	Format         Format
	DocumentCode   string
	IssuingState   string
	DocumentNumber string
	Nationality    string
	BirthDate      string
	Sex            string
	ExpiryDate     string
	Surname        string
	GivenNames     string
	Valid          bool
}

// FullName joins given names and surname, or returns "" when both are empty.
func (z Zone) FullName() string {
	return strings.TrimSpace(strings.Join(strings.Fields(z.GivenNames+" "+z.Surname), " "))
}

// Find returns the first TD3 or TD1 zone in text. now resolves two-digit
// birth years.
func Find(text string, now time.Time) (Zone, bool) {
	lines := candidateLines(text)
	for i := range lines {
		if i+1 < len(lines) && len(lines[i]) == 44 && len(lines[i+1]) == 44 {
			return parseTD3(lines[i], lines[i+1], now), true
		}
		if i+2 < len(lines) && len(lines[i]) == 30 && len(lines[i+1]) == 30 && len(lines[i+2]) == 30 {
			return parseTD1(lines[i], lines[i+1], lines[i+2], now), true
		}
	}
	return Zone{}, false
}

func candidateLines(text string) []string {
	var out []string
	for _, raw := range strings.Split(text, "\n") {
		line := normalizeLine(raw)
		if isMRZLine(line) {
			out = append(out, line)
		} else {
			// zone lines must be consecutive
			out = append(out, "")
		}
	}
	return out
}

func normalizeLine(s string) string {
	s = strings.ToUpper(s)
	s = strings.NewReplacer(" ", "", "\t", "", "«", "<", "\r", "").Replace(s)
	return s
}

func isMRZLine(s string) bool {
	if len(s) != 30 && len(s) != 44 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '<' {
			return false
		}
	}
	return true
}

func parseTD3(l1, l2 string, now time.Time) Zone {
	surname, given := splitName(l1[5:44])
	z := Zone{
		Format:         FormatTD3,
		DocumentCode:   trimFiller(l1[0:2]),
		IssuingState:   trimFiller(l1[2:5]),
		Surname:        surname,
		GivenNames:     given,
		DocumentNumber: trimFiller(l2[0:9]),
		Nationality:    trimFiller(l2[10:13]),
		BirthDate:      formatDate(l2[13:19], now, true),
		Sex:            trimFiller(l2[20:21]),
		ExpiryDate:     formatDate(l2[21:27], now, false),
	}
	z.Valid = CheckDigit(l2[0:9]) == l2[9] &&
		CheckDigit(l2[13:19]) == l2[19] &&
		CheckDigit(l2[21:27]) == l2[27] &&
		optionalCheck(l2[28:42], l2[42]) &&
		CheckDigit(l2[0:10]+l2[13:20]+l2[21:43]) == l2[43]
	return z
}

func parseTD1(l1, l2, l3 string, now time.Time) Zone {
	surname, given := splitName(l3)
	z := Zone{
		Format:         FormatTD1,
		DocumentCode:   trimFiller(l1[0:2]),
		IssuingState:   trimFiller(l1[2:5]),
		DocumentNumber: trimFiller(l1[5:14]),
		BirthDate:      formatDate(l2[0:6], now, true),
		Sex:            trimFiller(l2[7:8]),
		ExpiryDate:     formatDate(l2[8:14], now, false),
		Nationality:    trimFiller(l2[15:18]),
		Surname:        surname,
		GivenNames:     given,
	}
	z.Valid = CheckDigit(l1[5:14]) == l1[14] &&
		CheckDigit(l2[0:6]) == l2[6] &&
		CheckDigit(l2[8:14]) == l2[14] &&
		CheckDigit(l1[5:30]+l2[0:7]+l2[8:15]+l2[18:29]) == l2[29]
	return z
}

// optionalCheck accepts a filler check digit when the optional field is empty.
func optionalCheck(field string, digit byte) bool {
	if trimFiller(field) == "" && (digit == '<' || digit == '0') {
		return true
	}
	return CheckDigit(field) == digit
}

// CheckDigit computes the ICAO 9303 check digit (weights 7, 3, 1).
func CheckDigit(s string) byte {
	weights := [3]int{7, 3, 1}
	sum := 0
	for i := 0; i < len(s); i++ {
		sum += charValue(s[i]) * weights[i%3]
	}
	return byte('0' + sum%10)
}

func charValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	default:
		return 0
	}
}

func splitName(field string) (surname, given string) {
	parts := strings.SplitN(field, "<<", 2)
	surname = fillerToSpace(parts[0])
	if len(parts) == 2 {
		given = fillerToSpace(parts[1])
	}
	return surname, given
}

func fillerToSpace(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "<", " ")), " ")
}

func trimFiller(s string) string {
	return strings.Trim(s, "<")
}

// formatDate turns YYMMDD into DD/MM/YYYY. Birth years in the future are
// pushed back a century; expiry years are always 20YY. Malformed input yields "".
func formatDate(yymmdd string, now time.Time, birth bool) string {
	for i := 0; i < len(yymmdd); i++ {
		if yymmdd[i] < '0' || yymmdd[i] > '9' {
			return ""
		}
	}
	yy := int(yymmdd[0]-'0')*10 + int(yymmdd[1]-'0')
	year := 2000 + yy
	if birth && year > now.Year() {
		year -= 100
	}
	month := int(yymmdd[2]-'0')*10 + int(yymmdd[3]-'0')
	day := int(yymmdd[4]-'0')*10 + int(yymmdd[5]-'0')
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return ""
	}
	return t.Format("02/01/2006")
}
