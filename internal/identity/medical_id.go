package identity

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const (
	InvalidMedicalID = "Invalid Format"
	UnknownMedicalID = "Unknown"
)

// ResolveMedicalID returns the display form of an MRN. It is read-only: the
// stored MRN is never rewritten because of what this returns.
func ResolveMedicalID(mrn string) string {
	mrn = strings.TrimSpace(mrn)

	if len(mrn) == MRNLength && isAlnum(mrn) {
		if isAllLetters(mrn) {
			return InvalidMedicalID
		}
		return strings.ToUpper(mrn)
	}

	if id, err := uuid.Parse(mrn); err == nil {
		hex := strings.ReplaceAll(id.String(), "-", "")
		return "P-" + strings.ToUpper(hex[:4])
	}

	var b strings.Builder
	for _, r := range mrn {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
			if b.Len() == 6 {
				break
			}
		}
	}
	if b.Len() == 0 {
		return UnknownMedicalID
	}
	return "P-" + b.String()
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func isAllLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
