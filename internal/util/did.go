package util

import "strings"

// NormalizeDID reduces a dialed number to its last ten digits so the same
// DID matches regardless of formatting ("+1 (555) 123-4567" vs "5551234567").
// Numbers with fewer than ten digits are returned as their digit string.
func NormalizeDID(did string) string {
	var b strings.Builder
	for _, r := range did {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		return digits[len(digits)-10:]
	}
	return digits
}
