package values

import "strings"

// DefaultCPVPrefixLen groups tenders into market segments by the first three
// digits of the CPV code (division + group level).
const DefaultCPVPrefixLen = 3

// SegmentKey derives a market-segment key from a CPV code. Non-digit
// characters after the numeric prefix (e.g. the "-5" check digit suffix) are
// dropped. An empty or too-short code maps to the catch-all segment "000".
func SegmentKey(cpvCode string, prefixLen int) string {
	if prefixLen <= 0 {
		prefixLen = DefaultCPVPrefixLen
	}

	digits := strings.Builder{}
	for _, ch := range cpvCode {
		if ch < '0' || ch > '9' {
			break
		}
		digits.WriteRune(ch)
		if digits.Len() == prefixLen {
			break
		}
	}

	if digits.Len() < prefixLen {
		return strings.Repeat("0", prefixLen)
	}
	return digits.String()
}
