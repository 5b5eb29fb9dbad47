package domain

import "strings"

// NormalizeCard strips spaces and dashes from a card number. Returns the
// empty string when any other non-digit character is present.
func NormalizeCard(card string) string {
	var b strings.Builder
	b.Grow(len(card))
	for _, r := range card {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-':
		default:
			return ""
		}
	}
	return b.String()
}

// MaskCard derives the BIN (leading six digits) and last four digits from a
// normalized card number. Both are empty when the number is too short.
func MaskCard(normalized string) (bin, last4 string) {
	if len(normalized) < 10 {
		return "", ""
	}
	return normalized[:6], normalized[len(normalized)-4:]
}

// MatchBIN reports whether the card number's leading digits match any of
// the given BIN prefixes. Cards shorter than six digits match nothing.
func MatchBIN(cardNumber string, prefixes []string) bool {
	normalized := NormalizeCard(cardNumber)
	if len(normalized) < 6 {
		return false
	}
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(normalized, prefix) {
			return true
		}
	}
	return false
}

// DetectBrand returns a display brand for a normalized card number. Only the
// major schemes are recognized; unknown prefixes yield the empty string.
func DetectBrand(normalized string) string {
	if len(normalized) < 4 {
		return ""
	}
	first2 := normalized[:2]
	first4 := normalized[:4]
	switch {
	case normalized[0] == '4':
		return "VISA"
	case first2 >= "51" && first2 <= "55", first4 >= "2221" && first4 <= "2720":
		return "MASTERCARD"
	case first2 == "34" || first2 == "37":
		return "AMEX"
	default:
		return ""
	}
}
