package pii

// Checksum validation for Polish identification numbers. A regex match for
// PL_NIP, PL_REGON, or PL_PESEL is only kept when its checksum holds, which
// removes the bulk of random-digit false positives.

// extractDigits collects the decimal digits of s, ignoring separators such
// as hyphens and spaces.
func extractDigits(s string) []int {
	digits := make([]int, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	return digits
}

// ValidNIP checks the weighted mod-11 checksum of a Polish NIP (tax ID).
func ValidNIP(nip string) bool {
	digits := extractDigits(nip)
	if len(digits) != 10 {
		return false
	}

	weights := []int{6, 5, 7, 2, 3, 4, 5, 6, 7}
	sum := 0
	for i, w := range weights {
		sum += digits[i] * w
	}

	checksum := sum % 11
	// A checksum of 10 is never issued.
	if checksum == 10 {
		return false
	}
	return checksum == digits[9]
}

// ValidREGON checks the checksum of a Polish REGON (business ID), accepting
// both the 9-digit and the extended 14-digit form.
func ValidREGON(regon string) bool {
	digits := extractDigits(regon)
	switch len(digits) {
	case 9:
		return validRegonDigits(digits, []int{8, 9, 2, 3, 4, 5, 6, 7})
	case 14:
		return validRegonDigits(digits, []int{2, 4, 8, 5, 0, 9, 7, 3, 6, 1, 2, 4, 8})
	default:
		return false
	}
}

func validRegonDigits(digits, weights []int) bool {
	sum := 0
	for i, w := range weights {
		sum += digits[i] * w
	}

	checksum := sum % 11
	if checksum == 10 {
		return false
	}
	return checksum == digits[len(digits)-1]
}

// ValidPESEL checks the weighted mod-10 checksum of a Polish PESEL
// (national ID).
func ValidPESEL(pesel string) bool {
	digits := extractDigits(pesel)
	if len(digits) != 11 {
		return false
	}

	weights := []int{1, 3, 7, 9, 1, 3, 7, 9, 1, 3}
	sum := 0
	for i, w := range weights {
		sum += digits[i] * w
	}

	checksum := (10 - sum%10) % 10
	return checksum == digits[10]
}

// checksumValidators routes locale-specific entity types to their checksum
// check. Types without an entry are accepted as matched.
var checksumValidators = map[EntityType]func(string) bool{
	TypePLNIP:   ValidNIP,
	TypePLRegon: ValidREGON,
	TypePLPesel: ValidPESEL,
}
