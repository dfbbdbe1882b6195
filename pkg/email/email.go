// Package email provides small helpers over email addresses. Booking rosters
// sometimes arrive with a guardian email but no guardian name; the display
// name is derived from the address rather than shown blank.
package email

import (
	"strings"
	"unicode"
)

// DeriveName builds a presentable name from the local part of an address.
// "jane.doe+school@example.com" becomes "Jane Doe". Returns "Guardian" when
// nothing usable is present.
func DeriveName(email string) string {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}
	// Plus tags are routing hints, not name material.
	if plus := strings.IndexByte(localPart, '+'); plus >= 0 {
		localPart = localPart[:plus]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	if len(parts) == 0 {
		return "Guardian"
	}

	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
