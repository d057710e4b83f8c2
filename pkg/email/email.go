package email

import (
	"net/mail"
	"strings"
	"unicode"

	dErrors "esfe/pkg/domain-errors"
)

// Normalize trims and lowercases an address and checks that it parses as a
// bare address.
func Normalize(address string) (string, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid email address")
	}
	return address, nil
}

// GreetingName returns name, or a capitalized guess from the address local
// part when name is blank.
func GreetingName(name, address string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	localPart := address
	if at := strings.IndexByte(address, '@'); at >= 0 {
		localPart = address[:at]
	}
	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "Étudiant"
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
