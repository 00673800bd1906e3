package host

import (
	"strings"
	"unicode"
)

// ToKebab converts a Go identifier to a WIT kebab-case name.
// Acronyms stay together: "HTTPRequest" becomes "http-request".
func ToKebab(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !unicode.IsUpper(r) {
			if r == '_' {
				r = '-'
			}
			result.WriteRune(r)
			continue
		}

		end := i + 1
		for end < len(runes) && unicode.IsUpper(runes[end]) {
			end++
		}
		// The last capital of a run starts the next word.
		if end > i+1 && end < len(runes) && unicode.IsLower(runes[end]) {
			end--
		}
		if i > 0 && runes[i-1] != '_' && runes[i-1] != '-' {
			result.WriteByte('-')
		}
		for j := i; j < end; j++ {
			result.WriteRune(unicode.ToLower(runes[j]))
		}
		i = end - 1
	}
	return result.String()
}

// ToCamel converts a kebab-case name to lowerCamelCase.
func ToCamel(s string) string {
	p := ToPascal(s)
	if p == "" {
		return ""
	}
	r := []rune(p)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// ToPascal converts a kebab-case name to PascalCase.
func ToPascal(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if r == '-' || r == '_' {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
