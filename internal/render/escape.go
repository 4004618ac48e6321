package render

import (
	"fmt"
	"strings"
)

// QuoteString returns s as a TOML basic string, including the quotes.
func QuoteString(s string) string {
	return `"` + EscapeBasic(s) + `"`
}

// EscapeBasic escapes s for inclusion between the quotes of a TOML basic
// string. It is also used when substituting secret values so that a value
// can never terminate the string it is placed in.
func EscapeBasic(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\f':
			b.WriteString(`\f`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04X`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
