package chain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPlaceholder is returned when a template references a key with no value
var ErrUnknownPlaceholder = errors.New("unknown placeholder")

// Render substitutes {key} placeholders in tmpl with vars.
//
// "{{" and "}}" produce literal braces. A brace that does not open an
// identifier, as in embedded JSON, is copied through unchanged.
func Render(tmpl string, vars map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]

		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := identEnd(tmpl, i+1)
			if end == i+1 || end >= len(tmpl) || tmpl[end] != '}' {
				b.WriteByte(c)
				continue
			}
			key := tmpl[i+1 : end]
			v, ok := vars[key]
			if !ok {
				return "", fmt.Errorf("%w: {%s}", ErrUnknownPlaceholder, key)
			}
			b.WriteString(v)
			i = end
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// Placeholders lists the distinct keys referenced by tmpl, in order
func Placeholders(tmpl string) []string {
	var keys []string
	seen := make(map[string]bool)
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '{' {
			continue
		}
		if i+1 < len(tmpl) && tmpl[i+1] == '{' {
			i++
			continue
		}
		end := identEnd(tmpl, i+1)
		if end == i+1 || end >= len(tmpl) || tmpl[end] != '}' {
			continue
		}
		key := tmpl[i+1 : end]
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
		i = end
	}
	return keys
}

func identEnd(s string, start int) int {
	i := start
	for i < len(s) {
		c := s[i]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			i++
			continue
		}
		break
	}
	return i
}
