package properties

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
)

const whitespace = " \t\f"

// ErrMalformedEscape is returned for a \u escape that is not followed by four
// hexadecimal digits.
var ErrMalformedEscape = errors.New("malformed \\uxxxx encoding")

type physicalLine struct {
	text string
	eol  string
}

func (p physicalLine) raw() string {
	return p.text + p.eol
}

// splitLines splits text on "\r\n", "\n" and "\r", keeping each terminator.
func splitLines(text string) []physicalLine {
	var lines []physicalLine
	for len(text) > 0 {
		i := strings.IndexAny(text, "\r\n")
		if i < 0 {
			lines = append(lines, physicalLine{text: text})
			break
		}
		eol := text[i : i+1]
		if text[i] == '\r' && i+1 < len(text) && text[i+1] == '\n' {
			eol = "\r\n"
		}
		lines = append(lines, physicalLine{text: text[:i], eol: eol})
		text = text[i+len(eol):]
	}
	return lines
}

// continues reports whether a logical line goes on with the next physical
// line, that is whether it ends with an odd number of backslashes.
func continues(s string) bool {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

// splitKeyValue splits a logical line into its unescaped key and value. The
// key ends at the first unescaped '=', ':' or whitespace.
func splitKeyValue(s string) (string, string, error) {
	end := len(s)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' {
			i++
			continue
		}
		if c == '=' || c == ':' || strings.IndexByte(whitespace, c) >= 0 {
			end = i
			break
		}
	}

	rest := strings.TrimLeft(s[end:], whitespace)
	if rest != "" && (rest[0] == '=' || rest[0] == ':') {
		rest = strings.TrimLeft(rest[1:], whitespace)
	}

	key, err := unescape(s[:end])
	if err != nil {
		return "", "", err
	}
	value, err := unescape(rest)
	if err != nil {
		return "", "", err
	}
	return key, value, nil
}

func unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			break
		}
		switch s[i] {
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'f':
			b.WriteByte('\f')
		case 'u':
			if i+5 > len(s) {
				return "", ErrMalformedEscape
			}
			r, err := strconv.ParseUint(s[i+1:i+5], 16, 32)
			if err != nil {
				return "", ErrMalformedEscape
			}
			i += 4
			if utf16.IsSurrogate(rune(r)) && strings.HasPrefix(s[i+1:], `\u`) && i+7 <= len(s) {
				if r2, err := strconv.ParseUint(s[i+3:i+7], 16, 32); err == nil {
					if c := utf16.DecodeRune(rune(r), rune(r2)); c != unicode.ReplacementChar {
						b.WriteRune(c)
						i += 6
						continue
					}
				}
			}
			b.WriteRune(rune(r))
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}

func escapeKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case ' ', '=', ':', '#', '!', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			writeEscaped(&b, r)
		}
	}
	return b.String()
}

func escapeValue(s string) string {
	var b strings.Builder
	leading := true
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case leading && r == ' ':
			b.WriteString(`\ `)
			continue
		default:
			writeEscaped(&b, r)
		}
		leading = false
	}
	return b.String()
}

func writeEscaped(b *strings.Builder, r rune) {
	switch r {
	case '\t':
		b.WriteString(`\t`)
	case '\n':
		b.WriteString(`\n`)
	case '\r':
		b.WriteString(`\r`)
	case '\f':
		b.WriteString(`\f`)
	default:
		b.WriteRune(r)
	}
}
