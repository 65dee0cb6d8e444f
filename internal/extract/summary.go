package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// Summarize collapses every run of whitespace into one space and caps the result at max runes.
// The result is a prefix of the whitespace-collapsed text.
func Summarize(text string, max int) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	n := 0
	wasSpace := false
	for _, r := range text {
		if max > 0 && n >= max {
			break
		}
		if unicode.IsSpace(r) {
			if wasSpace {
				continue
			}
			r = ' '
			wasSpace = true
		} else {
			wasSpace = false
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

var isbnPattern = regexp.MustCompile(`(?i)isbn[:\s]*([0-9][0-9\- ]*[0-9x])`)

// ExtractISBN returns the first ISBN-10 or ISBN-13 found after an "ISBN" marker, with hyphens
// and spaces removed. Only the leading 10 or 13 characters of the digit run are considered, so
// numbers trailing the ISBN ("0764543857 2nd edition") are ignored; a 13-character candidate
// wins when it carries the 978/979 prefix. Check digits are verified: a candidate of the right
// length with a typo in it yields "".
func ExtractISBN(text string) string {
	m := isbnPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	digits := make([]byte, 0, 13)
	for i := 0; i < len(m[1]) && len(digits) < 13; i++ {
		c := m[1][i]
		if c == '-' || c == ' ' {
			continue
		}
		if c == 'x' {
			c = 'X'
		}
		digits = append(digits, c)
	}
	if len(digits) == 13 {
		s := string(digits)
		if (strings.HasPrefix(s, "978") || strings.HasPrefix(s, "979")) && validISBN13(s) {
			return s
		}
	}
	if len(digits) >= 10 && validISBN10(string(digits[:10])) {
		return string(digits[:10])
	}
	return ""
}

func validISBN10(s string) bool {
	sum := 0
	for i := 0; i < 10; i++ {
		c := s[i]
		var v int
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c == 'X' && i == 9:
			v = 10
		default:
			return false
		}
		sum += (10 - i) * v
	}
	return sum%11 == 0
}

func validISBN13(s string) bool {
	sum := 0
	for i := 0; i < 13; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return false
		}
		w := 1
		if i%2 == 1 {
			w = 3
		}
		sum += w * int(c-'0')
	}
	return sum%10 == 0
}
