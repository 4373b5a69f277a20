package resolve

import "strings"

// Soundex returns the standard 4-character American Soundex code for s, or
// "" for input with no letters. Letters separated by H or W encode as a
// single group; vowels reset the group. Used only for blocking.
func Soundex(s string) string {
	letters := lettersOnly(s)
	if len(letters) == 0 {
		return ""
	}

	code := []byte{letters[0]}
	prev := soundexDigit(letters[0])
	for _, c := range letters[1:] {
		d := soundexDigit(c)
		switch {
		case d == 0 && (c == 'H' || c == 'W'):
			// H and W do not break a consonant group.
		case d == 0:
			prev = 0
		case d != prev:
			code = append(code, '0'+d)
			prev = d
		}
		if len(code) == 4 {
			break
		}
	}
	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code)
}

func soundexDigit(c byte) byte {
	switch c {
	case 'B', 'F', 'P', 'V':
		return 1
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return 2
	case 'D', 'T':
		return 3
	case 'L':
		return 4
	case 'M', 'N':
		return 5
	case 'R':
		return 6
	}
	return 0
}

// Metaphone returns the variable-length Metaphone code for s (Philips,
// 1990), or "" for input with no letters. Deterministic and total; used
// only for blocking, never as a match decision by itself.
func Metaphone(s string) string {
	w := lettersOnly(s)
	if len(w) == 0 {
		return ""
	}

	// Initial-letter exceptions.
	switch {
	case len(w) >= 2 && (string(w[:2]) == "AE" || string(w[:2]) == "GN" ||
		string(w[:2]) == "KN" || string(w[:2]) == "PN" || string(w[:2]) == "WR"):
		w = w[1:]
	case w[0] == 'X':
		w[0] = 'S'
	case len(w) >= 2 && string(w[:2]) == "WH":
		w = append([]byte{'W'}, w[2:]...)
	}

	at := func(i int) byte {
		if i < 0 || i >= len(w) {
			return 0
		}
		return w[i]
	}

	var out []byte
	for i := 0; i < len(w); i++ {
		c := w[i]
		// Adjacent duplicates encode once, except C.
		if i > 0 && c == w[i-1] && c != 'C' {
			continue
		}
		switch c {
		case 'A', 'E', 'I', 'O', 'U':
			if i == 0 {
				out = append(out, c)
			}
		case 'B':
			// Silent terminal B after M, as in "dumb".
			if !(i == len(w)-1 && at(i-1) == 'M') {
				out = append(out, 'B')
			}
		case 'C':
			switch {
			case at(i+1) == 'I' && at(i+2) == 'A':
				out = append(out, 'X')
			case at(i+1) == 'H':
				if at(i-1) == 'S' {
					out = append(out, 'K')
				} else {
					out = append(out, 'X')
				}
				i++
			case at(i+1) == 'I' || at(i+1) == 'E' || at(i+1) == 'Y':
				if at(i-1) != 'S' {
					out = append(out, 'S')
				}
			default:
				out = append(out, 'K')
			}
		case 'D':
			if at(i+1) == 'G' && (at(i+2) == 'E' || at(i+2) == 'I' || at(i+2) == 'Y') {
				out = append(out, 'J')
				i++
			} else {
				out = append(out, 'T')
			}
		case 'F', 'J', 'L', 'M', 'N', 'R':
			out = append(out, c)
		case 'G':
			switch {
			case at(i+1) == 'H':
				if i+2 < len(w) && isVowel(at(i+2)) {
					out = append(out, 'K')
				}
				i++ // GH otherwise silent, as in "night"
			case at(i+1) == 'N':
				// Silent in GN.
			case at(i+1) == 'I' || at(i+1) == 'E' || at(i+1) == 'Y':
				out = append(out, 'J')
			default:
				out = append(out, 'K')
			}
		case 'H':
			if isVowel(at(i-1)) && !isVowel(at(i+1)) {
				// Silent, as in "Johnson".
			} else {
				out = append(out, 'H')
			}
		case 'K':
			if at(i-1) != 'C' {
				out = append(out, 'K')
			}
		case 'P':
			if at(i+1) == 'H' {
				out = append(out, 'F')
				i++
			} else {
				out = append(out, 'P')
			}
		case 'Q':
			out = append(out, 'K')
		case 'S':
			switch {
			case at(i+1) == 'H':
				out = append(out, 'X')
				i++
			case at(i+1) == 'I' && (at(i+2) == 'O' || at(i+2) == 'A'):
				out = append(out, 'X')
			default:
				out = append(out, 'S')
			}
		case 'T':
			switch {
			case at(i+1) == 'I' && (at(i+2) == 'O' || at(i+2) == 'A'):
				out = append(out, 'X')
			case at(i+1) == 'H':
				out = append(out, '0')
				i++
			case at(i+1) == 'C' && at(i+2) == 'H':
				// Silent in TCH.
			default:
				out = append(out, 'T')
			}
		case 'V':
			out = append(out, 'F')
		case 'W':
			if isVowel(at(i + 1)) {
				out = append(out, 'W')
			}
		case 'X':
			out = append(out, 'K', 'S')
		case 'Y':
			if isVowel(at(i + 1)) {
				out = append(out, 'Y')
			}
		case 'Z':
			out = append(out, 'S')
		}
	}
	return string(out)
}

func isVowel(c byte) bool {
	return c == 'A' || c == 'E' || c == 'I' || c == 'O' || c == 'U'
}

func lettersOnly(s string) []byte {
	var out []byte
	for _, r := range strings.ToUpper(s) {
		if r >= 'A' && r <= 'Z' {
			out = append(out, byte(r))
		}
	}
	return out
}
