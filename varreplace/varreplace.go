// Package varreplace renders description templates with values captured by
// signature patterns.
//
// A template refers to variables as $G1, $F2 (one letter followed by a
// decimal index) or ${NAME}. $$ is a literal dollar sign. Variables without
// a value render as the empty string.
package varreplace

import (
	"strconv"
	"strings"
)

// Exec replaces all variables in str with their value in vars.
func Exec(str string, vars map[string]string) string {
	if !strings.Contains(str, "$") {
		return str
	}

	var out strings.Builder
	out.Grow(len(str))

	for i := 0; i < len(str); {
		c := str[i]
		if c != '$' || i+1 >= len(str) {
			out.WriteByte(c)
			i++
			continue
		}

		next := str[i+1]
		switch {
		case next == '$':
			out.WriteByte('$')
			i += 2

		case next == '{':
			end := strings.IndexByte(str[i+2:], '}')
			if end < 0 {
				out.WriteString(str[i:])
				return out.String()
			}
			out.WriteString(vars[str[i+2:i+2+end]])
			i += end + 3

		case isLetter(next) && i+2 < len(str) && isDigit(str[i+2]):
			j := i + 2
			for j < len(str) && isDigit(str[j]) {
				j++
			}
			out.WriteString(vars[str[i+1:j]])
			i = j

		default:
			out.WriteByte(c)
			i++
		}
	}

	return out.String()
}

// ExecCaptures replaces the game description variables ($G0, $G1, ...) and
// the file description variables ($F0, $F1, ...) in str.
// Index 0 of each list is the whole match, index 1 the first capture group.
func ExecCaptures(str string, gameDescVars, fileDescVars []string) string {
	vars := make(map[string]string, len(gameDescVars)+len(fileDescVars))
	for i, v := range gameDescVars {
		vars["G"+strconv.Itoa(i)] = v
	}
	for i, v := range fileDescVars {
		vars["F"+strconv.Itoa(i)] = v
	}
	return Exec(str, vars)
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
