package shellquote

import "strings"

// Quote wraps s in single quotes, escaping any internal single quotes.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// QuoteIfNeeded quotes strings that a shell would split or interpret.
func QuoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t#[]()|!\"'$&;<>*?") {
		return Quote(s)
	}
	return s
}

// Join renders an argv as a copy-pasteable shell command line.
func Join(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = QuoteIfNeeded(a)
	}
	return strings.Join(quoted, " ")
}
