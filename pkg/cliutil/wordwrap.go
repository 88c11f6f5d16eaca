package cliutil

import (
	"strings"
)

// Wrap breaks s into lines no wider than w columns.  Pass w == 0 to not
// wrap at all.
//
// Lines actually break a little before w, so that a stray short word
// doesn't end up on a line of its own.
func Wrap(w int, s string) string {
	return wrap(0, w, s)
}

// WrapIndent is Wrap for text that starts at column i: continuation lines
// are indented i columns, and the budget shrinks accordingly.  The first
// line's indent is assumed to already have been written by the caller.
func WrapIndent(i, w int, s string) string {
	return wrap(i, w, s)
}

const slop = 5

func wrap(indent, width int, text string) string {
	if width <= 0 {
		return text
	}
	budget := width - slop - indent
	if budget < 20 {
		// narrower than this and wrapping makes things worse
		budget = 20
	}
	pad := strings.Repeat(" ", indent)

	var out strings.Builder
	for pi, para := range strings.Split(text, "\n") {
		if pi > 0 {
			out.WriteByte('\n')
			if para != "" {
				out.WriteString(pad)
			}
		}
		// Walk gap/word pairs, keeping the original spacing (double
		// spaces after a sentence survive) except at a break.
		lineLen := 0
		i := 0
		for i < len(para) {
			gap := i
			for i < len(para) && para[i] == ' ' {
				i++
			}
			gapLen := i - gap
			word := i
			for i < len(para) && para[i] != ' ' {
				i++
			}
			wordLen := i - word
			if wordLen == 0 {
				break
			}
			switch {
			case lineLen == 0:
				out.WriteString(para[gap:i])
				lineLen = gapLen + wordLen
			case lineLen+gapLen+wordLen > budget:
				out.WriteByte('\n')
				out.WriteString(pad)
				out.WriteString(para[word:i])
				lineLen = wordLen
			default:
				out.WriteString(para[gap:i])
				lineLen += gapLen + wordLen
			}
		}
	}
	return out.String()
}
