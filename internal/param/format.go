package param

import (
	"strconv"
	"strings"
)

// FixedWidth renders v in scientific notation at most ndigits significant
// digits, padded or shortened so that the result occupies exactly width
// characters. Substituting the rendered string for a token of the same
// width therefore never perturbs the surrounding file layout. When the
// width cannot hold even a one-digit mantissa the minimal rendering is
// returned unpadded.
func FixedWidth(v float64, ndigits, width int) string {
	if ndigits < 1 {
		ndigits = 1
	}
	if ndigits > 32 {
		ndigits = 32
	}

	for d := ndigits; d >= 1; d-- {
		s := strconv.FormatFloat(v, 'E', d-1, 64)
		if len(s) <= width {
			return strings.Repeat(" ", width-len(s)) + s
		}
	}
	return strconv.FormatFloat(v, 'E', 0, 64)
}

// Scientific renders v at ndigits significant digits with no width
// constraint, the form used in evaluation logs.
func Scientific(v float64, ndigits int) string {
	if ndigits < 1 {
		ndigits = 1
	}
	if ndigits > 32 {
		ndigits = 32
	}
	return strconv.FormatFloat(v, 'E', ndigits-1, 64)
}
