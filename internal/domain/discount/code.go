package discount

import "strings"

// NormalizeCode is the single normalization routine for coupon codes. Every
// comparison between a presented code and a stored coupon goes through it so
// the validator, matcher and calculator can never diverge.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CodesEqual reports whether two coupon codes match case-insensitively.
func CodesEqual(a, b string) bool {
	return NormalizeCode(a) == NormalizeCode(b)
}
