package services

import (
	"strings"

	"github.com/shopspring/decimal"
)

// formatINR renders an amount with Indian digit grouping, e.g.
// 1234567.5 -> "INR 12,34,567.50"
func formatINR(v float64) string {
	s := decimal.NewFromFloat(v).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var groups []string
	if len(intPart) > 3 {
		head, tail := intPart[:len(intPart)-3], intPart[len(intPart)-3:]
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		if head != "" {
			groups = append([]string{head}, groups...)
		}
		groups = append(groups, tail)
	} else {
		groups = []string{intPart}
	}

	out := "INR " + strings.Join(groups, ",") + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}
