package diplogic

import (
	"fmt"
	"strings"
)

// FormatMoney renders a dollar amount with thousands separators, matching
// the account-summary line shape the dashboard parses ("$32,000.00").
func FormatMoney(value float64) string {
	s := fmt.Sprintf("%.2f", value)

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, fracPart, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("$%s%s.%s", sign, b.String(), fracPart)
}

// FormatPercent renders a fraction as a percentage with two decimals
// ("0.0525" -> "5.25%").
func FormatPercent(value float64) string {
	return fmt.Sprintf("%.2f%%", value*100)
}
