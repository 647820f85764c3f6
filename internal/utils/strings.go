package utils

import "strings"

// ParseTickers splits a comma-separated ticker list, trimming, upper-casing
// and de-duplicating entries while keeping first-seen order.
// Returns nil for empty/whitespace-only input.
func ParseTickers(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	seen := make(map[string]bool)
	var result []string
	for _, v := range strings.Split(s, ",") {
		ticker := strings.ToUpper(strings.TrimSpace(v))
		if ticker == "" || seen[ticker] {
			continue
		}
		seen[ticker] = true
		result = append(result, ticker)
	}

	return result
}
