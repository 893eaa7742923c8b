package collector

import "strconv"

// atoiOrZero parses s as an int, returning 0 for empty or malformed values (NULL columns surface
// as empty strings via store.QueryResult).
func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

// atofOrZero parses s as a float64, returning 0 for empty or malformed values.
func atofOrZero(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func itoa(i int) string { return strconv.Itoa(i) }
