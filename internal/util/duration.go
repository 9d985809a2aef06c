package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration accepts "N[s|m|h]" or a bare integer as seconds
// (e.g. "30s", "5m", "1h", "30").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	unit := time.Second
	numeric := s
	switch s[len(s)-1] {
	case 's':
		numeric = s[:len(s)-1]
	case 'm':
		unit = time.Minute
		numeric = s[:len(s)-1]
	case 'h':
		unit = time.Hour
		numeric = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(numeric, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid duration %q: negative", s)
	}

	return time.Duration(n) * unit, nil
}
