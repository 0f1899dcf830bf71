package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var memoryLimitPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([A-Za-z]*)$`)

var memoryUnitMultiplier = map[string]float64{
	"":  1,
	"k": 1 << 10,
	"m": 1 << 20,
	"g": 1 << 30,
	"t": 1 << 40,
}

// ParseMemoryLimit parses a sandbox memory limit of the form
// "<num>[K|M|G|T][B]" (case-insensitive, B optional) into bytes, the
// same loose form task/runtime settings have always accepted: a bare
// number is bytes, and a suffix this parser doesn't recognize is
// dropped rather than rejected, so a typo degrades to "treat the
// digits as bytes" instead of failing configuration load. Empty
// returns (0, nil): "no limit configured".
func ParseMemoryLimit(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, nil
	}

	match := memoryLimitPattern.FindStringSubmatch(trimmed)
	if match == nil {
		return 0, fmt.Errorf("parse memory limit %q: expected <num>[K|M|G|T][B]", s)
	}

	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, fmt.Errorf("parse memory limit %q: %w", s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("parse memory limit %q: must not be negative", s)
	}

	unit := strings.ToLower(match[2])
	unit = strings.TrimSuffix(unit, "b")
	multiplier, ok := memoryUnitMultiplier[unit]
	if !ok {
		// Unrecognized suffix: the digits themselves are the byte count.
		multiplier = 1
	}

	return int64(value * multiplier), nil
}
