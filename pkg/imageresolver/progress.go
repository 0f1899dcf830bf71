package imageresolver

import (
	"regexp"
	"strconv"
	"strings"
)

var pullProgressPattern = regexp.MustCompile(`(?i)([\d.]+)\s*([KMGTP]?B)\s*/\s*([\d.]+)\s*([KMGTP]?B)`)

var buildStepPattern = regexp.MustCompile(`\[(\d+)/(\d+)]`)
var buildPercentPattern = regexp.MustCompile(`(\d{1,3})%`)

var byteUnitExponent = map[string]float64{
	"B":  1,
	"KB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
	"TB": 1 << 40,
	"PB": 1 << 50,
}

// ParsePullProgress extracts a 0-99% completion estimate from a
// registry-style "<cur>[K|M|G|T|P]B / <tot><unit>" progress line (the
// shape docker/containerd pull progress lines use). Reports ok=false
// if the line carries no recognizable progress.
func ParsePullProgress(line string) (percent int, ok bool) {
	m := pullProgressPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}

	cur, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	total, err := strconv.ParseFloat(m[3], 64)
	if err != nil || total <= 0 {
		return 0, false
	}

	curBytes := cur * byteUnitExponent[strings.ToUpper(m[2])]
	totalBytes := total * byteUnitExponent[strings.ToUpper(m[4])]
	if totalBytes <= 0 {
		return 0, false
	}

	pct := int(curBytes / totalBytes * 100)
	return clampPercent(pct), true
}

// ParseBuildProgress extracts a 0-99% completion estimate from a build
// log line, recognizing either a "[<cur>/<tot>]" step marker or a bare
// percentage.
func ParseBuildProgress(line string) (percent int, ok bool) {
	if m := buildStepPattern.FindStringSubmatch(line); m != nil {
		cur, err1 := strconv.Atoi(m[1])
		total, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil && total > 0 {
			return clampPercent(cur * 100 / total), true
		}
	}
	if m := buildPercentPattern.FindStringSubmatch(line); m != nil {
		pct, err := strconv.Atoi(m[1])
		if err == nil {
			return clampPercent(pct), true
		}
	}
	return 0, false
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 99 {
		return 99
	}
	return p
}
