package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	footnotePattern = regexp.MustCompile(`\[[^\]]*\]`)

	// quantityPattern matches the first written number, optionally grouped
	// with thousands separators, with a decimal part and a scale word. The
	// k and m abbreviations only count when glued to the number, so "35 m"
	// stays a length.
	quantityPattern = regexp.MustCompile(`(?i)(\d{1,3}(?:,\d{3})+|\d+)(\.\d+)?(?:\s*(thousand|million|billion|bn)\b|([km])\b)?`)
)

var scaleWords = map[string]float64{
	"thousand": 1e3,
	"k":        1e3,
	"million":  1e6,
	"m":        1e6,
	"billion":  1e9,
	"bn":       1e9,
}

// ParseQuantity returns the first numeric magnitude written in text.
//
//	"9,600,000"        -> 9600000
//	"2.2 million"      -> 2200000
//	"2,165,423 (2021)" -> 2165423
//
// ok is false when text holds no number.
func ParseQuantity(text string) (value int64, ok bool) {
	text = footnotePattern.ReplaceAllString(text, " ")

	m := quantityPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}

	f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "")+m[2], 64)
	if err != nil {
		return 0, false
	}
	if scale, found := scaleWords[strings.ToLower(m[3]+m[4])]; found {
		f *= scale
	}
	// 1<<63 is the first float64 past the int64 range.
	if f >= 1<<63 {
		return 0, false
	}
	return int64(math.Round(f)), true
}

// parseOptional is ParseQuantity as a pointer, nil when unparseable.
func parseOptional(text string) *int64 {
	v, ok := ParseQuantity(text)
	if !ok {
		return nil
	}
	return &v
}
