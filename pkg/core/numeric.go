package core

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var (
	errNotNumber  = errors.New("not a number")
	errNotFinite  = errors.New("not a finite number")
	errOutOfRange = errors.New("out of integer range")
)

// ParseNumber is the single numeric rule used for every numeric cell: the
// trimmed value is parsed as a 64-bit float, so plain integers, decimals and
// scientific notation ("7.90E+03") are all accepted. NaN and Inf are rejected.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errNotNumber
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errNotNumber
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}

// ParseInteger applies ParseNumber and rounds half away from zero.
// "7.90E+03" yields 7900, "12" yields 12, "2.5" yields 3.
func ParseInteger(s string) (int64, error) {
	f, err := ParseNumber(s)
	if err != nil {
		return 0, err
	}
	r := math.Round(f)
	if r >= math.MaxInt64 || r < math.MinInt64 {
		return 0, errOutOfRange
	}
	return int64(r), nil
}
