// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package poolapi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxFeePercent is 100% expressed in hundredths of a percent.
const MaxFeePercent = 10000

// ParseFeePercent parses a decimal percentage such as "7.5" or "2.50" into
// hundredths of a percent.  Both sides of a decimal point need digits.
// Values with more than two fractional digits, negative values and values
// above 100 are rejected rather than rounded.
func ParseFeePercent(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty fee percentage")
	}
	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i != -1 {
		intPart, fracPart = s[:i], s[i+1:]
		if fracPart == "" {
			return 0, fmt.Errorf("fee percentage %q has no digits after the decimal point", s)
		}
	}
	if intPart == "" {
		return 0, fmt.Errorf("fee percentage %q has no digits before the decimal point", s)
	}
	// Trailing zeros carry no precision.
	fracPart = strings.TrimRight(fracPart, "0")
	if len(fracPart) > 2 {
		return 0, fmt.Errorf("fee percentage %q has more than two decimal places", s)
	}
	for len(fracPart) < 2 {
		fracPart += "0"
	}
	whole, err := strconv.ParseUint(intPart, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid fee percentage %q", s)
	}
	frac, err := strconv.ParseUint(fracPart, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid fee percentage %q", s)
	}
	if whole > 100 {
		return 0, fmt.Errorf("fee percentage %q exceeds 100%%", s)
	}
	hundredths := whole*100 + frac
	if hundredths > MaxFeePercent {
		return 0, fmt.Errorf("fee percentage %q exceeds 100%%", s)
	}
	return uint32(hundredths), nil
}

// FeeFraction converts hundredths of a percent to a ratio in [0, 1].
func FeeFraction(hundredths uint32) float64 {
	return float64(hundredths) / 10000
}

// FormatFeePercent formats hundredths of a percent with two decimals.
func FormatFeePercent(hundredths uint32) string {
	return fmt.Sprintf("%d.%02d", hundredths/100, hundredths%100)
}
