package pricing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrMalformedNumeric is returned when a price or quantity does not parse as a whole number.
	ErrMalformedNumeric = errors.New("malformed numeric value")
	// ErrInvariantViolation signals derived totals that must never be observable.
	ErrInvariantViolation = errors.New("pricing invariant violated")
	// ErrAmountOutOfRange is returned when well-formed inputs produce a total beyond int64.
	ErrAmountOutOfRange = fmt.Errorf("%w: amount out of range", ErrMalformedNumeric)
)

var (
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

// Money represents a monetary value stored in minor units.
type Money int64

// ParseMoney parses a decimal string of minor units. Fractional or negative amounts are rejected.
func ParseMoney(value string) (Money, error) {
	n, err := parseWhole(value)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative amount %q", ErrMalformedNumeric, value)
	}
	return Money(n), nil
}

// String renders the amount without fractional digits.
func (m Money) String() string {
	return strconv.FormatInt(int64(m), 10)
}

// MarshalJSON encodes the amount as a decimal string, e.g. "5000".
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both "5000" and 5000.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw, err := numericLiteral(data)
	if err != nil {
		return err
	}
	parsed, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Quantity is an item count that may arrive as a JSON number or a numeric string.
type Quantity int64

// ParseQuantity parses a whole, non-negative count.
func ParseQuantity(value string) (Quantity, error) {
	n, err := parseWhole(value)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative quantity %q", ErrMalformedNumeric, value)
	}
	return Quantity(n), nil
}

// MarshalJSON encodes the quantity as a JSON number.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(q), 10)), nil
}

// UnmarshalJSON accepts both 5 and "5".
func (q *Quantity) UnmarshalJSON(data []byte) error {
	raw, err := numericLiteral(data)
	if err != nil {
		return err
	}
	parsed, err := ParseQuantity(raw)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

func numericLiteral(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", fmt.Errorf("%w: missing value", ErrMalformedNumeric)
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedNumeric, err)
		}
		return s, nil
	}
	return string(data), nil
}

func parseWhole(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	digits := strings.TrimPrefix(trimmed, "-")
	if digits == "" {
		return 0, fmt.Errorf("%w: empty value", ErrMalformedNumeric)
	}
	// minor units carry no fraction or exponent, so "5.0" and "1e3" are rejected too
	if strings.IndexFunc(digits, notDigit) >= 0 {
		return 0, fmt.Errorf("%w: not a whole number %q", ErrMalformedNumeric, value)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedNumeric, value)
	}
	if d.GreaterThan(maxInt64) || d.LessThan(minInt64) {
		return 0, fmt.Errorf("%w: out of range %q", ErrMalformedNumeric, value)
	}
	return d.IntPart(), nil
}

func notDigit(r rune) bool {
	return r < '0' || r > '9'
}
