package dashboard

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

const amountDisplayPlaces = 2

// Amount is an exact monetary value in the hotel's currency.
type Amount struct {
	value decimal.Decimal
}

// ZeroAmount returns a zero amount.
func ZeroAmount() Amount {
	return Amount{value: decimal.Zero}
}

// NewAmountFromInt builds an amount from a whole currency unit count.
func NewAmountFromInt(units int64) Amount {
	return Amount{value: decimal.NewFromInt(units)}
}

// NewAmountFromDecimal wraps a decimal value.
func NewAmountFromDecimal(value decimal.Decimal) Amount {
	return Amount{value: value}
}

// ParseAmount normalizes a numeric or currency-formatted string into a non-negative Amount.
//
// Currency symbols, thousands separators and whitespace are stripped, so
// "₹1,200.50", "1200.5" and " 1 200.50 " all parse to the same value.
// Empty, unparseable and negative inputs return ErrInvalidAmount.
func ParseAmount(raw string) (Amount, error) {
	amount, err := parseSignedAmount(raw)
	if err != nil {
		return Amount{}, err
	}
	if amount.value.IsNegative() {
		return Amount{}, fmt.Errorf("%w: negative value %q", ErrInvalidAmount, raw)
	}
	return amount, nil
}

// parseSignedAmount is ParseAmount without the sign restriction; balances may go negative.
func parseSignedAmount(raw string) (Amount, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Amount{}, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}
	var builder strings.Builder
	negative := false
	characters := []rune(trimmed)
	for index, character := range characters {
		switch {
		case isASCIIDigit(character):
			builder.WriteRune(character)
		case character == '.':
			// "Rs. 1,200" carries a dot that is not a decimal point.
			if builder.Len() > 0 || (index+1 < len(characters) && isASCIIDigit(characters[index+1])) {
				builder.WriteRune(character)
			}
		case character == '-' && builder.Len() == 0:
			negative = true
		case unicode.IsLetter(character) && builder.Len() > 0:
			return Amount{}, fmt.Errorf("%w: unexpected %q in %q", ErrInvalidAmount, character, raw)
		}
	}
	normalized := builder.String()
	if normalized == "" {
		return Amount{}, fmt.Errorf("%w: no digits in %q", ErrInvalidAmount, raw)
	}
	value, err := decimal.NewFromString(normalized)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if negative {
		value = value.Neg()
	}
	return Amount{value: value}, nil
}

func isASCIIDigit(character rune) bool {
	return character >= '0' && character <= '9'
}

// Decimal exposes the underlying decimal value.
func (amount Amount) Decimal() decimal.Decimal {
	return amount.value
}

// Add returns amount + other.
func (amount Amount) Add(other Amount) Amount {
	return Amount{value: amount.value.Add(other.value)}
}

// Sub returns amount - other.
func (amount Amount) Sub(other Amount) Amount {
	return Amount{value: amount.value.Sub(other.value)}
}

// Neg returns the negated amount.
func (amount Amount) Neg() Amount {
	return Amount{value: amount.value.Neg()}
}

// Cmp compares two amounts: -1 when amount < other, 0 when equal, +1 otherwise.
func (amount Amount) Cmp(other Amount) int {
	return amount.value.Cmp(other.value)
}

// Equal reports numeric equality (1.0 equals 1.00).
func (amount Amount) Equal(other Amount) bool {
	return amount.value.Equal(other.value)
}

// IsZero reports whether the amount is zero.
func (amount Amount) IsZero() bool {
	return amount.value.IsZero()
}

// IsPositive reports whether the amount is strictly greater than zero.
func (amount Amount) IsPositive() bool {
	return amount.value.IsPositive()
}

// String renders the amount with two decimal places.
func (amount Amount) String() string {
	return amount.value.StringFixed(amountDisplayPlaces)
}

// MarshalJSON renders the amount as a JSON number.
func (amount Amount) MarshalJSON() ([]byte, error) {
	return []byte(amount.String()), nil
}

// UnmarshalJSON accepts JSON numbers and currency-formatted strings.
func (amount *Amount) UnmarshalJSON(data []byte) error {
	parsed, err := parseAmountJSON(data)
	if err != nil {
		return err
	}
	if parsed.value.IsNegative() {
		return fmt.Errorf("%w: negative value %s", ErrInvalidAmount, string(data))
	}
	*amount = parsed
	return nil
}

func parseAmountJSON(data json.RawMessage) (Amount, error) {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return parseSignedAmount(text)
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil || number == "" {
		return Amount{}, fmt.Errorf("%w: %s", ErrInvalidAmount, string(data))
	}
	value, err := decimal.NewFromString(number.String())
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return Amount{value: value}, nil
}
