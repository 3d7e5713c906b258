package tokenregistry

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	// ErrInvalidAmount is returned for nil or negative magnitudes.
	ErrInvalidAmount = errors.New("amount must be non-nil and non-negative")
	// ErrInvalidDecimalString is returned when a human readable amount cannot be parsed exactly.
	ErrInvalidDecimalString = errors.New("invalid decimal amount")

	ten = big.NewInt(10)

	// precomputed 10^dec for typical ERC20 decimals (0..18)
	precomputedScales [19]*big.Int
)

func init() {
	precomputedScales[0] = big.NewInt(1)
	for i := 1; i < len(precomputedScales); i++ {
		precomputedScales[i] = new(big.Int).Mul(precomputedScales[i-1], ten)
	}
}

// Scale returns 10^dec. The returned value MUST NOT be modified.
func Scale(dec uint8) *big.Int {
	if int(dec) < len(precomputedScales) {
		return precomputedScales[dec]
	}
	return new(big.Int).Exp(ten, big.NewInt(int64(dec)), nil)
}

// Amount is a raw integer quantity of a token, already scaled by its decimals.
type Amount struct {
	Token Token
	Raw   *big.Int
}

// NewAmount copies raw into a new Amount. Negative magnitudes are rejected.
func NewAmount(token Token, raw *big.Int) (Amount, error) {
	if raw == nil || raw.Sign() < 0 {
		return Amount{}, ErrInvalidAmount
	}
	return Amount{Token: token, Raw: new(big.Int).Set(raw)}, nil
}

// ParseAmount parses a human readable decimal string such as "10.5" into an Amount.
func ParseAmount(token Token, value string) (Amount, error) {
	raw, err := ParseUnits(value, token.Decimals)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Token: token, Raw: raw}, nil
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.Raw == nil || a.Raw.Sign() == 0
}

func (a Amount) String() string {
	if a.Raw == nil {
		return "0 " + a.Token.Symbol
	}
	return FormatUnits(a.Raw, a.Token.Decimals) + " " + a.Token.Symbol
}

// ParseUnits converts a plain decimal string into its exact integer
// representation with the given number of decimals. Exponents, signs and
// fractional digits beyond the token precision are rejected instead of rounded.
func ParseUnits(value string, decimals uint8) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalidDecimalString)
	}

	whole, frac, hasPoint := strings.Cut(value, ".")
	if hasPoint && frac == "" && whole == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimalString, value)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimalString, value)
	}

	frac = strings.TrimRight(frac, "0")
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("%w: %q has more than %d fractional digits", ErrInvalidDecimalString, value, decimals)
	}

	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return new(big.Int), nil
	}

	raw, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimalString, value)
	}
	return raw, nil
}

// FormatUnits renders raw as a decimal string with the given precision,
// dropping trailing fractional zeros.
func FormatUnits(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}

	sign := ""
	abs := new(big.Int).Set(raw)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}

	whole, frac := new(big.Int).QuoRem(abs, Scale(decimals), new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}

	fracStr := frac.String()
	fracStr = strings.Repeat("0", int(decimals)-len(fracStr)) + fracStr
	return sign + whole.String() + "." + strings.TrimRight(fracStr, "0")
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
