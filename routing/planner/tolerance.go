package planner

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Tolerance is a slippage fraction Numerator/Denominator.
type Tolerance struct {
	Numerator   uint64 `yaml:"numerator" json:"numerator"`
	Denominator uint64 `yaml:"denominator" json:"denominator"`
}

// Percent builds a tolerance of p percent.
func Percent(p uint64) Tolerance {
	return Tolerance{Numerator: p, Denominator: 100}
}

func (t Tolerance) Validate() error {
	if t.Denominator == 0 || t.Numerator >= t.Denominator {
		return fmt.Errorf("%w: %d/%d must lie in [0, 1)", ErrInvalidSlippageTolerance, t.Numerator, t.Denominator)
	}
	return nil
}

func (t Tolerance) String() string {
	return fmt.Sprintf("%d/%d", t.Numerator, t.Denominator)
}

// MinimumOutput is floor(quoted * (d - n) / d).
func (t Tolerance) MinimumOutput(quoted *big.Int) *big.Int {
	out := new(big.Int).Mul(quoted, new(big.Int).SetUint64(t.Denominator-t.Numerator))
	return out.Quo(out, new(big.Int).SetUint64(t.Denominator))
}

// MaximumInput is ceil(quoted * (d + n) / d).
func (t Tolerance) MaximumInput(quoted *big.Int) *big.Int {
	d := new(big.Int).SetUint64(t.Denominator)
	in := new(big.Int).Mul(quoted, new(big.Int).Add(d, new(big.Int).SetUint64(t.Numerator)))
	in.Add(in, d)
	in.Sub(in, big.NewInt(1))
	return in.Quo(in, d)
}

// ParseTolerance accepts "n/d" or a decimal percentage such as "0.5%".
func ParseTolerance(s string) (Tolerance, error) {
	s = strings.TrimSpace(s)
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(num), 10, 64)
		if err != nil {
			return Tolerance{}, fmt.Errorf("%w: %q", ErrInvalidSlippageTolerance, s)
		}
		d, err := strconv.ParseUint(strings.TrimSpace(den), 10, 64)
		if err != nil {
			return Tolerance{}, fmt.Errorf("%w: %q", ErrInvalidSlippageTolerance, s)
		}
		t := Tolerance{Numerator: n, Denominator: d}
		return t, t.Validate()
	}

	pct, ok := strings.CutSuffix(s, "%")
	if !ok {
		return Tolerance{}, fmt.Errorf("%w: %q is neither n/d nor a percentage", ErrInvalidSlippageTolerance, s)
	}
	whole, frac, _ := strings.Cut(pct, ".")
	if len(frac) > 16 {
		return Tolerance{}, fmt.Errorf("%w: %q has too many decimals", ErrInvalidSlippageTolerance, s)
	}
	digits := whole + frac
	if digits == "" {
		return Tolerance{}, fmt.Errorf("%w: %q", ErrInvalidSlippageTolerance, s)
	}
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return Tolerance{}, fmt.Errorf("%w: %q", ErrInvalidSlippageTolerance, s)
	}
	d := uint64(100)
	for range len(frac) {
		d *= 10
	}
	t := Tolerance{Numerator: n, Denominator: d}
	return t, t.Validate()
}
