package jsonutil

import (
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// Number canonicalization:
//   - a literal whose exact decimal value is an integer with magnitude below
//     1e21 renders as plain integer digits ("100", "100.0" and "1e2" all
//     become "100"; "-0" becomes "0");
//   - anything else is parsed as an IEEE-754 float64 and rendered as the
//     shortest decimal that round-trips: positional for 1e-6 <= |f| < 1e21,
//     otherwise exponent form without zero padding ("1e-7", "1.5e+21").

var numberLiteral = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// exactLimit bounds the exponent range handled with exact arithmetic.
const exactLimit = 400

var integerCeiling = new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil)

func canonicalNumber(lit string) (string, error) {
	if !numberLiteral.MatchString(lit) {
		return "", encodingErrorf("invalid number literal %q", lit)
	}
	if exp, ok := literalExponent(lit); ok && exp > -exactLimit && exp < exactLimit {
		if r, ok := new(big.Rat).SetString(lit); ok && r.IsInt() {
			n := r.Num()
			if n.CmpAbs(integerCeiling) < 0 {
				return n.String(), nil
			}
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return "", encodingErrorf("number %q out of float64 range", lit)
	}
	return formatFloat(f)
}

func literalExponent(lit string) (int, bool) {
	i := strings.IndexAny(lit, "eE")
	if i < 0 {
		return 0, true
	}
	exp, err := strconv.Atoi(lit[i+1:])
	if err != nil {
		return 0, false
	}
	return exp, true
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", encodingErrorf("unsupported number %v", f)
	}
	if f == 0 {
		return "0", nil
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	return mant + "e" + sign + digits, nil
}
