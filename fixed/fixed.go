// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fixed implements 1e18-scaled ("wad") integer arithmetic on
// *big.Int values. All division truncates toward zero, matching the
// semantics of the vault accounting this package reproduces; results must
// be bit-for-bit stable across runs and platforms, which is why Sqrt is a
// hand-rolled Babylonian iteration and not a float square root.
package fixed

import (
	"math/big"
	"strconv"
	"strings"
)

const (
	// BpsScale is the number of basis points in 100%
	BpsScale = 10_000

	// SecondsPerYear is a 365-day year; leap days are deliberately ignored
	SecondsPerYear = 365 * 86_400

	// DaysPerYear used when annualizing returns
	DaysPerYear = 365
)

// One is 1.0 at wad scale (1e18)
func One() *big.Int {
	return big.NewInt(1e18)
}

// Zero returns a fresh zero value
func Zero() *big.Int {
	return new(big.Int)
}

// FromInt converts a whole number to wad scale
func FromInt(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), One())
}

// FromBps converts basis points to wad scale: 10,000 bps -> 1e18
func FromBps(bps int64) *big.Int {
	return new(big.Int).Quo(new(big.Int).Mul(big.NewInt(bps), One()), big.NewInt(BpsScale))
}

// Clone returns an independent copy of x
func Clone(x *big.Int) *big.Int {
	return new(big.Int).Set(x)
}

// MulDiv computes a*b/den with the intermediate product at full precision
// and truncating division. den must be non-zero.
func MulDiv(a, b, den *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	return p.Quo(p, den)
}

// WadMul multiplies two wad-scaled values: a*b/1e18
func WadMul(a, b *big.Int) *big.Int {
	return MulDiv(a, b, One())
}

// WadDiv divides two wad-scaled values: a*1e18/b. Returns zero when b is
// zero; a zero denominator is a defined zero result throughout the engine,
// never a panic.
func WadDiv(a, b *big.Int) *big.Int {
	if b.Sign() == 0 {
		return Zero()
	}
	return MulDiv(a, One(), b)
}

// Sqrt computes the integer square root of x using the Babylonian method:
//
//	y = x
//	z = (x + 1) / 2
//	while z < y { y = z; z = (x/z + z) / 2 }
//
// The iteration order and truncation are part of the numeric contract and
// must not be replaced with big.Int.Sqrt or math.Sqrt. Negative input
// returns zero.
func Sqrt(x *big.Int) *big.Int {
	if x.Sign() <= 0 {
		return Zero()
	}

	one := big.NewInt(1)
	two := big.NewInt(2)

	y := new(big.Int).Set(x)
	z := new(big.Int).Add(x, one)
	z.Quo(z, two)

	for z.Cmp(y) < 0 {
		y.Set(z)
		t := new(big.Int).Quo(x, z)
		t.Add(t, z)
		z = t.Quo(t, two)
	}

	return y
}

// SqrtWad returns the square root of a wad-scaled value, itself at wad
// scale: sqrt(x/1e18)*1e18 == Sqrt(x*1e18).
func SqrtWad(x *big.Int) *big.Int {
	return Sqrt(new(big.Int).Mul(x, One()))
}

// ToFloat converts a wad-scaled value to a float64. Only used for
// reporting and the float-based distribution statistics; never feeds back
// into fixed-point state.
func ToFloat(x *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(x), new(big.Float).SetInt(One())).Float64()
	return f
}

// Format renders a wad-scaled value as a decimal string with the given
// number of fractional digits
func Format(x *big.Int, places int) string {
	neg := x.Sign() < 0
	abs := new(big.Int).Abs(x)
	whole := new(big.Int).Quo(abs, One())
	frac := new(big.Int).Mod(abs, One())

	fracStr := frac.String()
	fracStr = strings.Repeat("0", 18-len(fracStr)) + fracStr
	if places < 18 {
		fracStr = fracStr[:places]
	}

	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	sb.WriteString(whole.String())
	if places > 0 {
		sb.WriteByte('.')
		sb.WriteString(fracStr)
	}
	return sb.String()
}

// Parse converts a decimal string (e.g. "1.5") to wad scale. The
// fractional part is truncated beyond 18 digits.
func Parse(s string) (*big.Int, bool) {
	parts := strings.SplitN(s, ".", 2)
	whole, ok := new(big.Int).SetString(parts[0], 10)
	if !ok {
		return nil, false
	}

	res := new(big.Int).Mul(whole, One())
	if len(parts) == 1 {
		return res, true
	}

	fracStr := parts[1]
	if len(fracStr) > 18 {
		fracStr = fracStr[:18]
	}
	frac, err := strconv.ParseUint(fracStr+strings.Repeat("0", 18-len(fracStr)), 10, 64)
	if err != nil {
		return nil, false
	}

	fracInt := new(big.Int).SetUint64(frac)
	if whole.Sign() < 0 || strings.HasPrefix(parts[0], "-") {
		res.Sub(res, fracInt)
	} else {
		res.Add(res, fracInt)
	}
	return res, true
}
