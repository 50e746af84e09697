// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics derives risk and performance statistics from an ordered
// snapshot sequence. Every function is pure: results depend only on the
// snapshots passed in, never on live simulator state. The headline
// statistics are computed in 1e18 fixed point (square roots via
// fixed.Sqrt) so they reproduce bit-for-bit; float-based distribution
// statistics live in distribution.go.
package metrics

import (
	"errors"
	"math/big"

	"github.com/penny-vault/vault-backtest/fixed"
	"github.com/penny-vault/vault-backtest/vault"
)

var (
	ErrInsufficientHistory = errors.New("at least two snapshots are required")
	ErrMismatchedLengths   = errors.New("return series must be the same length")
)

// Report holds the wad-scaled statistics for one snapshot sequence
type Report struct {
	PeriodReturns    []*big.Int `json:"periodReturns"`
	TotalReturn      *big.Int   `json:"totalReturn"`
	AnnualizedReturn *big.Int   `json:"annualizedReturn"`
	Volatility       *big.Int   `json:"volatility"`
	Sharpe           *big.Int   `json:"sharpe"`
	Sortino          *big.Int   `json:"sortino"`
	MaxDrawdown      *big.Int   `json:"maxDrawdown"`
}

// Compute derives the full report from a snapshot sequence.
// riskFreeRateBps is the annualized risk-free rate in basis points.
func Compute(snapshots []*vault.Snapshot, riskFreeRateBps int64) (*Report, error) {
	returns, err := PeriodReturns(snapshots)
	if err != nil {
		return nil, err
	}

	totalDays := totalDays(snapshots)
	totalReturn := ratio(snapshots[len(snapshots)-1].PortfolioValue, snapshots[0].PortfolioValue)

	// linear annualization, not compounding
	annualized := fixed.MulDiv(totalReturn, big.NewInt(fixed.DaysPerYear), big.NewInt(totalDays))

	vol := annualizedVolatility(returns, totalDays)

	rf := fixed.FromBps(riskFreeRateBps)
	excess := new(big.Int).Sub(annualized, rf)

	sharpe := fixed.Zero()
	if vol.Sign() != 0 {
		sharpe = fixed.WadDiv(excess, vol)
	}

	sortino := fixed.Zero()
	if dd := downsideDeviation(returns, totalDays); dd.Sign() != 0 {
		sortino = fixed.WadDiv(excess, dd)
	}

	return &Report{
		PeriodReturns:    returns,
		TotalReturn:      totalReturn,
		AnnualizedReturn: annualized,
		Volatility:       vol,
		Sharpe:           sharpe,
		Sortino:          sortino,
		MaxDrawdown:      MaxDrawdown(snapshots),
	}, nil
}

// PeriodReturns computes v[i]/v[i-1] - 1 for each adjacent snapshot pair.
// A zero denominator yields a zero return, not an error.
func PeriodReturns(snapshots []*vault.Snapshot) ([]*big.Int, error) {
	if len(snapshots) < 2 {
		return nil, ErrInsufficientHistory
	}

	returns := make([]*big.Int, 0, len(snapshots)-1)
	for ii := 1; ii < len(snapshots); ii++ {
		returns = append(returns, ratio(snapshots[ii].PortfolioValue, snapshots[ii-1].PortfolioValue))
	}
	return returns, nil
}

// MaxDrawdown is the largest peak-to-trough decline observed scanning the
// sequence left to right
func MaxDrawdown(snapshots []*vault.Snapshot) *big.Int {
	maxDD := fixed.Zero()
	if len(snapshots) == 0 {
		return maxDD
	}

	peak := fixed.Clone(snapshots[0].PortfolioValue)
	for _, snap := range snapshots {
		if snap.PortfolioValue.Cmp(peak) > 0 {
			peak.Set(snap.PortfolioValue)
		}
		if peak.Sign() == 0 {
			continue
		}
		dd := fixed.MulDiv(new(big.Int).Sub(peak, snap.PortfolioValue), fixed.One(), peak)
		if dd.Cmp(maxDD) > 0 {
			maxDD = dd
		}
	}
	return maxDD
}

// Correlation is the Pearson correlation of two equal-length return
// series; zero when either series has no variance.
func Correlation(seriesA, seriesB []*big.Int) (*big.Int, error) {
	if len(seriesA) != len(seriesB) {
		return nil, ErrMismatchedLengths
	}
	if len(seriesA) < 2 {
		return nil, ErrInsufficientHistory
	}

	meanA := mean(seriesA)
	meanB := mean(seriesB)

	cov := fixed.Zero()
	varA := fixed.Zero()
	varB := fixed.Zero()
	for ii := range seriesA {
		da := new(big.Int).Sub(seriesA[ii], meanA)
		db := new(big.Int).Sub(seriesB[ii], meanB)
		cov.Add(cov, fixed.WadMul(da, db))
		varA.Add(varA, fixed.WadMul(da, da))
		varB.Add(varB, fixed.WadMul(db, db))
	}

	denom := fixed.WadMul(fixed.SqrtWad(varA), fixed.SqrtWad(varB))
	if denom.Sign() == 0 {
		return fixed.Zero(), nil
	}
	return fixed.WadDiv(cov, denom), nil
}

// ratio computes cur/prev - 1 at wad scale with the defined-zero guard
func ratio(cur, prev *big.Int) *big.Int {
	if prev.Sign() == 0 {
		return fixed.Zero()
	}
	r := fixed.MulDiv(cur, fixed.One(), prev)
	return r.Sub(r, fixed.One())
}

// totalDays spans first to last snapshot, floored at one day so the
// annualization factor is always defined
func totalDays(snapshots []*vault.Snapshot) int64 {
	days := (snapshots[len(snapshots)-1].Timestamp - snapshots[0].Timestamp) / 86_400
	if days < 1 {
		days = 1
	}
	return days
}

// annualizedVolatility is the sample standard deviation of period returns
// scaled by sqrt(periodsPerYear), periodsPerYear = 365*n/totalDays
func annualizedVolatility(returns []*big.Int, days int64) *big.Int {
	stdev := sampleStdev(returns)
	if stdev.Sign() == 0 {
		return stdev
	}
	return fixed.WadMul(stdev, sqrtPeriodsPerYear(int64(len(returns)), days))
}

// downsideDeviation mirrors annualizedVolatility but only negative-return
// periods contribute, per the Sortino definition
func downsideDeviation(returns []*big.Int, days int64) *big.Int {
	sumSq := fixed.Zero()
	var negatives int64
	for _, r := range returns {
		if r.Sign() < 0 {
			sumSq.Add(sumSq, fixed.WadMul(r, r))
			negatives++
		}
	}
	if negatives == 0 {
		return fixed.Zero()
	}

	variance := new(big.Int).Quo(sumSq, big.NewInt(negatives))
	dev := fixed.SqrtWad(variance)
	if dev.Sign() == 0 {
		return dev
	}
	return fixed.WadMul(dev, sqrtPeriodsPerYear(int64(len(returns)), days))
}

func sqrtPeriodsPerYear(n, days int64) *big.Int {
	ppy := fixed.DaysPerYear * n / days
	if ppy < 1 {
		ppy = 1
	}
	return fixed.SqrtWad(fixed.FromInt(ppy))
}

func sampleStdev(returns []*big.Int) *big.Int {
	n := int64(len(returns))
	if n < 2 {
		return fixed.Zero()
	}

	m := mean(returns)
	sumSq := fixed.Zero()
	for _, r := range returns {
		d := new(big.Int).Sub(r, m)
		sumSq.Add(sumSq, fixed.WadMul(d, d))
	}

	variance := new(big.Int).Quo(sumSq, big.NewInt(n-1))
	return fixed.SqrtWad(variance)
}

func mean(series []*big.Int) *big.Int {
	sum := fixed.Zero()
	for _, v := range series {
		sum.Add(sum, v)
	}
	return sum.Quo(sum, big.NewInt(int64(len(series))))
}
