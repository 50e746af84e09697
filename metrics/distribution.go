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

package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/penny-vault/vault-backtest/fixed"
	"github.com/penny-vault/vault-backtest/vault"
)

// Distribution statistics are reporting-grade float metrics layered on
// top of the fixed-point engine. They never feed back into simulation
// state, so float arithmetic is acceptable here.

// Skew computes the skew of the period returns relative to the normal
// distribution
func Skew(snapshots []*vault.Snapshot) (float64, error) {
	rets, err := floatReturns(snapshots)
	if err != nil {
		return 0, err
	}
	return stat.Skew(rets, nil), nil
}

// ExcessKurtosis measures the tail weight of the return distribution
// relative to the normal distribution
func ExcessKurtosis(snapshots []*vault.Snapshot) (float64, error) {
	rets, err := floatReturns(snapshots)
	if err != nil {
		return 0, err
	}
	return stat.ExKurtosis(rets, nil), nil
}

// UlcerIndex measures downside risk as the root-mean-square percentage
// drawdown over the sequence
func UlcerIndex(snapshots []*vault.Snapshot) (float64, error) {
	if len(snapshots) < 2 {
		return 0, ErrInsufficientHistory
	}

	maxValue := fixed.ToFloat(snapshots[0].PortfolioValue)
	var sqSum float64
	for _, snap := range snapshots {
		v := fixed.ToFloat(snap.PortfolioValue)
		if v > maxValue {
			maxValue = v
		}
		if maxValue == 0 {
			continue
		}
		percentDrawDown := ((v - maxValue) / maxValue) * 100
		sqSum += percentDrawDown * percentDrawDown
	}

	return math.Sqrt(sqSum / float64(len(snapshots))), nil
}

func floatReturns(snapshots []*vault.Snapshot) ([]float64, error) {
	returns, err := PeriodReturns(snapshots)
	if err != nil {
		return nil, err
	}

	rets := make([]float64, len(returns))
	for ii, r := range returns {
		rets[ii] = fixed.ToFloat(r)
	}
	return rets, nil
}
