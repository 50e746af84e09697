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

package metrics_test

import (
	"math/big"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/vault-backtest/fixed"
	"github.com/penny-vault/vault-backtest/metrics"
	"github.com/penny-vault/vault-backtest/vault"
)

// snapshots spaced dayStep days apart starting at an arbitrary epoch
func snaps(dayStep int64, values ...int64) []*vault.Snapshot {
	out := make([]*vault.Snapshot, len(values))
	for ii, v := range values {
		out[ii] = &vault.Snapshot{
			Timestamp:      1_600_000_000 + int64(ii)*dayStep*86_400,
			PortfolioValue: fixed.FromInt(v),
		}
	}
	return out
}

func wad(s string) *big.Int {
	v, ok := fixed.Parse(s)
	Expect(ok).To(BeTrue())
	return v
}

var _ = Describe("Metrics", func() {
	Describe("When computing period returns", func() {
		It("requires at least two snapshots", func() {
			_, err := metrics.PeriodReturns(snaps(1, 100))
			Expect(err).To(MatchError(metrics.ErrInsufficientHistory))
		})

		It("computes the simple return of each adjacent pair", func() {
			returns, err := metrics.PeriodReturns(snaps(1, 100, 110, 99))
			Expect(err).To(BeNil())
			Expect(returns).To(HaveLen(2))
			Expect(returns[0].Cmp(wad("0.1"))).To(Equal(0))
			Expect(returns[1].Cmp(wad("-0.1"))).To(Equal(0))
		})

		It("defines a zero-value predecessor as a zero return", func() {
			returns, err := metrics.PeriodReturns(snaps(1, 0, 100))
			Expect(err).To(BeNil())
			Expect(returns[0].Sign()).To(Equal(0))
		})
	})

	Describe("When computing max drawdown", func() {
		It("finds the deepest peak-to-trough decline", func() {
			dd := metrics.MaxDrawdown(snaps(1, 100, 120, 90, 110))
			Expect(dd.Cmp(wad("0.25"))).To(Equal(0))
		})

		It("is zero for a monotonically rising sequence", func() {
			dd := metrics.MaxDrawdown(snaps(1, 100, 110, 120))
			Expect(dd.Sign()).To(Equal(0))
		})

		It("is zero for an empty sequence", func() {
			Expect(metrics.MaxDrawdown(nil).Sign()).To(Equal(0))
		})
	})

	Describe("When computing the full report", func() {
		It("annualizes the total return linearly", func() {
			// +10% over 73 days scales by 365/73 = 5
			report, err := metrics.Compute(snaps(73, 100, 110), 0)
			Expect(err).To(BeNil())
			Expect(report.TotalReturn.Cmp(wad("0.1"))).To(Equal(0))
			Expect(report.AnnualizedReturn.Cmp(wad("0.5"))).To(Equal(0))
		})

		It("reports zero Sharpe and Sortino for a flat series", func() {
			report, err := metrics.Compute(snaps(1, 100, 100, 100), 200)
			Expect(err).To(BeNil())
			Expect(report.Volatility.Sign()).To(Equal(0))
			Expect(report.Sharpe.Sign()).To(Equal(0))
			Expect(report.Sortino.Sign()).To(Equal(0))
		})

		It("computes Sortino from negative periods only", func() {
			// returns 0.1 and -0.1 over two 365-day periods: one period
			// per year, so no annualization scaling applies
			report, err := metrics.Compute(snaps(365, 100, 110, 99), 0)
			Expect(err).To(BeNil())

			// total return -1% over 730 days annualizes to -0.5%
			Expect(report.AnnualizedReturn.Cmp(wad("-0.005"))).To(Equal(0))
			// downside deviation = |-0.1|, sortino = -0.005 / 0.1
			Expect(report.Sortino.Cmp(wad("-0.05"))).To(Equal(0))
			Expect(report.Sharpe.Sign()).To(Equal(-1))
			Expect(report.Volatility.Sign()).To(Equal(1))
		})

		It("subtracts the risk-free rate from the excess return", func() {
			flat, err := metrics.Compute(snaps(365, 100, 110, 99), 0)
			Expect(err).To(BeNil())
			withRf, err := metrics.Compute(snaps(365, 100, 110, 99), 200)
			Expect(err).To(BeNil())
			Expect(withRf.Sharpe.Cmp(flat.Sharpe)).To(Equal(-1))
		})

		It("propagates insufficient history", func() {
			_, err := metrics.Compute(snaps(1, 100), 0)
			Expect(err).To(MatchError(metrics.ErrInsufficientHistory))
		})
	})

	Describe("When computing correlation", func() {
		It("rejects mismatched lengths", func() {
			a := []*big.Int{wad("0.1"), wad("-0.1")}
			b := []*big.Int{wad("0.1")}
			_, err := metrics.Correlation(a, b)
			Expect(err).To(MatchError(metrics.ErrMismatchedLengths))
		})

		It("requires at least two observations", func() {
			a := []*big.Int{wad("0.1")}
			_, err := metrics.Correlation(a, a)
			Expect(err).To(MatchError(metrics.ErrInsufficientHistory))
		})

		It("is one for a series against itself", func() {
			a := []*big.Int{wad("0.1"), wad("-0.1"), wad("0.05"), wad("0.02")}
			r, err := metrics.Correlation(a, a)
			Expect(err).To(BeNil())

			// sqrt truncation can leave the quotient a hair above one
			diff := new(big.Int).Sub(r, fixed.One())
			Expect(diff.Sign()).To(BeNumerically(">=", 0))
			Expect(diff.Cmp(big.NewInt(1_000_000_000))).To(Equal(-1))
		})

		It("is negative one for an inverted series", func() {
			a := []*big.Int{wad("0.1"), wad("-0.1"), wad("0.05"), wad("0.02")}
			b := make([]*big.Int, len(a))
			for ii, v := range a {
				b[ii] = new(big.Int).Neg(v)
			}
			r, err := metrics.Correlation(a, b)
			Expect(err).To(BeNil())

			diff := new(big.Int).Add(r, fixed.One())
			Expect(diff.CmpAbs(big.NewInt(1_000_000_000))).To(Equal(-1))
		})

		It("is zero when one series is constant", func() {
			a := []*big.Int{wad("0.1"), wad("-0.1")}
			b := []*big.Int{wad("0.05"), wad("0.05")}
			r, err := metrics.Correlation(a, b)
			Expect(err).To(BeNil())
			Expect(r.Sign()).To(Equal(0))
		})
	})

	Describe("When computing distribution statistics", func() {
		It("reports a zero ulcer index for a rising sequence", func() {
			ui, err := metrics.UlcerIndex(snaps(1, 100, 110, 120))
			Expect(err).To(BeNil())
			Expect(ui).To(Equal(0.0))
		})

		It("reports a positive ulcer index after a drawdown", func() {
			ui, err := metrics.UlcerIndex(snaps(1, 100, 120, 90, 110))
			Expect(err).To(BeNil())
			Expect(ui).To(BeNumerically(">", 0))
		})

		It("measures negative skew for a left-tailed distribution", func() {
			sk, err := metrics.Skew(snaps(1, 100, 101, 102, 103, 80))
			Expect(err).To(BeNil())
			Expect(sk).To(BeNumerically("<", 0))
		})
	})
})
