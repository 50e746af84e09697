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

package backtest_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/vault-backtest/backtest"
	"github.com/penny-vault/vault-backtest/data"
	"github.com/penny-vault/vault-backtest/fixed"
	"github.com/penny-vault/vault-backtest/vault"
)

const (
	start  = int64(1_600_000_000)
	oneDay = int64(86_400)
)

// seedStore populates daily prices for two assets: A climbs 1% per day, B
// stays flat
func seedStore(days int64) *data.SeriesStore {
	store := data.NewSeriesStore()
	price := fixed.One()
	growth, _ := fixed.Parse("1.01")
	for d := int64(0); d <= days; d++ {
		ts := start + d*oneDay
		Expect(store.SetPoint(vault.PriceSeriesID("A"), ts, price)).To(Succeed())
		Expect(store.SetPoint(vault.PriceSeriesID("B"), ts, fixed.One())).To(Succeed())
		price = fixed.WadMul(price, growth)
	}
	return store
}

func newSimulator(store *data.SeriesStore, policy vault.DataPolicy) *vault.Simulator {
	assets := []*vault.Asset{
		{AssetID: "A", TargetWeightBps: 6_000},
		{AssetID: "B", TargetWeightBps: 4_000},
	}
	params := vault.Parameters{
		InitialDeposit:        fixed.FromInt(10_000),
		RebalanceThresholdBps: 500,
	}
	return vault.NewSimulator(store, assets, params, policy, 0)
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx   context.Context
		store *data.SeriesStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = seedStore(30)
	})

	Describe("When validating the run window", func() {
		It("rejects an inverted time range", func() {
			orch := backtest.NewOrchestrator(newSimulator(store, vault.LenientData), nil)
			_, err := orch.Run(ctx, start, start-oneDay, oneDay)
			Expect(err).To(MatchError(backtest.ErrInvalidTimeRange))
		})

		It("rejects an empty time range", func() {
			orch := backtest.NewOrchestrator(newSimulator(store, vault.LenientData), nil)
			_, err := orch.Run(ctx, start, start, oneDay)
			Expect(err).To(MatchError(backtest.ErrInvalidTimeRange))
		})

		It("rejects a non-positive step", func() {
			orch := backtest.NewOrchestrator(newSimulator(store, vault.LenientData), nil)
			_, err := orch.Run(ctx, start, start+oneDay, 0)
			Expect(err).To(MatchError(backtest.ErrInvalidStep))
		})
	})

	Describe("When running to completion", func() {
		It("collects one snapshot per step including both endpoints", func() {
			orch := backtest.NewOrchestrator(newSimulator(store, vault.StrictData), nil)
			result, err := orch.Run(ctx, start, start+10*oneDay, oneDay)
			Expect(err).To(BeNil())
			Expect(result.Snapshots).To(HaveLen(11))
			Expect(result.Snapshots[0].Timestamp).To(Equal(start))
			Expect(result.Snapshots[10].Timestamp).To(Equal(start + 10*oneDay))
		})

		It("truncates a partial trailing step", func() {
			orch := backtest.NewOrchestrator(newSimulator(store, vault.StrictData), nil)
			result, err := orch.Run(ctx, start, start+10*oneDay+1, 3*oneDay)
			Expect(err).To(BeNil())
			// floor(10d+1 / 3d) + 1
			Expect(result.Snapshots).To(HaveLen(4))
		})

		It("retains the result for later retrieval", func() {
			orch := backtest.NewOrchestrator(newSimulator(store, vault.StrictData), nil)
			result, err := orch.Run(ctx, start, start+5*oneDay, oneDay)
			Expect(err).To(BeNil())
			Expect(orch.Result()).To(BeIdenticalTo(result))
		})

		It("invokes the refresh hook once per step", func() {
			var calls int
			refresh := func(_ context.Context, _ int64) error {
				calls++
				return nil
			}
			orch := backtest.NewOrchestrator(newSimulator(store, vault.StrictData), refresh)
			_, err := orch.Run(ctx, start, start+5*oneDay, oneDay)
			Expect(err).To(BeNil())
			Expect(calls).To(Equal(6))
		})
	})

	Describe("When a run fails", func() {
		It("leaves no partial result after a strict data miss", func() {
			// prices run out before the window does
			short := seedStore(3)
			orch := backtest.NewOrchestrator(newSimulator(short, vault.StrictData), nil)

			result, err := orch.Run(ctx, start, start+5*oneDay, oneDay)
			Expect(err).To(BeNil())
			Expect(result).ToNot(BeNil())

			_, err = orch.Run(ctx, start, start+200*oneDay, oneDay)
			Expect(err).To(MatchError(vault.ErrMissingData))
			Expect(orch.Result()).To(BeNil())
		})

		It("aborts when the refresh hook fails", func() {
			refreshErr := errors.New("feed unavailable")
			refresh := func(_ context.Context, ts int64) error {
				if ts >= start+3*oneDay {
					return refreshErr
				}
				return nil
			}
			orch := backtest.NewOrchestrator(newSimulator(store, vault.StrictData), refresh)
			_, err := orch.Run(ctx, start, start+5*oneDay, oneDay)
			Expect(err).To(MatchError(refreshErr))
			Expect(orch.Result()).To(BeNil())
		})
	})

	Describe("When checking determinism", func() {
		It("produces identical checksums for identical runs", func() {
			orchA := backtest.NewOrchestrator(newSimulator(store, vault.StrictData), nil)
			resultA, err := orchA.Run(ctx, start, start+20*oneDay, oneDay)
			Expect(err).To(BeNil())

			orchB := backtest.NewOrchestrator(newSimulator(store, vault.StrictData), nil)
			resultB, err := orchB.Run(ctx, start, start+20*oneDay, oneDay)
			Expect(err).To(BeNil())

			sumA, err := resultA.Checksum()
			Expect(err).To(BeNil())
			sumB, err := resultB.Checksum()
			Expect(err).To(BeNil())
			Expect(sumA).To(Equal(sumB))

			// run ids stay unique even when the snapshots match
			Expect(resultA.RunID).ToNot(Equal(resultB.RunID))
		})

		It("produces different checksums for different windows", func() {
			orchA := backtest.NewOrchestrator(newSimulator(store, vault.StrictData), nil)
			resultA, err := orchA.Run(ctx, start, start+20*oneDay, oneDay)
			Expect(err).To(BeNil())

			orchB := backtest.NewOrchestrator(newSimulator(store, vault.StrictData), nil)
			resultB, err := orchB.Run(ctx, start, start+10*oneDay, oneDay)
			Expect(err).To(BeNil())

			sumA, err := resultA.Checksum()
			Expect(err).To(BeNil())
			sumB, err := resultB.Checksum()
			Expect(err).To(BeNil())
			Expect(sumA).ToNot(Equal(sumB))
		})
	})
})
