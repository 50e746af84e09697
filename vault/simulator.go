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

// Package vault simulates a rebalancing multi-asset vault over historical
// price and yield observations. Asset values track price *ratios* applied
// to the baseline set at the last rebalance; the simulator never reprices
// a position as quantity times price. All arithmetic is 1e18 fixed point
// with truncating division so a run is exactly reproducible.
package vault

import (
	"math/big"

	"github.com/rs/zerolog/log"

	"github.com/penny-vault/vault-backtest/data"
	"github.com/penny-vault/vault-backtest/fixed"
)

const (
	// tolerance windows for nearest-match lookups
	priceTolerance = 30 * 86_400
	yieldTolerance = 90 * 86_400

	// estimatedCost is a coarse gas-style heuristic, not a cost model
	costBase      = 45_000
	costHarvest   = 120_000
	costRebalance = 350_000
)

// PriceSeriesID names the price series for an asset
func PriceSeriesID(assetID string) string {
	return "price:" + assetID
}

// YieldSeriesID names the annualized yield-rate series (bps) for a
// wrapper
func YieldSeriesID(wrapperID string) string {
	return "yield:" + wrapperID
}

// Snapshot is the immutable record of one simulation step
type Snapshot struct {
	Timestamp       int64      `json:"timestamp"`
	PortfolioValue  *big.Int   `json:"portfolioValue"`
	AssetValues     []*big.Int `json:"assetValues"`
	AssetWeightsBps []int64    `json:"assetWeightsBps"`
	YieldHarvested  *big.Int   `json:"yieldHarvested"`
	Rebalanced      bool       `json:"rebalanced"`
	EstimatedCost   int64      `json:"estimatedCost"`
}

// State is the mutable simulation ledger, exclusively owned by one
// Simulator instance
type State struct {
	Values          []*big.Int
	BaseValues      []*big.Int
	LastRebalanceTs int64
	LastYieldTs     int64
	HighWaterMark   *big.Int
}

// Simulator replays a vault configuration against a read-only SeriesStore
type Simulator struct {
	store           *data.SeriesStore
	assets          []*Asset
	params          Parameters
	policy          DataPolicy
	defaultYieldBps int64

	state *State
}

// NewSimulator creates a simulator; Initialize must be called before Step
func NewSimulator(store *data.SeriesStore, assets []*Asset, params Parameters, policy DataPolicy, defaultYieldBps int64) *Simulator {
	return &Simulator{
		store:           store,
		assets:          assets,
		params:          params,
		policy:          policy,
		defaultYieldBps: defaultYieldBps,
	}
}

// Initialize seeds the portfolio ledger at startTs. Each asset receives
// initialDeposit * targetWeightBps / 10,000 (truncating) as both its
// value and its ratio-tracking baseline.
func (sim *Simulator) Initialize(startTs int64) error {
	if len(sim.assets) == 0 {
		log.Error().Stack().Msg("cannot initialize simulator with no assets")
		return ErrNoAssets
	}

	for _, asset := range sim.assets {
		if asset.TargetWeightBps < 0 {
			log.Error().Stack().Str("AssetID", asset.AssetID).Int64("TargetWeightBps", asset.TargetWeightBps).Msg("target weight is negative")
			return ErrBadWeights
		}
	}

	sum := weightSum(sim.assets)
	if sum > fixed.BpsScale || (sim.params.RequireFullAllocation && sum != fixed.BpsScale) {
		log.Error().Stack().Int64("WeightSumBps", sum).Bool("RequireFullAllocation", sim.params.RequireFullAllocation).Msg("target weights violate invariant")
		return ErrBadWeights
	}

	n := len(sim.assets)
	state := &State{
		Values:          make([]*big.Int, n),
		BaseValues:      make([]*big.Int, n),
		LastRebalanceTs: startTs,
		LastYieldTs:     startTs,
		HighWaterMark:   fixed.Clone(sim.params.InitialDeposit),
	}

	bps := big.NewInt(fixed.BpsScale)
	for ii, asset := range sim.assets {
		v := fixed.MulDiv(sim.params.InitialDeposit, big.NewInt(asset.TargetWeightBps), bps)
		state.Values[ii] = v
		state.BaseValues[ii] = fixed.Clone(v)
	}

	sim.state = state
	return nil
}

// State exposes the current ledger; read-only for callers
func (sim *Simulator) State() *State {
	return sim.state
}

// Step advances the simulation to ts, performing in order: price update,
// yield harvest, rebalance decision and execution, fee accrual, and
// snapshot production.
func (sim *Simulator) Step(ts int64) (*Snapshot, error) {
	if sim.state == nil {
		return nil, ErrNotInitialized
	}

	state := sim.state
	elapsed := ts - state.LastYieldTs
	if elapsed < 0 {
		elapsed = 0
	}

	if err := sim.updatePrices(ts); err != nil {
		return nil, err
	}

	yieldHarvested, err := sim.harvestYield(ts, elapsed)
	if err != nil {
		return nil, err
	}
	state.LastYieldTs = ts

	total := sim.totalValue()

	rebalanced := sim.shouldRebalance(ts, total)
	if rebalanced {
		sim.rebalance(ts, total)
		total = sim.totalValue()
	}

	reported := sim.accrueFees(total, elapsed)

	snapshot := sim.buildSnapshot(ts, total, reported, yieldHarvested, rebalanced)
	return snapshot, nil
}

// updatePrices applies the price ratio since the last rebalance to each
// asset's baseline
func (sim *Simulator) updatePrices(ts int64) error {
	state := sim.state

	for ii, asset := range sim.assets {
		seriesID := PriceSeriesID(asset.AssetID)

		pNow, _, err := sim.store.GetNearest(seriesID, ts, priceTolerance)
		if err != nil {
			if sim.policy == StrictData {
				log.Error().Stack().Err(err).Str("AssetID", asset.AssetID).Int64("Timestamp", ts).Msg("price unavailable")
				return ErrMissingData
			}
			continue
		}

		pRef, _, err := sim.store.GetNearest(seriesID, state.LastRebalanceTs, priceTolerance)
		if err != nil {
			if sim.policy == StrictData {
				log.Error().Stack().Err(err).Str("AssetID", asset.AssetID).Int64("Timestamp", state.LastRebalanceTs).Msg("reference price unavailable")
				return ErrMissingData
			}
			continue
		}

		if pRef.Sign() == 0 {
			log.Warn().Str("AssetID", asset.AssetID).Msg("reference price is zero; skipping price update")
			continue
		}

		state.Values[ii] = fixed.MulDiv(state.BaseValues[ii], pNow, pRef)
	}

	return nil
}

// harvestYield accrues time-weighted yield for yield-generating assets.
// Accrued yield compounds: it is added to both the asset's value and its
// baseline so later price updates do not erase it.
func (sim *Simulator) harvestYield(ts int64, elapsed int64) (*big.Int, error) {
	state := sim.state
	harvested := fixed.Zero()

	if elapsed == 0 {
		return harvested, nil
	}

	den := new(big.Int).Mul(big.NewInt(fixed.BpsScale), big.NewInt(fixed.SecondsPerYear))

	for ii, asset := range sim.assets {
		if !asset.YieldGenerating {
			continue
		}

		rate := big.NewInt(sim.defaultYieldBps)
		if val, _, err := sim.store.GetNearest(YieldSeriesID(asset.WrapperID), ts, yieldTolerance); err == nil {
			rate = val
		} else if sim.policy == StrictData && sim.defaultYieldBps == 0 {
			log.Error().Stack().Err(err).Str("WrapperID", asset.WrapperID).Int64("Timestamp", ts).Msg("yield rate unavailable and no default configured")
			return nil, ErrMissingData
		}

		if rate.Sign() <= 0 {
			continue
		}

		// value * rateBps * elapsed / (10000 * secondsPerYear)
		num := new(big.Int).Mul(state.Values[ii], rate)
		num.Mul(num, big.NewInt(elapsed))
		accrued := num.Quo(num, den)

		state.Values[ii].Add(state.Values[ii], accrued)
		state.BaseValues[ii].Add(state.BaseValues[ii], accrued)
		harvested.Add(harvested, accrued)
	}

	return harvested, nil
}

// shouldRebalance fires when the rebalance interval has elapsed or any
// asset's live weight deviates from target by more than the threshold.
// The two triggers are independent.
func (sim *Simulator) shouldRebalance(ts int64, total *big.Int) bool {
	state := sim.state

	if sim.params.RebalanceInterval > 0 && ts-state.LastRebalanceTs >= sim.params.RebalanceInterval {
		return true
	}

	if total.Sign() == 0 {
		return false
	}

	for ii, asset := range sim.assets {
		weight := fixed.MulDiv(state.Values[ii], big.NewInt(fixed.BpsScale), total).Int64()
		dev := weight - asset.TargetWeightBps
		if dev < 0 {
			dev = -dev
		}
		if dev > sim.params.RebalanceThresholdBps {
			return true
		}
	}

	return false
}

// rebalance restores every asset to its target weight and resets the
// ratio-tracking baselines
func (sim *Simulator) rebalance(ts int64, total *big.Int) {
	state := sim.state
	bps := big.NewInt(fixed.BpsScale)

	for ii, asset := range sim.assets {
		v := fixed.MulDiv(total, big.NewInt(asset.TargetWeightBps), bps)
		state.Values[ii] = v
		state.BaseValues[ii] = fixed.Clone(v)
	}

	state.LastRebalanceTs = ts
	log.Debug().Int64("Timestamp", ts).Str("TotalValue", total.String()).Msg("rebalanced portfolio")
}

// accrueFees charges the management fee against the reported value only
// (asset ledger values are untouched) and the performance fee above the
// high-water mark. Returns the net reported portfolio value.
func (sim *Simulator) accrueFees(total *big.Int, elapsed int64) *big.Int {
	state := sim.state

	net := fixed.Clone(total)
	if sim.params.ManagementFeeBps > 0 && elapsed > 0 {
		// total * mgmtBps * elapsed / (10000 * secondsPerYear)
		num := new(big.Int).Mul(total, big.NewInt(sim.params.ManagementFeeBps))
		num.Mul(num, big.NewInt(elapsed))
		den := new(big.Int).Mul(big.NewInt(fixed.BpsScale), big.NewInt(fixed.SecondsPerYear))
		mgmtFee := num.Quo(num, den)
		net.Sub(net, mgmtFee)
	}

	if net.Cmp(state.HighWaterMark) > 0 && sim.params.PerformanceFeeBps > 0 {
		gain := new(big.Int).Sub(net, state.HighWaterMark)
		perfFee := fixed.MulDiv(gain, big.NewInt(sim.params.PerformanceFeeBps), big.NewInt(fixed.BpsScale))
		net.Sub(net, perfFee)
		state.HighWaterMark = fixed.Clone(net)
	} else if net.Cmp(state.HighWaterMark) > 0 {
		state.HighWaterMark = fixed.Clone(net)
	}

	return net
}

func (sim *Simulator) buildSnapshot(ts int64, total, reported, yieldHarvested *big.Int, rebalanced bool) *Snapshot {
	state := sim.state
	n := len(sim.assets)

	values := make([]*big.Int, n)
	weights := make([]int64, n)
	for ii := range sim.assets {
		values[ii] = fixed.Clone(state.Values[ii])
		if total.Sign() > 0 {
			weights[ii] = fixed.MulDiv(state.Values[ii], big.NewInt(fixed.BpsScale), total).Int64()
		}
	}

	cost := int64(costBase)
	if yieldHarvested.Sign() > 0 {
		cost += costHarvest
	}
	if rebalanced {
		cost += costRebalance
	}

	return &Snapshot{
		Timestamp:       ts,
		PortfolioValue:  reported,
		AssetValues:     values,
		AssetWeightsBps: weights,
		YieldHarvested:  yieldHarvested,
		Rebalanced:      rebalanced,
		EstimatedCost:   cost,
	}
}

func (sim *Simulator) totalValue() *big.Int {
	total := fixed.Zero()
	for _, v := range sim.state.Values {
		total.Add(total, v)
	}
	return total
}
