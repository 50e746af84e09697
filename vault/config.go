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

package vault

import (
	"math/big"
	"os"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"

	"github.com/penny-vault/vault-backtest/fixed"
)

// DataPolicy controls how a missing price or yield observation is handled
// during a simulation step.
type DataPolicy string

const (
	// StrictData aborts the step (and therefore the run) when any asset's
	// market data cannot be resolved
	StrictData DataPolicy = "strict"

	// LenientData skips the affected asset's update for the step
	LenientData DataPolicy = "lenient"
)

// Asset is one position in the simulated vault. WrapperID names the yield
// source the asset's rate series is keyed on.
type Asset struct {
	AssetID         string `toml:"asset_id" json:"assetId"`
	WrapperID       string `toml:"wrapper_id" json:"wrapperId"`
	TargetWeightBps int64  `toml:"target_weight_bps" json:"targetWeightBps"`
	YieldGenerating bool   `toml:"yield_generating" json:"yieldGenerating"`
}

// Parameters are immutable for the life of a simulator instance
type Parameters struct {
	BaseAssetID           string `toml:"base_asset_id" json:"baseAssetId"`
	InitialDeposit        *big.Int
	RebalanceThresholdBps int64 `toml:"rebalance_threshold_bps" json:"rebalanceThresholdBps"`
	RebalanceInterval     int64 `toml:"rebalance_interval_seconds" json:"rebalanceIntervalSeconds"`
	ManagementFeeBps      int64 `toml:"management_fee_bps_per_year" json:"managementFeeBpsPerYear"`
	PerformanceFeeBps     int64 `toml:"performance_fee_bps" json:"performanceFeeBps"`

	// RequireFullAllocation demands that target weights sum to exactly
	// 10,000 bps; otherwise any sum up to 10,000 is accepted and the
	// remainder sits unallocated in the base asset
	RequireFullAllocation bool `toml:"require_full_allocation" json:"requireFullAllocation"`
}

// Config is the on-disk description of a backtest: the asset list, vault
// parameters, data policy, and the time range to replay.
type Config struct {
	Assets []*Asset `toml:"asset"`

	Params Parameters `toml:"vault"`

	// decimal string, parsed into Params.InitialDeposit
	InitialDeposit string `toml:"initial_deposit"`

	DataPolicy      DataPolicy `toml:"data_policy"`
	DefaultYieldBps int64      `toml:"default_yield_bps"`
	RiskFreeRateBps int64      `toml:"risk_free_rate_bps"`

	Start       int64 `toml:"start"`
	End         int64 `toml:"end"`
	StepSeconds int64 `toml:"step_seconds"`
}

// LoadConfig reads and validates a TOML backtest configuration
func LoadConfig(path string) (*Config, error) {
	subLog := log.With().Str("ConfigFile", path).Logger()

	raw, err := os.ReadFile(path)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not read config file")
		return nil, err
	}

	cfg := &Config{
		DataPolicy:  LenientData,
		StepSeconds: 86_400,
	}
	if err := toml.Unmarshal(raw, cfg); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not parse config file")
		return nil, err
	}

	if cfg.InitialDeposit != "" {
		deposit, ok := fixed.Parse(cfg.InitialDeposit)
		if !ok || deposit.Sign() < 0 {
			subLog.Error().Stack().Str("InitialDeposit", cfg.InitialDeposit).Msg("invalid initial deposit")
			return nil, ErrBadDeposit
		}
		cfg.Params.InitialDeposit = deposit
	}

	if cfg.DataPolicy != StrictData && cfg.DataPolicy != LenientData {
		subLog.Error().Stack().Str("DataPolicy", string(cfg.DataPolicy)).Msg("unknown data policy")
		return nil, ErrBadDataPolicy
	}

	return cfg, nil
}

// weightSum totals target weights across the asset list
func weightSum(assets []*Asset) int64 {
	var sum int64
	for _, asset := range assets {
		sum += asset.TargetWeightBps
	}
	return sum
}
