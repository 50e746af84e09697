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

package handler

import (
	"encoding/hex"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/penny-vault/vault-backtest/backtest"
	"github.com/penny-vault/vault-backtest/data"
	"github.com/penny-vault/vault-backtest/fixed"
	"github.com/penny-vault/vault-backtest/metrics"
	"github.com/penny-vault/vault-backtest/vault"
)

// the series store is shared across requests; it is populated at startup
// and read-only while the server runs
var store *data.SeriesStore

// SetStore installs the historical data store used by run requests
func SetStore(s *data.SeriesStore) {
	store = s
}

type backtestRequest struct {
	Assets          []*vault.Asset `json:"assets"`
	BaseAssetID     string         `json:"baseAssetId"`
	InitialDeposit  string         `json:"initialDeposit"`
	ThresholdBps    int64          `json:"rebalanceThresholdBps"`
	IntervalSeconds int64          `json:"rebalanceIntervalSeconds"`
	ManagementBps   int64          `json:"managementFeeBpsPerYear"`
	PerformanceBps  int64          `json:"performanceFeeBps"`
	DataPolicy      string         `json:"dataPolicy"`
	DefaultYieldBps int64          `json:"defaultYieldBps"`
	RiskFreeRateBps int64          `json:"riskFreeRateBps"`
	Start           int64          `json:"start"`
	End             int64          `json:"end"`
	StepSeconds     int64          `json:"stepSeconds"`
}

type backtestResponse struct {
	RunID        string `json:"runId"`
	Checksum     string `json:"checksum"`
	NumSnapshots int    `json:"numSnapshots"`
}

// RunBacktest executes a backtest described by the request body and
// caches the result under a fresh run ID
func RunBacktest(c *fiber.Ctx) error {
	req := backtestRequest{}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		log.Warn().Err(err).Msg("bad backtest request")
		return fiber.ErrBadRequest
	}

	deposit, ok := fixed.Parse(req.InitialDeposit)
	if !ok || deposit.Sign() < 0 {
		log.Warn().Str("InitialDeposit", req.InitialDeposit).Msg("invalid initial deposit")
		return fiber.ErrBadRequest
	}

	policy := vault.DataPolicy(req.DataPolicy)
	if policy == "" {
		policy = vault.LenientData
	}
	if policy != vault.StrictData && policy != vault.LenientData {
		return fiber.ErrBadRequest
	}

	params := vault.Parameters{
		BaseAssetID:           req.BaseAssetID,
		InitialDeposit:        deposit,
		RebalanceThresholdBps: req.ThresholdBps,
		RebalanceInterval:     req.IntervalSeconds,
		ManagementFeeBps:      req.ManagementBps,
		PerformanceFeeBps:     req.PerformanceBps,
	}

	sim := vault.NewSimulator(store, req.Assets, params, policy, req.DefaultYieldBps)
	orch := backtest.NewOrchestrator(sim, nil)

	result, err := orch.Run(c.Context(), req.Start, req.End, req.StepSeconds)
	if err != nil {
		log.Warn().Err(err).Msg("backtest run failed")
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}

	if err := result.Save(); err != nil {
		log.Error().Stack().Err(err).Str("RunID", result.RunID.String()).Msg("could not cache result")
		return fiber.ErrInternalServerError
	}

	checksum, err := result.Checksum()
	if err != nil {
		return fiber.ErrInternalServerError
	}

	return c.JSON(backtestResponse{
		RunID:        result.RunID.String(),
		Checksum:     hex.EncodeToString(checksum[:]),
		NumSnapshots: len(result.Snapshots),
	})
}

// GetBacktest returns the snapshot sequence for a prior run
func GetBacktest(c *fiber.Ctx) error {
	runID := c.Params("id")

	result, err := backtest.Load(runID)
	if err != nil {
		log.Warn().Err(err).Str("RunID", runID).Msg("backtest result not found")
		return fiber.ErrNotFound
	}

	return c.JSON(result)
}

// GetBacktestMetrics computes risk statistics for a prior run. The
// risk-free rate (bps) may be overridden per request with the rf query
// parameter.
func GetBacktestMetrics(c *fiber.Ctx) error {
	runID := c.Params("id")

	result, err := backtest.Load(runID)
	if err != nil {
		log.Warn().Err(err).Str("RunID", runID).Msg("backtest result not found")
		return fiber.ErrNotFound
	}

	var riskFree int64
	if rf := c.Query("rf"); rf != "" {
		var err error
		riskFree, err = strconv.ParseInt(rf, 10, 64)
		if err != nil {
			log.Warn().Err(err).Str("rf", rf).Msg("invalid risk-free rate")
			return fiber.ErrBadRequest
		}
	}

	report, err := metrics.Compute(result.Snapshots, riskFree)
	if err != nil {
		log.Warn().Err(err).Str("RunID", runID).Msg("could not compute metrics")
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}

	skew, _ := metrics.Skew(result.Snapshots)
	kurtosis, _ := metrics.ExcessKurtosis(result.Snapshots)
	ulcer, _ := metrics.UlcerIndex(result.Snapshots)

	return c.JSON(fiber.Map{
		"runId":            runID,
		"totalReturn":      fixed.Format(report.TotalReturn, 6),
		"annualizedReturn": fixed.Format(report.AnnualizedReturn, 6),
		"volatility":       fixed.Format(report.Volatility, 6),
		"sharpe":           fixed.Format(report.Sharpe, 6),
		"sortino":          fixed.Format(report.Sortino, 6),
		"maxDrawdown":      fixed.Format(report.MaxDrawdown, 6),
		"skew":             skew,
		"excessKurtosis":   kurtosis,
		"ulcerIndex":       ulcer,
	})
}
