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

package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/penny-vault/vault-backtest/backtest"
	"github.com/penny-vault/vault-backtest/common"
	"github.com/penny-vault/vault-backtest/data"
	"github.com/penny-vault/vault-backtest/database"
	"github.com/penny-vault/vault-backtest/fixed"
	"github.com/penny-vault/vault-backtest/metrics"
	"github.com/penny-vault/vault-backtest/vault"
)

func init() {
	rootCmd.AddCommand(backtestCmd)
}

var backtestCmd = &cobra.Command{
	Use:        "backtest [flags] ConfigFile",
	Short:      "Run a backtest described by a TOML configuration file",
	Args:       cobra.ExactArgs(1),
	ArgAliases: []string{"ConfigFile"},
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		ctx := context.Background()

		cfg, err := vault.LoadConfig(args[0])
		if err != nil {
			log.Fatal().Err(err).Str("ConfigFile", args[0]).Msg("could not load configuration")
		}

		store := data.NewSeriesStore()
		if viper.GetString("database.url") != "" {
			if err := database.Connect(ctx); err != nil {
				log.Fatal().Err(err).Msg("could not connect to database")
			}
			if err := loadSeries(ctx, store, cfg); err != nil {
				log.Fatal().Err(err).Msg("could not load historical data")
			}
		}

		sim := vault.NewSimulator(store, cfg.Assets, cfg.Params, cfg.DataPolicy, cfg.DefaultYieldBps)
		orch := backtest.NewOrchestrator(sim, nil)

		result, err := orch.Run(ctx, cfg.Start, cfg.End, cfg.StepSeconds)
		if err != nil {
			log.Fatal().Err(err).Msg("backtest failed")
		}

		for _, snap := range result.Snapshots {
			flag := " "
			if snap.Rebalanced {
				flag = "R"
			}
			fmt.Printf("%s %s %s\n", time.Unix(snap.Timestamp, 0).UTC().Format("2006-01-02"), flag, fixed.Format(snap.PortfolioValue, 4))
		}

		checksum, err := result.Checksum()
		if err != nil {
			log.Fatal().Err(err).Msg("could not compute result checksum")
		}
		fmt.Printf("Run ID:   %s\n", result.RunID)
		fmt.Printf("Checksum: %s\n", hex.EncodeToString(checksum[:]))

		report, err := metrics.Compute(result.Snapshots, cfg.RiskFreeRateBps)
		if err != nil {
			log.Fatal().Err(err).Msg("could not compute metrics")
		}

		fmt.Printf("Total Return:      %s\n", fixed.Format(report.TotalReturn, 6))
		fmt.Printf("Annualized Return: %s\n", fixed.Format(report.AnnualizedReturn, 6))
		fmt.Printf("Volatility:        %s\n", fixed.Format(report.Volatility, 6))
		fmt.Printf("Sharpe:            %s\n", fixed.Format(report.Sharpe, 6))
		fmt.Printf("Sortino:           %s\n", fixed.Format(report.Sortino, 6))
		fmt.Printf("Max Drawdown:      %s\n", fixed.Format(report.MaxDrawdown, 6))
	},
}
