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

	"github.com/rs/zerolog/log"

	"github.com/penny-vault/vault-backtest/data"
	"github.com/penny-vault/vault-backtest/vault"
)

// loadSeries fills the store with price and yield history for every
// configured asset. The window is padded by the lookup tolerances so
// nearest-match queries at the range edges can resolve.
func loadSeries(ctx context.Context, store *data.SeriesStore, cfg *vault.Config) error {
	loader := data.NewLoader(store)

	begin := cfg.Start - 90*86_400
	end := cfg.End + 86_400

	for _, asset := range cfg.Assets {
		if _, err := loader.LoadPrices(ctx, vault.PriceSeriesID(asset.AssetID), begin, end); err != nil {
			log.Error().Err(err).Str("AssetID", asset.AssetID).Msg("could not load price history")
			return err
		}

		if asset.YieldGenerating {
			if _, err := loader.LoadYields(ctx, vault.YieldSeriesID(asset.WrapperID), begin, end); err != nil {
				log.Error().Err(err).Str("WrapperID", asset.WrapperID).Msg("could not load yield history")
				return err
			}
		}
	}

	return nil
}
