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

package data

import (
	"context"
	"math/big"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/penny-vault/vault-backtest/database"
	"github.com/penny-vault/vault-backtest/observability/opentelemetry"
)

// Loader populates a SeriesStore from the historical-data tables. The
// loader is an ingestion collaborator: it runs before a backtest and
// never during one.
type Loader struct {
	store *SeriesStore
}

// NewLoader creates a loader that writes into store
func NewLoader(store *SeriesStore) *Loader {
	return &Loader{store: store}
}

// LoadPrices loads wad-scaled closing prices for seriesID between begin
// and end (unix seconds, inclusive) from the eod_prices table.
func (loader *Loader) LoadPrices(ctx context.Context, seriesID string, begin, end int64) (int, error) {
	return loader.load(ctx, seriesID, begin, end,
		"SELECT event_time, value FROM eod_prices WHERE series_id=$1 AND event_time BETWEEN $2 AND $3 ORDER BY event_time")
}

// LoadYields loads annualized yield rates, stored in basis points, for
// seriesID between begin and end from the yield_rates table.
func (loader *Loader) LoadYields(ctx context.Context, seriesID string, begin, end int64) (int, error) {
	return loader.load(ctx, seriesID, begin, end,
		"SELECT event_time, value FROM yield_rates WHERE series_id=$1 AND event_time BETWEEN $2 AND $3 ORDER BY event_time")
}

func (loader *Loader) load(ctx context.Context, seriesID string, begin, end int64, query string) (int, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "loader.load")
	defer span.End()

	subLog := log.With().Str("SeriesID", seriesID).Int64("Begin", begin).Int64("End", end).Logger()

	if end <= begin {
		subLog.Warn().Stack().Msg("end before begin in call to load")
		return 0, ErrInvalidTimeRange
	}

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not get database transaction")
		return 0, err
	}

	rows, err := trx.Query(ctx, query, seriesID, begin, end)
	if err != nil {
		span.RecordError(err)
		subLog.Error().Stack().Err(err).Msg("could not query series points")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return 0, err
	}

	timestamps := make([]int64, 0, 252)
	values := make([]*big.Int, 0, 252)
	for rows.Next() {
		var eventTime int64
		var raw string
		if err := rows.Scan(&eventTime, &raw); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not scan series point")
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return 0, err
		}

		val, ok := new(big.Int).SetString(raw, 10)
		if !ok || val.Sign() < 0 {
			subLog.Error().Stack().Str("Value", raw).Int64("EventTime", eventTime).Msg("invalid series value")
			if err := trx.Rollback(ctx); err != nil {
				subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
			}
			return 0, ErrNegativeValue
		}

		timestamps = append(timestamps, eventTime)
		values = append(values, val)
	}

	if err := rows.Err(); err != nil {
		subLog.Error().Stack().Err(err).Msg("series query failed mid-iteration")
		if err := trx.Rollback(ctx); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not rollback transaction")
		}
		return 0, err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
		return 0, err
	}

	if err := loader.store.BatchSetPoints(seriesID, timestamps, values); err != nil {
		return 0, err
	}

	subLog.Debug().Int("NumPoints", len(timestamps)).Msg("loaded series points")
	return len(timestamps), nil
}
