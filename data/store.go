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

// Package data implements keyed storage of historical time series. Each
// series maps unix timestamps to non-negative wad-scaled values; lookups
// are either exact or nearest-within-tolerance. A store is safe for
// concurrent readers; simulations sharing one store must not write to it
// mid-run.
package data

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"
)

// SeriesPoint is a single observation in a series
type SeriesPoint struct {
	SeriesID  string
	Timestamp int64
	Value     *big.Int
}

type nearestHit struct {
	value    *big.Int
	actualTs int64
}

// SeriesStore holds price and yield observations keyed by (series id,
// timestamp). Timestamps are additionally kept in a sorted per-series
// index so nearest lookups binary search instead of scanning every delta;
// the tie-break output is identical to the linear scan (smaller delta
// wins, the before candidate wins an exact tie).
type SeriesStore struct {
	locker  sync.RWMutex
	points  map[string]map[int64]*big.Int
	index   map[string][]int64
	nearest *lru.Cache
}

const nearestCacheSize = 16_384

// NewSeriesStore creates an empty store
func NewSeriesStore() *SeriesStore {
	cache, err := lru.New(nearestCacheSize)
	if err != nil {
		log.Panic().Err(err).Msg("could not create nearest-lookup cache")
	}
	return &SeriesStore{
		points:  make(map[string]map[int64]*big.Int),
		index:   make(map[string][]int64),
		nearest: cache,
	}
}

// SetPoint stores value for (seriesID, timestamp), overwriting any
// existing point. Values must be non-negative.
func (store *SeriesStore) SetPoint(seriesID string, timestamp int64, value *big.Int) error {
	if value == nil || value.Sign() < 0 {
		return ErrNegativeValue
	}

	store.locker.Lock()
	defer store.locker.Unlock()

	store.setPointLocked(seriesID, timestamp, value)
	store.nearest.Purge()
	return nil
}

// BatchSetPoints stores a batch of observations for a single series. The
// timestamp and value slices must be the same length.
func (store *SeriesStore) BatchSetPoints(seriesID string, timestamps []int64, values []*big.Int) error {
	if len(timestamps) != len(values) {
		log.Error().Str("SeriesID", seriesID).Int("NumTimestamps", len(timestamps)).Int("NumValues", len(values)).Msg("batch arrays are different lengths")
		return ErrMismatchedLengths
	}

	for _, v := range values {
		if v == nil || v.Sign() < 0 {
			return ErrNegativeValue
		}
	}

	store.locker.Lock()
	defer store.locker.Unlock()

	for ii, ts := range timestamps {
		store.setPointLocked(seriesID, ts, values[ii])
	}
	store.nearest.Purge()
	return nil
}

// GetExact returns the value stored at exactly (seriesID, timestamp)
func (store *SeriesStore) GetExact(seriesID string, timestamp int64) (*big.Int, error) {
	store.locker.RLock()
	defer store.locker.RUnlock()

	series, ok := store.points[seriesID]
	if !ok {
		return nil, ErrPointNotFound
	}
	val, ok := series[timestamp]
	if !ok {
		return nil, ErrPointNotFound
	}
	return new(big.Int).Set(val), nil
}

// GetNearest returns the stored value closest to timestamp within
// maxDelta seconds, along with the timestamp it was actually recorded at.
// An exact point always wins; otherwise the smallest delta wins and when
// the before and after candidates are equidistant the before candidate is
// returned.
func (store *SeriesStore) GetNearest(seriesID string, timestamp int64, maxDelta int64) (*big.Int, int64, error) {
	cacheKey := fmt.Sprintf("%s:%d:%d", seriesID, timestamp, maxDelta)
	if hit, ok := store.nearest.Get(cacheKey); ok {
		cached := hit.(nearestHit)
		return new(big.Int).Set(cached.value), cached.actualTs, nil
	}

	store.locker.RLock()
	defer store.locker.RUnlock()

	series, ok := store.points[seriesID]
	if !ok {
		return nil, 0, ErrDataUnavailable
	}

	if val, ok := series[timestamp]; ok {
		store.nearest.Add(cacheKey, nearestHit{value: new(big.Int).Set(val), actualTs: timestamp})
		return new(big.Int).Set(val), timestamp, nil
	}

	idx := store.index[seriesID]
	// first stored timestamp >= the requested one
	pos := sort.Search(len(idx), func(i int) bool { return idx[i] >= timestamp })

	var bestTs int64
	bestDelta := int64(-1)

	if pos > 0 {
		before := idx[pos-1]
		if delta := timestamp - before; delta <= maxDelta {
			bestTs = before
			bestDelta = delta
		}
	}

	if pos < len(idx) {
		after := idx[pos]
		// before wins an exact tie, so strictly-less only
		if delta := after - timestamp; delta <= maxDelta && (bestDelta < 0 || delta < bestDelta) {
			bestTs = after
			bestDelta = delta
		}
	}

	if bestDelta < 0 {
		return nil, 0, ErrDataUnavailable
	}

	val := new(big.Int).Set(series[bestTs])
	store.nearest.Add(cacheKey, nearestHit{value: new(big.Int).Set(val), actualTs: bestTs})
	return val, bestTs, nil
}

// Len returns the number of points stored for a series
func (store *SeriesStore) Len(seriesID string) int {
	store.locker.RLock()
	defer store.locker.RUnlock()
	return len(store.points[seriesID])
}

// Bounds returns the first and last timestamps stored for a series
func (store *SeriesStore) Bounds(seriesID string) (int64, int64, error) {
	store.locker.RLock()
	defer store.locker.RUnlock()

	idx := store.index[seriesID]
	if len(idx) == 0 {
		return 0, 0, ErrEmptySeries
	}
	return idx[0], idx[len(idx)-1], nil
}

func (store *SeriesStore) setPointLocked(seriesID string, timestamp int64, value *big.Int) {
	series, ok := store.points[seriesID]
	if !ok {
		series = make(map[int64]*big.Int)
		store.points[seriesID] = series
	}

	_, existed := series[timestamp]
	series[timestamp] = new(big.Int).Set(value)
	if existed {
		return
	}

	idx := store.index[seriesID]
	pos := sort.Search(len(idx), func(i int) bool { return idx[i] >= timestamp })
	idx = append(idx, 0)
	copy(idx[pos+1:], idx[pos:])
	idx[pos] = timestamp
	store.index[seriesID] = idx
}
