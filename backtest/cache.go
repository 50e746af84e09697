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

package backtest

import (
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/penny-vault/vault-backtest/common"
)

// Save serializes the result and stores it in the shared cache under its
// run ID so the results API can serve it later
func (result *Result) Save() error {
	raw, err := json.Marshal(result)
	if err != nil {
		log.Error().Stack().Err(err).Str("RunID", result.RunID.String()).Msg("could not serialize result")
		return ErrSerialize
	}

	return common.CacheSet(cacheKey(result.RunID.String()), raw)
}

// Load retrieves a previously saved result by run ID
func Load(runID string) (*Result, error) {
	raw, err := common.CacheGet(cacheKey(runID))
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if err := json.Unmarshal(raw, result); err != nil {
		log.Error().Stack().Err(err).Str("RunID", runID).Msg("could not deserialize result")
		return nil, err
	}
	return result, nil
}

func cacheKey(runID string) string {
	return "backtest:" + runID
}
