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

import "errors"

var (
	ErrMismatchedLengths = errors.New("timestamp and value arrays must be the same length")
	ErrPointNotFound     = errors.New("no point stored at the requested timestamp")
	ErrDataUnavailable   = errors.New("no point found within the allowed tolerance")
	ErrNegativeValue     = errors.New("series values must be non-negative")
	ErrInvalidTimeRange  = errors.New("start must be before end")
	ErrEmptySeries       = errors.New("series contains no points")
)
