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

// Package backtest drives a vault simulation across a time range and
// collects the resulting snapshot sequence. A run is all-or-nothing:
// snapshots are committed only when the full loop succeeds, so a failed
// run leaves no partial result behind.
package backtest

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/penny-vault/vault-backtest/observability/opentelemetry"
	"github.com/penny-vault/vault-backtest/vault"
)

var (
	ErrInvalidTimeRange = errors.New("end must be after start")
	ErrInvalidStep      = errors.New("step must be positive")
	ErrSerialize        = errors.New("could not serialize result")
)

// RefreshFunc is invoked before each step; live feeds use it to pull new
// observations into the store. Historical runs leave it nil.
type RefreshFunc func(ctx context.Context, ts int64) error

// Result is the ordered snapshot sequence produced by one run
type Result struct {
	RunID     uuid.UUID         `json:"runId"`
	Start     int64             `json:"start"`
	End       int64             `json:"end"`
	Step      int64             `json:"step"`
	Snapshots []*vault.Snapshot `json:"snapshots"`
}

// Checksum returns the blake3 hash of the serialized snapshot sequence.
// Two runs with identical configuration and store contents produce the
// same checksum.
func (result *Result) Checksum() ([32]byte, error) {
	raw, err := json.Marshal(result.Snapshots)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not serialize snapshots for checksum")
		return [32]byte{}, ErrSerialize
	}
	return blake3.Sum256(raw), nil
}

// Orchestrator owns one simulator instance and its latest result
type Orchestrator struct {
	simulator *vault.Simulator
	refresh   RefreshFunc
	result    *Result
}

// NewOrchestrator wires a simulator to an optional data refresh hook
func NewOrchestrator(simulator *vault.Simulator, refresh RefreshFunc) *Orchestrator {
	return &Orchestrator{
		simulator: simulator,
		refresh:   refresh,
	}
}

// Result returns the snapshot sequence from the most recent successful
// run, or nil if no run has completed
func (orch *Orchestrator) Result() *Result {
	return orch.result
}

// Run replays the simulation from start to end (inclusive) at a fixed
// step, collecting one snapshot per step. The previous result is
// discarded at the start of the run; on any failure no new result is
// retained.
func (orch *Orchestrator) Run(ctx context.Context, start, end, step int64) (*Result, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "backtest.Run")
	defer span.End()

	subLog := log.With().Int64("Start", start).Int64("End", end).Int64("Step", step).Logger()

	if end <= start {
		subLog.Error().Stack().Msg("end must be after start")
		span.SetStatus(codes.Error, "invalid time range")
		return nil, ErrInvalidTimeRange
	}
	if step <= 0 {
		subLog.Error().Stack().Msg("step must be positive")
		span.SetStatus(codes.Error, "invalid step")
		return nil, ErrInvalidStep
	}

	orch.result = nil

	if err := orch.simulator.Initialize(start); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not initialize simulator")
		span.RecordError(err)
		span.SetStatus(codes.Error, "initialize failed")
		return nil, err
	}

	began := time.Now()
	numSteps := (end-start)/step + 1
	snapshots := make([]*vault.Snapshot, 0, numSteps)

	for t := start; t <= end; t += step {
		if orch.refresh != nil {
			if err := orch.refresh(ctx, t); err != nil {
				subLog.Error().Stack().Err(err).Int64("Timestamp", t).Msg("data refresh failed")
				span.RecordError(err)
				span.SetStatus(codes.Error, "refresh failed")
				return nil, err
			}
		}

		snapshot, err := orch.simulator.Step(t)
		if err != nil {
			subLog.Error().Stack().Err(err).Int64("Timestamp", t).Msg("simulation step failed")
			span.RecordError(err)
			span.SetStatus(codes.Error, "step failed")
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}

	result := &Result{
		RunID:     uuid.New(),
		Start:     start,
		End:       end,
		Step:      step,
		Snapshots: snapshots,
	}
	orch.result = result

	span.SetAttributes(attribute.Int("NumSnapshots", len(snapshots)))
	subLog.Info().Str("RunID", result.RunID.String()).Int("NumSnapshots", len(snapshots)).Dur("Elapsed", time.Since(began).Round(time.Millisecond)).Msg("backtest complete")

	return result, nil
}
