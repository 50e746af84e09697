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

package handler_test

import (
	"fmt"
	"io"
	"net/http/httptest"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/vault-backtest/backtest"
	"github.com/penny-vault/vault-backtest/fixed"
	"github.com/penny-vault/vault-backtest/router"
	"github.com/penny-vault/vault-backtest/vault"
)

func cachedResult() *backtest.Result {
	// alternating +10%/-10% returns over four 365-day periods: total
	// return -1.99%, annualized -0.4975%, downside deviation 10%
	start := int64(1_600_000_000)
	year := int64(365 * 86_400)

	values := []string{"100", "110", "99", "108.9", "98.01"}
	snapshots := make([]*vault.Snapshot, 0, len(values))
	for ii, v := range values {
		wad, ok := fixed.Parse(v)
		Expect(ok).To(BeTrue())
		snapshots = append(snapshots, &vault.Snapshot{
			Timestamp:      start + int64(ii)*year,
			PortfolioValue: wad,
			YieldHarvested: fixed.Zero(),
		})
	}

	result := &backtest.Result{
		RunID:     uuid.New(),
		Start:     start,
		End:       start + 4*year,
		Step:      year,
		Snapshots: snapshots,
	}
	Expect(result.Save()).To(Succeed())
	return result
}

var _ = Describe("Backtest handlers", func() {
	var app *fiber.App

	BeforeEach(func() {
		app = fiber.New()
		router.SetupRoutes(app)
	})

	Describe("When fetching a cached result", func() {
		It("returns the snapshot sequence", func() {
			result := cachedResult()

			resp, err := app.Test(httptest.NewRequest("GET", "/v1/backtest/"+result.RunID.String(), nil))
			Expect(err).To(BeNil())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			raw, err := io.ReadAll(resp.Body)
			Expect(err).To(BeNil())
			loaded := &backtest.Result{}
			Expect(json.Unmarshal(raw, loaded)).To(Succeed())
			Expect(loaded.RunID).To(Equal(result.RunID))
			Expect(loaded.Snapshots).To(HaveLen(5))
		})

		It("returns 404 for an unknown run", func() {
			resp, err := app.Test(httptest.NewRequest("GET", "/v1/backtest/"+uuid.New().String(), nil))
			Expect(err).To(BeNil())
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("When computing metrics for a cached result", func() {
		var metricsPayload = func(url string) map[string]any {
			resp, err := app.Test(httptest.NewRequest("GET", url, nil))
			Expect(err).To(BeNil())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			raw, err := io.ReadAll(resp.Body)
			Expect(err).To(BeNil())
			payload := map[string]any{}
			Expect(json.Unmarshal(raw, &payload)).To(Succeed())
			return payload
		}

		It("defaults the risk-free rate to zero", func() {
			result := cachedResult()
			payload := metricsPayload(fmt.Sprintf("/v1/backtest/%s/metrics", result.RunID))

			Expect(payload["annualizedReturn"]).To(Equal("-0.004975"))
			// sortino = -0.004975 / 0.1
			Expect(payload["sortino"]).To(Equal("-0.049750"))
		})

		It("honors the rf query parameter", func() {
			result := cachedResult()
			payload := metricsPayload(fmt.Sprintf("/v1/backtest/%s/metrics?rf=200", result.RunID))

			// excess return -0.004975 - 0.02, sortino = -0.024975 / 0.1
			Expect(payload["sortino"]).To(Equal("-0.249750"))
		})

		It("rejects a non-numeric rf parameter", func() {
			result := cachedResult()
			resp, err := app.Test(httptest.NewRequest("GET", fmt.Sprintf("/v1/backtest/%s/metrics?rf=lots", result.RunID), nil))
			Expect(err).To(BeNil())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})
})
