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

package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/penny-vault/vault-backtest/handler"
)

// SetupRoutes registers the results API
func SetupRoutes(app *fiber.App) {
	api := app.Group("/v1", logger.New())
	api.Get("/", handler.Ping)

	bt := api.Group("/backtest")
	bt.Post("/", handler.RunBacktest)
	bt.Get("/:id", handler.GetBacktest)
	bt.Get("/:id/metrics", handler.GetBacktestMetrics)
}
