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
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/penny-vault/vault-backtest/common"
	"github.com/penny-vault/vault-backtest/data"
	"github.com/penny-vault/vault-backtest/database"
	"github.com/penny-vault/vault-backtest/handler"
	"github.com/penny-vault/vault-backtest/observability/opentelemetry"
	"github.com/penny-vault/vault-backtest/router"
	"github.com/penny-vault/vault-backtest/vault"
)

func init() {
	viper.BindEnv("server.port", "PORT")
	serveCmd.Flags().IntP("port", "p", 3000, "Port to run application server on")
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))

	serveCmd.Flags().String("config", "", "TOML configuration naming the series to keep loaded")
	viper.BindPFlag("server.config", serveCmd.Flags().Lookup("config"))

	viper.SetDefault("cache.redis", false)

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the vault-backtest API server",
	Long:  `Run an HTTP server that executes backtests on demand and serves cached results.`,
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		common.SetupCache()
		log.Info().Msg("initialized logging and cache")

		ctx := context.Background()

		if viper.GetString("otlp.endpoint") != "" {
			shutdown, err := opentelemetry.Setup()
			if err != nil {
				log.Fatal().Err(err).Msg("could not configure tracing")
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("could not shut down tracing")
				}
			}()
		}

		store := data.NewSeriesStore()
		handler.SetStore(store)

		var cfg *vault.Config
		if configFile := viper.GetString("server.config"); configFile != "" {
			var err error
			cfg, err = vault.LoadConfig(configFile)
			if err != nil {
				log.Fatal().Err(err).Str("ConfigFile", configFile).Msg("could not load configuration")
			}
		}

		if viper.GetString("database.url") != "" {
			if err := database.Connect(ctx); err != nil {
				log.Fatal().Err(err).Msg("could not connect to database")
			}
			if cfg != nil {
				if err := loadSeries(ctx, store, cfg); err != nil {
					log.Fatal().Err(err).Msg("could not load historical data")
				}

				// refresh series data periodically so long-running servers
				// pick up newly ingested observations
				scheduler := gocron.NewScheduler(time.UTC)
				scheduler.Every(1).Hours().Do(func() {
					if err := loadSeries(ctx, store, cfg); err != nil {
						log.Error().Err(err).Msg("scheduled series refresh failed")
					}
				})
				scheduler.StartAsync()
			}
		}

		app := fiber.New()

		// shutdown cleanly on interrupt
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		go func() {
			sig := <-c
			fmt.Printf("Received signal: '%s'; shutting down...\n", sig.String())
			if err := app.Shutdown(); err != nil {
				log.Fatal().Err(err).Msg("could not shut down server")
			}
		}()

		app.Use(cors.New(cors.Config{
			AllowHeaders: "*",
			AllowMethods: "GET,POST,HEAD",
		}))

		router.SetupRoutes(app)

		if err := app.Listen(":" + viper.GetString("server.port")); err != nil {
			log.Fatal().Err(err).Msg("server exited with error")
		}
	},
}
