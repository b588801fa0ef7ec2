/*
Copyright 2025 Magmad Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/hodlmetight/magmad"
	"github.com/hodlmetight/magmad/api"
	"github.com/hodlmetight/magmad/config"
	"github.com/hodlmetight/magmad/internal/telegram"
)

/*
serveTLS starts an HTTPS server with TLS enabled using CertMagic for automatic
certificate management. If no domain is specified the server defaults to
localhost.
*/
func serveTLS(r *gin.Engine, conf config.ServerConfig) error {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: "path/to/certmagic/storage"}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(context.Background(), domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}

	log.Printf("Starting HTTPS server on %s\n", conf.Port)
	if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start HTTPS server: %v", err)
	}

	return nil
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	if cfg.SSL {
		return serveTLS(router, cfg)
	}
	log.Printf("Starting ops API on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

/*
startCommands returns the Cobra command that runs the pipeline daemon: the
tick scheduler, the Telegram bot when configured, and the ops API.
*/
func startCommands(app *appInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the order pipeline daemon",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			scheduler, err := magmad.NewScheduler(app.magmad)
			if err != nil {
				log.Fatal(err)
			}

			go func() {
				if err := scheduler.Run(ctx); err != nil && err != context.Canceled {
					log.Printf("scheduler stopped: %v", err)
				}
			}()

			if app.cnf.Telegram.BotToken != "" {
				client := telegram.NewClient(app.cnf.Telegram.ApiUrl, app.cnf.Telegram.BotToken, app.cnf.Telegram.ChatID)
				if err := client.SendMessage(ctx, "🤖 magmad started, watching for channel sale orders."); err != nil {
					log.Printf("startup announcement failed: %v", err)
				}
				bot := magmad.NewBot(client, app.magmad, scheduler)
				go func() {
					if err := bot.Run(ctx); err != nil && err != context.Canceled {
						log.Printf("telegram bot stopped: %v", err)
					}
				}()
			}

			router := api.NewAPI(app.magmad, scheduler).Router()
			if err := startServer(router, app.cnf.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
