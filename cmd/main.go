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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hodlmetight/magmad"
	"github.com/hodlmetight/magmad/config"
	"github.com/hodlmetight/magmad/database"
	"github.com/hodlmetight/magmad/internal/notification"
)

// CLI wraps the root Cobra command.
type CLI struct {
	cmd *cobra.Command
}

// appInstance holds the pipeline instance and configuration shared by the
// subcommands.
type appInstance struct {
	magmad *magmad.Magmad
	cnf    *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and wires the pipeline before any command
// runs.
func preRun(app *appInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("magmad.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newMagmad, err := setupMagmad(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.magmad = newMagmad
		app.cnf = cnf

		return nil
	}
}

func setupMagmad(cfg *config.Configuration) (*magmad.Magmad, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newMagmad, err := magmad.NewMagmad(db)
	if err != nil {
		return nil, fmt.Errorf("error creating magmad: %v", err)
	}
	return newMagmad, nil
}

// NewCLI builds the command tree: start, workers, orders, guard and migrate.
func NewCLI() *CLI {
	var configFile string
	app := &appInstance{}

	var rootCmd = &cobra.Command{
		Use:   "magmad",
		Short: "Marketplace channel sale pipeline",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./magmad.json", "Configuration file for the pipeline")

	rootCmd.PersistentPreRunE = preRun(app)

	rootCmd.AddCommand(startCommands(app))
	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(orderCommands(app))
	rootCmd.AddCommand(guardCommands(app))
	rootCmd.AddCommand(migrateCommands(app))

	return &CLI{cmd: rootCmd}
}

func (w CLI) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
