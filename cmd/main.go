/*
Copyright 2024 Paymux Authors.

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

	"github.com/paymux/paymux"
	"github.com/paymux/paymux/config"
	"github.com/paymux/paymux/database"
	"github.com/paymux/paymux/internal/notification"
)

// Paymux represents the CLI application, encapsulating the root Cobra command.
type Paymux struct {
	cmd *cobra.Command
}

// paymuxInstance holds the runtime inbox instance and its configuration,
// shared by the subcommands.
type paymuxInstance struct {
	paymux *paymux.Paymux
	cnf    *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun sets up the configuration and initializes the inbox instance before
// running any command.
func preRun(app *paymuxInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("paymux.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newPaymux, err := setupPaymux(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.paymux = newPaymux
		app.cnf = cnf

		return nil
	}
}

// setupPaymux creates and initializes a new inbox instance from the provided
// configuration.
func setupPaymux(cfg *config.Configuration) (*paymux.Paymux, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return &paymux.Paymux{}, fmt.Errorf("error getting datasource: %v", err)
	}

	newPaymux, err := paymux.NewPaymux(db)
	if err != nil {
		return &paymux.Paymux{}, fmt.Errorf("error creating paymux: %v", err)
	}
	return newPaymux, nil
}

// NewCLI creates the command-line interface for the Paymux application.
func NewCLI() *Paymux {
	var configFile string
	p := &paymuxInstance{}

	var rootCmd = &cobra.Command{
		Use:   "paymux",
		Short: "Webhook inbox for payment providers",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./paymux.json", "Configuration file for paymux")

	rootCmd.PersistentPreRunE = preRun(p)

	rootCmd.AddCommand(serverCommands(p))
	rootCmd.AddCommand(workerCommands(p))
	rootCmd.AddCommand(sweepCommands(p))
	rootCmd.AddCommand(migrateCommands(p))

	return &Paymux{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (w Paymux) executeCLI() {
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
