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
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// guardCommands creates the root command for halt flag operations. Clearing
// the flag is deliberately only reachable from here, never from the pipeline
// or the API.
func guardCommands(app *appInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guard",
		Short: "inspect and clear the pipeline halt flag",
	}

	cmd.AddCommand(guardStatusCommands(app))
	cmd.AddCommand(guardClearCommands(app))

	return cmd
}

func guardStatusCommands(app *appInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "show whether the pipeline is halted",
		Run: func(cmd *cobra.Command, args []string) {
			flag, err := app.magmad.Guarded().Check(context.Background())
			if err != nil {
				log.Printf("Error reading halt flag: %v", err)
				return
			}
			if flag == nil {
				fmt.Println("Pipeline is running. No halt flag set.")
				return
			}
			fmt.Printf("Pipeline HALTED since %s\nReason: %s\n", flag.SetAt.Format("2006-01-02 15:04:05 MST"), flag.Reason)
		},
	}

	return cmd
}

func guardClearCommands(app *appInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "clear the halt flag and let the pipeline run again",
		Run: func(cmd *cobra.Command, args []string) {
			flag, err := app.magmad.Guarded().Check(context.Background())
			if err != nil {
				log.Printf("Error reading halt flag: %v", err)
				return
			}
			if flag == nil {
				fmt.Println("No halt flag set. Nothing to clear.")
				return
			}
			if err := app.magmad.Guarded().Clear(context.Background()); err != nil {
				log.Printf("Error clearing halt flag: %v", err)
				return
			}
			fmt.Printf("Halt flag cleared. Previous reason: %s\n", flag.Reason)
		},
	}

	return cmd
}
