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
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// orderCommands creates the root command for inspecting channel sale orders.
func orderCommands(app *appInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "inspect channel sale orders",
	}

	cmd.AddCommand(ordersListCommands(app))
	cmd.AddCommand(ordersViewCommands(app))

	return cmd
}

func ordersListCommands(app *appInstance) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "list orders, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			orders, err := app.magmad.ListOrders(context.Background(), limit, offset)
			if err != nil {
				log.Printf("Error listing orders: %v", err)
				return
			}
			if len(orders) == 0 {
				fmt.Println("No orders found.")
				return
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ORDER ID\tSTATUS\tCAPACITY\tPRICE\tBUYER\tCREATED")
			for _, order := range orders {
				buyer := order.BuyerAlias
				if buyer == "" {
					buyer = order.BuyerPubkey
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
					order.OrderID, order.Status, order.CapacitySats, order.PriceSats,
					buyer, order.CreatedAt.Format("2006-01-02 15:04"))
			}
			w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of orders to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of orders to skip")

	return cmd
}

func ordersViewCommands(app *appInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view [order-id]",
		Short: "show one order and its status history",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			order, err := app.magmad.GetOrder(ctx, args[0])
			if err != nil {
				log.Printf("Error fetching order: %v", err)
				return
			}

			body, err := order.ToJSON()
			if err != nil {
				log.Printf("Error encoding order: %v", err)
				return
			}
			fmt.Println(string(body))

			transitions, err := app.magmad.GetOrderTransitions(ctx, order.OrderID)
			if err != nil {
				log.Printf("Error fetching order history: %v", err)
				return
			}
			if len(transitions) == 0 {
				return
			}

			fmt.Println("\nHistory:")
			for _, t := range transitions {
				line := fmt.Sprintf("  %s  %s -> %s", t.CreatedAt.Format("2006-01-02 15:04:05"), t.FromStatus, t.ToStatus)
				if t.Reason != "" {
					line += fmt.Sprintf("  (%s)", t.Reason)
				}
				fmt.Println(line)
			}
		},
	}

	return cmd
}
