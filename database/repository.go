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

package database

import (
	"context"
	"time"

	"github.com/hodlmetight/magmad/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	order // Interface for order-related operations
	guard // Interface for the halt flag
}

// order defines methods for handling channel-sale orders.
type order interface {
	UpsertOrder(ctx context.Context, order *model.Order) (bool, error)                              // Records a discovered order, idempotent on order id; true when newly inserted
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)                             // Retrieves an order by its marketplace id
	ListActiveOrders(ctx context.Context) ([]*model.Order, error)                                   // Retrieves non-terminal orders, oldest first
	ListOrders(ctx context.Context, limit, offset int) ([]*model.Order, error)                      // Retrieves all orders in a paginated manner
	TransitionOrder(ctx context.Context, orderID string, toStatus string, reason string) error      // Moves an order one lifecycle step forward
	SetOrderBuyerAlias(ctx context.Context, orderID string, alias string) error                     // Stores the buyer alias fetched from the marketplace
	SetOrderFeeEstimate(ctx context.Context, orderID string, feeSats int64) error                   // Stores the estimated on-chain fee for the open
	SetOrderInvoice(ctx context.Context, orderID, rHash, paymentRequest string, exp time.Time) error // Stores the settlement invoice details
	SetOrderFunding(ctx context.Context, orderID, fundingTxID, channelPoint string) error           // Stores the funding transaction and channel point
	GetOrderTransitions(ctx context.Context, orderID string) ([]model.StatusTransition, error)      // Retrieves the audit trail of an order
}

// guard defines methods for the persisted halt flag. The flag survives
// restarts; only an explicit clear removes it.
type guard interface {
	GetHaltFlag(ctx context.Context) (*model.HaltFlag, error) // Retrieves the halt flag, nil when the pipeline is clear
	SetHaltFlag(ctx context.Context, reason string) error     // Sets the halt flag, keeping the first reason if already set
	ClearHaltFlag(ctx context.Context) error                  // Removes the halt flag
}
