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

package magmad

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hodlmetight/magmad/config"
	"github.com/hodlmetight/magmad/model"
)

// invoiceMemo ties the invoice on the node back to the marketplace order.
func invoiceMemo(orderID string) string {
	return "Magma-Channel-Sale-Order-ID:" + orderID
}

// issueInvoice creates the settlement invoice for an opened channel, attaches
// it to the marketplace order, and moves the order into its payment wait.
func (m *Magmad) issueInvoice(ctx context.Context, order *model.Order) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	invoice, err := m.node.AddInvoice(ctx, invoiceMemo(order.OrderID), order.PriceSats, cfg.Pipeline.InvoiceExpiry())
	if err != nil {
		return errors.Wrapf(err, "failed to create settlement invoice for order %s", order.OrderID)
	}

	expiresAt := time.Now().Add(cfg.Pipeline.InvoiceExpiry())
	if err := m.datasource.SetOrderInvoice(ctx, order.OrderID, invoice.RHashHex, invoice.PaymentRequest, expiresAt); err != nil {
		return err
	}
	order.InvoiceRHash = invoice.RHashHex
	order.PaymentRequest = invoice.PaymentRequest
	order.InvoiceExpiresAt = &expiresAt

	if err := m.marketplace.AcceptOrder(ctx, order.OrderID, invoice.PaymentRequest); err != nil {
		return errors.Wrapf(err, "failed to attach invoice to marketplace order %s", order.OrderID)
	}

	if err := m.transition(ctx, order, model.StatusAwaitingPayment, ""); err != nil {
		return err
	}

	// durable safety net: even if every later tick misses the expiry, the
	// delayed task closes the order
	if m.queue != nil {
		if err := m.queue.queueInvoiceExpiry(order.OrderID, expiresAt); err != nil {
			logrus.Warnf("failed to queue invoice expiry for order %s: %v", order.OrderID, err)
		}
	}

	m.notify(ctx, fmt.Sprintf("🧾 Invoice for order %s issued: %d sats, expires %s",
		order.OrderID, order.PriceSats, expiresAt.Format(time.RFC822)))

	return m.awaitSettlement(ctx, order)
}

// awaitSettlement polls the invoice for the active poll window of this tick.
// A settlement closes the sale; an expiry closes the order; anything else
// leaves it waiting for the next tick or the expiry task.
func (m *Magmad) awaitSettlement(ctx context.Context, order *model.Order) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	if order.InvoiceRHash == "" {
		return errors.Errorf("order %s awaits payment but has no invoice", order.OrderID)
	}

	interval := time.Duration(cfg.Pipeline.PaymentPollIntervalSeconds) * time.Second
	window := time.Now().Add(time.Duration(cfg.Pipeline.PaymentPollWindowMinutes) * time.Minute)

	for {
		invoice, err := m.node.LookupInvoice(ctx, order.InvoiceRHash)
		if err != nil {
			return err
		}

		if invoice.Settled {
			return m.settleOrder(ctx, order)
		}

		if order.InvoiceExpiresAt != nil && time.Now().After(*order.InvoiceExpiresAt) {
			return m.expireOrder(ctx, order)
		}

		if time.Now().After(window) {
			// not settled within this tick's window, check again next tick
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// settleOrder closes a fully paid sale.
func (m *Magmad) settleOrder(ctx context.Context, order *model.Order) error {
	if err := m.transition(ctx, order, model.StatusPaid, "invoice settled"); err != nil {
		return ignoreBenignTransition(err)
	}

	m.notify(ctx, fmt.Sprintf("💰 Order %s paid: %d sats received for channel %s",
		order.OrderID, order.PriceSats, order.ChannelPoint))

	m.recordOutcomeNote(ctx, order)
	return nil
}

// expireOrder closes an order whose invoice ran out unpaid. The channel stays
// open; recovering the capacity is the operator's call.
func (m *Magmad) expireOrder(ctx context.Context, order *model.Order) error {
	if err := m.transition(ctx, order, model.StatusExpired, "invoice expired unpaid"); err != nil {
		return ignoreBenignTransition(err)
	}

	m.notify(ctx, fmt.Sprintf("⌛ Order %s expired: invoice for %d sats was never paid. Channel %s remains open.",
		order.OrderID, order.PriceSats, order.ChannelPoint))

	m.recordOutcomeNote(ctx, order)
	return nil
}
