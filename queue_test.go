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
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/hodlmetight/magmad/internal/apierror"
	"github.com/hodlmetight/magmad/internal/lnd"
	"github.com/hodlmetight/magmad/model"
)

func expiryTask(t *testing.T, orderID string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(orderID)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	return asynq.NewTask("magmad_invoice_expiry", payload)
}

func TestProcessInvoiceExpiryExpiresUnpaidOrder(t *testing.T) {
	f := newPipelineFixture()

	order := &model.Order{
		OrderID:      "order-1",
		Status:       model.StatusAwaitingPayment,
		PriceSats:    50000,
		InvoiceRHash: "aa11",
	}
	f.datasource.On("GetOrder", mock.Anything, "order-1").Return(order, nil)
	f.node.On("LookupInvoice", mock.Anything, "aa11").Return(&lnd.Invoice{Settled: false}, nil)
	f.datasource.On("TransitionOrder", mock.Anything, "order-1", model.StatusExpired, "invoice expired unpaid").Return(nil)
	f.notifier.On("SendMessage", mock.Anything, mock.Anything).Return(nil)

	err := f.magmad.ProcessInvoiceExpiry(context.Background(), expiryTask(t, "order-1"))
	assert.NoError(t, err)
	f.datasource.AssertCalled(t, "TransitionOrder", mock.Anything, "order-1", model.StatusExpired, "invoice expired unpaid")
}

func TestProcessInvoiceExpirySettlesAtTheWire(t *testing.T) {
	f := newPipelineFixture()

	order := &model.Order{
		OrderID:      "order-1",
		Status:       model.StatusAwaitingPayment,
		PriceSats:    50000,
		InvoiceRHash: "aa11",
	}
	f.datasource.On("GetOrder", mock.Anything, "order-1").Return(order, nil)
	f.node.On("LookupInvoice", mock.Anything, "aa11").Return(&lnd.Invoice{Settled: true}, nil)
	f.datasource.On("TransitionOrder", mock.Anything, "order-1", model.StatusPaid, "invoice settled").Return(nil)
	f.notifier.On("SendMessage", mock.Anything, mock.Anything).Return(nil)

	err := f.magmad.ProcessInvoiceExpiry(context.Background(), expiryTask(t, "order-1"))
	assert.NoError(t, err)
	f.datasource.AssertCalled(t, "TransitionOrder", mock.Anything, "order-1", model.StatusPaid, "invoice settled")
}

func TestProcessInvoiceExpiryIgnoresClosedOrder(t *testing.T) {
	f := newPipelineFixture()

	order := &model.Order{OrderID: "order-1", Status: model.StatusPaid}
	f.datasource.On("GetOrder", mock.Anything, "order-1").Return(order, nil)

	err := f.magmad.ProcessInvoiceExpiry(context.Background(), expiryTask(t, "order-1"))
	assert.NoError(t, err)
	f.datasource.AssertNotCalled(t, "TransitionOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.node.AssertNotCalled(t, "LookupInvoice", mock.Anything, mock.Anything)
}

func TestProcessInvoiceExpiryIgnoresUnknownOrder(t *testing.T) {
	f := newPipelineFixture()

	f.datasource.On("GetOrder", mock.Anything, "order-1").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "order order-1 not found", nil))

	err := f.magmad.ProcessInvoiceExpiry(context.Background(), expiryTask(t, "order-1"))
	assert.NoError(t, err)
}

func TestProcessInvoiceExpiryToleratesRacingTick(t *testing.T) {
	f := newPipelineFixture()

	// the tick closed the order between the lookup and the transition; the
	// lifecycle conflict is benign
	order := &model.Order{
		OrderID:      "order-1",
		Status:       model.StatusAwaitingPayment,
		PriceSats:    50000,
		InvoiceRHash: "aa11",
	}
	f.datasource.On("GetOrder", mock.Anything, "order-1").Return(order, nil)
	f.node.On("LookupInvoice", mock.Anything, "aa11").Return(&lnd.Invoice{Settled: false}, nil)
	f.datasource.On("TransitionOrder", mock.Anything, "order-1", model.StatusExpired, mock.Anything).
		Return(apierror.NewAPIError(apierror.ErrInvalidTransition, "order order-1 cannot move from PAID to EXPIRED", nil))
	f.notifier.On("SendMessage", mock.Anything, mock.Anything).Return(nil)

	err := f.magmad.ProcessInvoiceExpiry(context.Background(), expiryTask(t, "order-1"))
	assert.NoError(t, err)
}

func TestAwaitSettlementClosesExpiredInvoice(t *testing.T) {
	f := newPipelineFixture()

	expired := time.Now().Add(-time.Minute)
	order := &model.Order{
		OrderID:          "order-1",
		Status:           model.StatusAwaitingPayment,
		PriceSats:        50000,
		InvoiceRHash:     "aa11",
		InvoiceExpiresAt: &expired,
	}
	f.node.On("LookupInvoice", mock.Anything, "aa11").Return(&lnd.Invoice{Settled: false}, nil)
	f.datasource.On("TransitionOrder", mock.Anything, "order-1", model.StatusExpired, "invoice expired unpaid").Return(nil)
	f.notifier.On("SendMessage", mock.Anything, mock.Anything).Return(nil)

	err := f.magmad.awaitSettlement(context.Background(), order)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusExpired, order.Status)
}

func TestAwaitSettlementWithoutInvoiceFails(t *testing.T) {
	f := newPipelineFixture()

	order := &model.Order{OrderID: "order-1", Status: model.StatusAwaitingPayment}
	err := f.magmad.awaitSettlement(context.Background(), order)
	assert.Error(t, err)
}

func TestInvoiceMemo(t *testing.T) {
	assert.Equal(t, "Magma-Channel-Sale-Order-ID:order-1", invoiceMemo("order-1"))
}
