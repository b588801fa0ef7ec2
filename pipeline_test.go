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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/hodlmetight/magmad/config"
	"github.com/hodlmetight/magmad/database/mocks"
	"github.com/hodlmetight/magmad/internal/amboss"
	"github.com/hodlmetight/magmad/model"
)

type pipelineFixture struct {
	magmad      *Magmad
	datasource  *mocks.MockDataSource
	marketplace *MockMarketplace
	node        *MockNode
	notifier    *MockNotifier
	fees        *MockFees
}

func newPipelineFixture() *pipelineFixture {
	config.MockConfig(&config.Configuration{
		Redis:      config.RedisConfig{Dns: "localhost:6379"},
		DataSource: config.DataSourceConfig{Dns: "postgres://postgres:@localhost:5432/magmad?sslmode=disable"},
	})

	f := &pipelineFixture{
		datasource:  new(mocks.MockDataSource),
		marketplace: new(MockMarketplace),
		node:        new(MockNode),
		notifier:    new(MockNotifier),
		fees:        new(MockFees),
	}
	f.magmad = NewMockMagmad(f.datasource, nil, f.marketplace, f.node, f.notifier, f.fees, nil)
	return f
}

func TestRunCycleRefusedWhenHalted(t *testing.T) {
	f := newPipelineFixture()

	f.datasource.On("GetHaltFlag", mock.Anything).Return(&model.HaltFlag{
		Reason: "channel open for order order-1 failed",
		SetAt:  time.Now().Add(-time.Hour),
	}, nil)
	f.notifier.On("SendMessage", mock.Anything, mock.Anything).Return(nil)

	err := f.magmad.RunCycle(context.Background())
	assert.Equal(t, ErrPipelineHalted, err)

	// a halted tick never touches the marketplace or the node
	f.marketplace.AssertNotCalled(t, "ListOpenOrders", mock.Anything)
	f.node.AssertNotCalled(t, "OpenChannel", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.notifier.AssertNumberOfCalls(t, "SendMessage", 1)
}

func TestRunCycleDiscoversNewOrders(t *testing.T) {
	f := newPipelineFixture()

	f.datasource.On("GetHaltFlag", mock.Anything).Return(nil, nil)
	f.marketplace.On("ListOpenOrders", mock.Anything).Return([]amboss.OpenOrder{
		{ID: "order-1", BuyerPubkey: "02abc", CapacitySats: 5000000, PriceSats: 50000},
	}, nil)
	f.datasource.On("UpsertOrder", mock.Anything, mock.MatchedBy(func(o *model.Order) bool {
		return o.OrderID == "order-1" && o.Status == model.StatusDiscovered
	})).Return(true, nil)
	f.marketplace.On("NodeAlias", mock.Anything, "02abc").Return("buyer-node", nil)
	f.datasource.On("SetOrderBuyerAlias", mock.Anything, "order-1", "buyer-node").Return(nil)
	f.notifier.On("SendMessage", mock.Anything, mock.Anything).Return(nil)
	f.datasource.On("ListActiveOrders", mock.Anything).Return([]*model.Order{}, nil)

	err := f.magmad.RunCycle(context.Background())
	assert.NoError(t, err)

	f.datasource.AssertCalled(t, "UpsertOrder", mock.Anything, mock.Anything)
	f.notifier.AssertNumberOfCalls(t, "SendMessage", 1)
}

func TestRunCycleRediscoveryIsSilent(t *testing.T) {
	f := newPipelineFixture()

	f.datasource.On("GetHaltFlag", mock.Anything).Return(nil, nil)
	f.marketplace.On("ListOpenOrders", mock.Anything).Return([]amboss.OpenOrder{
		{ID: "order-1", BuyerPubkey: "02abc", CapacitySats: 5000000, PriceSats: 50000},
	}, nil)
	f.datasource.On("UpsertOrder", mock.Anything, mock.Anything).Return(false, nil)
	f.datasource.On("ListActiveOrders", mock.Anything).Return([]*model.Order{}, nil)

	err := f.magmad.RunCycle(context.Background())
	assert.NoError(t, err)

	f.marketplace.AssertNotCalled(t, "NodeAlias", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestRunCycleHaltsOnOrderFoundMidOpen(t *testing.T) {
	f := newPipelineFixture()

	f.datasource.On("GetHaltFlag", mock.Anything).Return(nil, nil)
	f.marketplace.On("ListOpenOrders", mock.Anything).Return([]amboss.OpenOrder{}, nil)
	f.datasource.On("ListActiveOrders", mock.Anything).Return([]*model.Order{
		{OrderID: "order-7", Status: model.StatusOpening},
	}, nil)
	f.datasource.On("SetHaltFlag", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("SendMessage", mock.Anything, mock.Anything).Return(nil)

	err := f.magmad.RunCycle(context.Background())
	assert.Error(t, err)
	assert.True(t, isFatal(err))

	f.datasource.AssertCalled(t, "SetHaltFlag", mock.Anything, mock.Anything)
}

func TestRunCycleHaltsOnPanic(t *testing.T) {
	f := newPipelineFixture()

	f.datasource.On("GetHaltFlag", mock.Anything).Return(nil, nil)
	f.marketplace.On("ListOpenOrders", mock.Anything).Return([]amboss.OpenOrder{}, nil)
	f.datasource.On("ListActiveOrders", mock.Anything).Run(func(args mock.Arguments) {
		panic("index out of range")
	}).Return(nil, nil)
	f.datasource.On("SetHaltFlag", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("SendMessage", mock.Anything, mock.Anything).Return(nil)

	err := f.magmad.RunCycle(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "panic during pipeline tick")

	f.datasource.AssertCalled(t, "SetHaltFlag", mock.Anything, mock.Anything)
}

func TestRunCycleTransientFailureKeepsGoing(t *testing.T) {
	f := newPipelineFixture()
	config.MockConfig(&config.Configuration{
		Pipeline: config.PipelineConfig{BannedPubkeys: []string{"02bad"}},
	})

	f.datasource.On("GetHaltFlag", mock.Anything).Return(nil, nil)
	f.marketplace.On("ListOpenOrders", mock.Anything).Return([]amboss.OpenOrder{}, nil)
	// the first order hits a fee source outage, the second still gets processed
	f.datasource.On("ListActiveOrders", mock.Anything).Return([]*model.Order{
		{OrderID: "order-1", BuyerPubkey: "02good", Status: model.StatusValidating, PriceSats: 50000},
		{OrderID: "order-2", BuyerPubkey: "02bad", Status: model.StatusValidating, PriceSats: 50000},
	}, nil)
	f.fees.On("FastestFee", mock.Anything).Return(int64(0), assert.AnError)
	f.datasource.On("TransitionOrder", mock.Anything, "order-2", model.StatusRejectedEconomics, mock.Anything).Return(nil)
	f.marketplace.On("RejectOrder", mock.Anything, "order-2").Return(nil)
	f.notifier.On("SendMessage", mock.Anything, mock.Anything).Return(nil)

	err := f.magmad.RunCycle(context.Background())
	assert.NoError(t, err)

	f.datasource.AssertNumberOfCalls(t, "TransitionOrder", 1)
	f.datasource.AssertNotCalled(t, "SetHaltFlag", mock.Anything, mock.Anything)
}

func TestValidateOrderRejectsBannedBuyer(t *testing.T) {
	f := newPipelineFixture()
	config.MockConfig(&config.Configuration{
		Pipeline: config.PipelineConfig{BannedPubkeys: []string{"02bad"}},
	})

	order := &model.Order{OrderID: "order-1", BuyerPubkey: "02bad", Status: model.StatusValidating, PriceSats: 50000}

	f.datasource.On("TransitionOrder", mock.Anything, "order-1", model.StatusRejectedEconomics, mock.Anything).Return(nil)
	f.marketplace.On("RejectOrder", mock.Anything, "order-1").Return(nil)
	f.notifier.On("SendMessage", mock.Anything, mock.Anything).Return(nil)

	err := f.magmad.validateOrder(context.Background(), order)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusRejectedEconomics, order.Status)

	// a banned buyer is rejected before any fee estimation happens
	f.fees.AssertNotCalled(t, "FastestFee", mock.Anything)
}
