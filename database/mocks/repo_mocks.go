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
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/hodlmetight/magmad/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Order methods

func (m *MockDataSource) UpsertOrder(ctx context.Context, order *model.Order) (bool, error) {
	args := m.Called(ctx, order)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockDataSource) ListActiveOrders(ctx context.Context) ([]*model.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Order), args.Error(1)
}

func (m *MockDataSource) ListOrders(ctx context.Context, limit, offset int) ([]*model.Order, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Order), args.Error(1)
}

func (m *MockDataSource) TransitionOrder(ctx context.Context, orderID string, toStatus string, reason string) error {
	args := m.Called(ctx, orderID, toStatus, reason)
	return args.Error(0)
}

func (m *MockDataSource) SetOrderBuyerAlias(ctx context.Context, orderID string, alias string) error {
	args := m.Called(ctx, orderID, alias)
	return args.Error(0)
}

func (m *MockDataSource) SetOrderFeeEstimate(ctx context.Context, orderID string, feeSats int64) error {
	args := m.Called(ctx, orderID, feeSats)
	return args.Error(0)
}

func (m *MockDataSource) SetOrderInvoice(ctx context.Context, orderID, rHash, paymentRequest string, exp time.Time) error {
	args := m.Called(ctx, orderID, rHash, paymentRequest, exp)
	return args.Error(0)
}

func (m *MockDataSource) SetOrderFunding(ctx context.Context, orderID, fundingTxID, channelPoint string) error {
	args := m.Called(ctx, orderID, fundingTxID, channelPoint)
	return args.Error(0)
}

func (m *MockDataSource) GetOrderTransitions(ctx context.Context, orderID string) ([]model.StatusTransition, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StatusTransition), args.Error(1)
}

// Halt flag methods

func (m *MockDataSource) GetHaltFlag(ctx context.Context) (*model.HaltFlag, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.HaltFlag), args.Error(1)
}

func (m *MockDataSource) SetHaltFlag(ctx context.Context, reason string) error {
	args := m.Called(ctx, reason)
	return args.Error(0)
}

func (m *MockDataSource) ClearHaltFlag(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
