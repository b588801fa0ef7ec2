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
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"

	"github.com/hodlmetight/magmad/database"
	"github.com/hodlmetight/magmad/internal/amboss"
	"github.com/hodlmetight/magmad/internal/lnd"
)

// NewMockMagmad wires the pipeline against explicit collaborators so tests can
// drive it without a live marketplace, node or queue.
func NewMockMagmad(db database.IDataSource, redisClient redis.UniversalClient, marketplace MarketplaceClient, node NodeClient, notifier Notifier, fees FeeEstimator, notes NotesWriter) *Magmad {
	return &Magmad{
		datasource:  db,
		redis:       redisClient,
		guard:       NewGuard(db),
		marketplace: marketplace,
		node:        node,
		notifier:    notifier,
		fees:        fees,
		notes:       notes,
	}
}

// MockMarketplace is a mock implementation of MarketplaceClient.
type MockMarketplace struct {
	mock.Mock
}

func (m *MockMarketplace) ListOpenOrders(ctx context.Context) ([]amboss.OpenOrder, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]amboss.OpenOrder), args.Error(1)
}

func (m *MockMarketplace) AcceptOrder(ctx context.Context, orderID, paymentRequest string) error {
	args := m.Called(ctx, orderID, paymentRequest)
	return args.Error(0)
}

func (m *MockMarketplace) RejectOrder(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *MockMarketplace) ConfirmChannelPoint(ctx context.Context, orderID, channelPoint string) error {
	args := m.Called(ctx, orderID, channelPoint)
	return args.Error(0)
}

func (m *MockMarketplace) NodeAlias(ctx context.Context, pubkey string) (string, error) {
	args := m.Called(ctx, pubkey)
	return args.String(0), args.Error(1)
}

func (m *MockMarketplace) NodeAddresses(ctx context.Context, pubkey string) ([]string, error) {
	args := m.Called(ctx, pubkey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockNode is a mock implementation of NodeClient.
type MockNode struct {
	mock.Mock
}

func (m *MockNode) IsPeer(ctx context.Context, pubkey string) (bool, error) {
	args := m.Called(ctx, pubkey)
	return args.Bool(0), args.Error(1)
}

func (m *MockNode) ConnectPeer(ctx context.Context, pubkey, host string) error {
	args := m.Called(ctx, pubkey, host)
	return args.Error(0)
}

func (m *MockNode) OpenChannel(ctx context.Context, pubkey string, localFundingSats, satPerVbyte, feeRatePPM int64, minConfs int32) (string, error) {
	args := m.Called(ctx, pubkey, localFundingSats, satPerVbyte, feeRatePPM, minConfs)
	return args.String(0), args.Error(1)
}

func (m *MockNode) AddInvoice(ctx context.Context, memo string, valueSats int64, expiry time.Duration) (*lnd.Invoice, error) {
	args := m.Called(ctx, memo, valueSats, expiry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lnd.Invoice), args.Error(1)
}

func (m *MockNode) LookupInvoice(ctx context.Context, rHashHex string) (*lnd.Invoice, error) {
	args := m.Called(ctx, rHashHex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lnd.Invoice), args.Error(1)
}

func (m *MockNode) PendingChannelPoint(ctx context.Context, fundingTxid string) (string, error) {
	args := m.Called(ctx, fundingTxid)
	return args.String(0), args.Error(1)
}

func (m *MockNode) OpenChannelPoint(ctx context.Context, fundingTxid string) (string, error) {
	args := m.Called(ctx, fundingTxid)
	return args.String(0), args.Error(1)
}

func (m *MockNode) ListUnspent(ctx context.Context, minConfs int32) ([]lnd.Utxo, error) {
	args := m.Called(ctx, minConfs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]lnd.Utxo), args.Error(1)
}

// MockNotifier is a mock implementation of Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendMessage(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

func (m *MockNotifier) SendDecisionPrompt(ctx context.Context, text, approveData, rejectData string) error {
	args := m.Called(ctx, text, approveData, rejectData)
	return args.Error(0)
}

// MockNotes is a mock implementation of NotesWriter.
type MockNotes struct {
	mock.Mock
}

func (m *MockNotes) AnnotateChannel(ctx context.Context, fundingTxid, note string) error {
	args := m.Called(ctx, fundingTxid, note)
	return args.Error(0)
}

// MockFees is a mock implementation of FeeEstimator.
type MockFees struct {
	mock.Mock
}

func (m *MockFees) FastestFee(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
