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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/hodlmetight/magmad/config"
	"github.com/hodlmetight/magmad/database/mocks"
	"github.com/hodlmetight/magmad/model"
)

func newConnectFixture(maxRetries int) *pipelineFixture {
	config.MockConfig(&config.Configuration{
		Pipeline: config.PipelineConfig{
			MaxConnectRetries:        maxRetries,
			ConnectRetryDelaySeconds: 1,
		},
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

func TestConnectBuyerSucceedsFirstAttempt(t *testing.T) {
	f := newConnectFixture(3)

	order := &model.Order{OrderID: "order-1", BuyerPubkey: "02abc", Status: model.StatusConnecting}
	f.node.On("IsPeer", mock.Anything, "02abc").Return(false, nil).Once()
	f.marketplace.On("NodeAddresses", mock.Anything, "02abc").Return([]string{"1.2.3.4:9735"}, nil)
	f.node.On("ConnectPeer", mock.Anything, "02abc", "1.2.3.4:9735").Return(nil)
	f.datasource.On("TransitionOrder", mock.Anything, "order-1", model.StatusConnected, "").Return(nil)
	f.notifier.On("SendMessage", mock.Anything, mock.Anything).Return(nil)

	err := f.magmad.connectBuyer(context.Background(), order)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusConnected, order.Status)
	f.node.AssertNumberOfCalls(t, "ConnectPeer", 1)
}

func TestConnectBuyerShortCircuitsWhenAlreadyPeer(t *testing.T) {
	f := newConnectFixture(3)

	order := &model.Order{OrderID: "order-1", BuyerPubkey: "02abc", Status: model.StatusConnecting}
	f.node.On("IsPeer", mock.Anything, "02abc").Return(true, nil)
	f.datasource.On("TransitionOrder", mock.Anything, "order-1", model.StatusConnected, "").Return(nil)
	f.notifier.On("SendMessage", mock.Anything, mock.Anything).Return(nil)

	err := f.magmad.connectBuyer(context.Background(), order)
	assert.NoError(t, err)
	f.marketplace.AssertNotCalled(t, "NodeAddresses", mock.Anything, mock.Anything)
	f.node.AssertNotCalled(t, "ConnectPeer", mock.Anything, mock.Anything, mock.Anything)
}

func TestConnectBuyerExhaustsRetryBudget(t *testing.T) {
	f := newConnectFixture(3)

	order := &model.Order{OrderID: "order-1", BuyerPubkey: "02abc", Status: model.StatusConnecting}
	f.node.On("IsPeer", mock.Anything, "02abc").Return(false, nil)
	f.marketplace.On("NodeAddresses", mock.Anything, "02abc").Return([]string{"1.2.3.4:9735"}, nil)
	f.node.On("ConnectPeer", mock.Anything, "02abc", "1.2.3.4:9735").Return(assert.AnError)
	f.datasource.On("TransitionOrder", mock.Anything, "order-1", model.StatusConnectFailed, mock.Anything).Return(nil)
	f.marketplace.On("RejectOrder", mock.Anything, "order-1").Return(nil)
	f.notifier.On("SendMessage", mock.Anything, mock.Anything).Return(nil)

	err := f.magmad.connectBuyer(context.Background(), order)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusConnectFailed, order.Status)

	// the budget is the total attempt count, not the retry count
	f.node.AssertNumberOfCalls(t, "ConnectPeer", 3)
	f.marketplace.AssertCalled(t, "RejectOrder", mock.Anything, "order-1")
}

func TestTryConnectRechecksPeerAfterFailures(t *testing.T) {
	f := newConnectFixture(3)

	// some nodes answer "already connected" as an error on every address;
	// the re-check turns that into a success
	order := &model.Order{OrderID: "order-1", BuyerPubkey: "02abc"}
	f.node.On("IsPeer", mock.Anything, "02abc").Return(false, nil).Once()
	f.marketplace.On("NodeAddresses", mock.Anything, "02abc").Return([]string{"1.2.3.4:9735"}, nil)
	f.node.On("ConnectPeer", mock.Anything, "02abc", "1.2.3.4:9735").Return(assert.AnError)
	f.node.On("IsPeer", mock.Anything, "02abc").Return(true, nil).Once()

	connected, err := f.magmad.tryConnect(context.Background(), order)
	assert.NoError(t, err)
	assert.True(t, connected)
}

func TestClearnetFirst(t *testing.T) {
	addresses := []string{
		"abcdefghijklmnop.onion:9735",
		"1.2.3.4:9735",
		"qrstuvwxyz234567.onion:9735",
		"node.example.com:9735",
	}

	ordered := clearnetFirst(addresses)
	assert.Equal(t, []string{
		"1.2.3.4:9735",
		"node.example.com:9735",
		"abcdefghijklmnop.onion:9735",
		"qrstuvwxyz234567.onion:9735",
	}, ordered)

	// input slice untouched
	assert.Equal(t, "abcdefghijklmnop.onion:9735", addresses[0])
}

func TestIsTor(t *testing.T) {
	assert.True(t, isTor("abcdefghijklmnop.onion:9735"))
	assert.True(t, isTor("abcdefghijklmnop.onion"))
	assert.False(t, isTor("1.2.3.4:9735"))
	assert.False(t, isTor("node.example.com:9735"))
}
