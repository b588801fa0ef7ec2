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
	"embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/hodlmetight/magmad/config"
	"github.com/hodlmetight/magmad/database"
	"github.com/hodlmetight/magmad/internal/amboss"
	"github.com/hodlmetight/magmad/internal/cache"
	"github.com/hodlmetight/magmad/internal/lnd"
	"github.com/hodlmetight/magmad/internal/lndg"
	"github.com/hodlmetight/magmad/internal/mempool"
	redis_db "github.com/hodlmetight/magmad/internal/redis-db"
	"github.com/hodlmetight/magmad/internal/telegram"
	"github.com/hodlmetight/magmad/model"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// MarketplaceClient is the surface of the Magma marketplace the pipeline
// drives: order discovery, accept/reject, and buyer metadata.
type MarketplaceClient interface {
	ListOpenOrders(ctx context.Context) ([]amboss.OpenOrder, error)
	AcceptOrder(ctx context.Context, orderID, paymentRequest string) error
	RejectOrder(ctx context.Context, orderID string) error
	ConfirmChannelPoint(ctx context.Context, orderID, channelPoint string) error
	NodeAlias(ctx context.Context, pubkey string) (string, error)
	NodeAddresses(ctx context.Context, pubkey string) ([]string, error)
}

// NodeClient is the surface of the Lightning node the pipeline drives: peer
// connections, channel opens, invoices and wallet UTXOs.
type NodeClient interface {
	IsPeer(ctx context.Context, pubkey string) (bool, error)
	ConnectPeer(ctx context.Context, pubkey, host string) error
	OpenChannel(ctx context.Context, pubkey string, localFundingSats, satPerVbyte, feeRatePPM int64, minConfs int32) (string, error)
	AddInvoice(ctx context.Context, memo string, valueSats int64, expiry time.Duration) (*lnd.Invoice, error)
	LookupInvoice(ctx context.Context, rHashHex string) (*lnd.Invoice, error)
	PendingChannelPoint(ctx context.Context, fundingTxid string) (string, error)
	OpenChannelPoint(ctx context.Context, fundingTxid string) (string, error)
	ListUnspent(ctx context.Context, minConfs int32) ([]lnd.Utxo, error)
}

// NotesWriter records sale outcomes against the opened channel on an external
// dashboard.
type NotesWriter interface {
	AnnotateChannel(ctx context.Context, fundingTxid, note string) error
}

// Notifier delivers operator notifications and approval prompts.
type Notifier interface {
	SendMessage(ctx context.Context, text string) error
	SendDecisionPrompt(ctx context.Context, text, approveData, rejectData string) error
}

// FeeEstimator reports the current on-chain fee market.
type FeeEstimator interface {
	FastestFee(ctx context.Context) (int64, error)
}

// Magmad is the order pipeline daemon.
type Magmad struct {
	datasource  database.IDataSource
	redis       redis.UniversalClient
	queue       *Queue
	guard       *Guard
	marketplace MarketplaceClient
	node        NodeClient
	notes       NotesWriter
	notifier    Notifier
	fees        FeeEstimator
	aliasCache  cache.Cache
}

// NewMagmad wires the pipeline against the configured external services.
func NewMagmad(db database.IDataSource) (*Magmad, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)})
	if err != nil {
		return nil, err
	}

	newQueue := NewQueue(configuration)

	m := &Magmad{
		datasource:  db,
		redis:       redisClient.Client(),
		queue:       newQueue,
		guard:       NewGuard(db),
		marketplace: amboss.NewClient(configuration.Marketplace.Url, configuration.Marketplace.Token),
		node:        lnd.NewClient(configuration.Node.RestUrl, configuration.Node.MacaroonHex, configuration.Node.TLSSkipVerify),
		fees:        mempool.NewClient(configuration.Pipeline.MempoolFeesApi),
	}

	if configuration.Dashboard.Url != "" {
		m.notes = lndg.NewClient(configuration.Dashboard.Url, configuration.Dashboard.Username, configuration.Dashboard.Password)
	}
	if configuration.Telegram.BotToken != "" {
		m.notifier = telegram.NewClient(configuration.Telegram.ApiUrl, configuration.Telegram.BotToken, configuration.Telegram.ChatID)
	}

	aliasCache, err := cache.NewCache()
	if err != nil {
		logrus.Warnf("alias cache unavailable, buyer lookups will hit the marketplace: %v", err)
	} else {
		m.aliasCache = aliasCache
	}

	return m, nil
}

// Guarded returns the containment guard of the pipeline.
func (m *Magmad) Guarded() *Guard {
	return m.guard
}

// GetOrder returns one order by its marketplace id.
func (m *Magmad) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return m.datasource.GetOrder(ctx, orderID)
}

// ListOrders returns orders page by page, newest first.
func (m *Magmad) ListOrders(ctx context.Context, limit, offset int) ([]*model.Order, error) {
	return m.datasource.ListOrders(ctx, limit, offset)
}

// GetOrderTransitions returns the audit trail of an order, oldest first.
func (m *Magmad) GetOrderTransitions(ctx context.Context, orderID string) ([]model.StatusTransition, error) {
	return m.datasource.GetOrderTransitions(ctx, orderID)
}

// notify sends an operator message, falling back to the log when no notifier
// is configured.
func (m *Magmad) notify(ctx context.Context, text string) {
	if m.notifier == nil {
		logrus.Info(text)
		return
	}
	if err := m.notifier.SendMessage(ctx, text); err != nil {
		logrus.Warnf("operator notification failed: %v", err)
	}
}
