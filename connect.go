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
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hodlmetight/magmad/config"
	"github.com/hodlmetight/magmad/model"
)

// connectBuyer establishes a peer connection to the buyer node within the
// bounded retry budget. Individual attempts failing is expected; only the
// exhaustion of the whole budget closes the order, and even that is a normal
// outcome rather than a fault.
func (m *Magmad) connectBuyer(ctx context.Context, order *model.Order) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	limits := cfg.Pipeline.EconomicLimits()
	attempt := 0

	operation := func() error {
		attempt++
		connected, err := m.tryConnect(ctx, order)
		if err != nil {
			logrus.Infof("connect attempt %d/%d for order %s failed: %v", attempt, limits.MaxConnectRetries, order.OrderID, err)
			return err
		}
		if !connected {
			err := errors.Errorf("buyer %s not reachable", order.BuyerPubkey)
			logrus.Infof("connect attempt %d/%d for order %s failed: %v", attempt, limits.MaxConnectRetries, order.OrderID, err)
			return err
		}
		return nil
	}

	delay := time.Duration(limits.ConnectRetryDelaySeconds) * time.Second
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(limits.MaxConnectRetries-1)),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		return m.rejectOrder(ctx, order, model.StatusConnectFailed,
			fmt.Sprintf("buyer unreachable after %d attempts: %v", attempt, err))
	}

	if err := m.transition(ctx, order, model.StatusConnected, ""); err != nil {
		return err
	}
	m.notify(ctx, fmt.Sprintf("🔗 Connected to %s for order %s", buyerLabel(order), order.OrderID))
	return nil
}

// tryConnect makes one connection attempt, preferring clearnet addresses over
// Tor ones.
func (m *Magmad) tryConnect(ctx context.Context, order *model.Order) (bool, error) {
	connected, err := m.node.IsPeer(ctx, order.BuyerPubkey)
	if err != nil {
		return false, err
	}
	if connected {
		return true, nil
	}

	addresses, err := m.marketplace.NodeAddresses(ctx, order.BuyerPubkey)
	if err != nil {
		return false, err
	}
	if len(addresses) == 0 {
		return false, errors.Errorf("buyer %s advertises no addresses", order.BuyerPubkey)
	}

	for _, host := range clearnetFirst(addresses) {
		if err := m.node.ConnectPeer(ctx, order.BuyerPubkey, host); err != nil {
			logrus.Debugf("connect to %s via %s failed: %v", order.BuyerPubkey, host, err)
			continue
		}
		return true, nil
	}

	// the node may report "already connected" as an error on every address
	return m.node.IsPeer(ctx, order.BuyerPubkey)
}

// clearnetFirst orders addresses so clearnet hosts are tried before Tor ones.
// The relative order within each group is kept.
func clearnetFirst(addresses []string) []string {
	sorted := make([]string, len(addresses))
	copy(sorted, addresses)
	sort.SliceStable(sorted, func(i, j int) bool {
		return !isTor(sorted[i]) && isTor(sorted[j])
	})
	return sorted
}

func isTor(address string) bool {
	host := address
	if idx := strings.LastIndex(address, ":"); idx > 0 {
		host = address[:idx]
	}
	return strings.HasSuffix(host, ".onion")
}
