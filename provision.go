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
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hodlmetight/magmad/config"
	"github.com/hodlmetight/magmad/internal/lnd"
	"github.com/hodlmetight/magmad/model"
)

// Funding transaction weight model: P2WPKH inputs, two outputs (funding plus
// change), and the fixed transaction overhead, all in vbytes.
var (
	vbytesPerInput  = decimal.NewFromFloat(57.5)
	vbytesPerOutput = decimal.NewFromInt(43)
	vbytesOverhead  = decimal.NewFromFloat(10.5)
)

// estimateOpeningFee prices the funding transaction for a channel of the
// given capacity at the current next-block fee rate. Wallet UTXOs are
// selected largest first, matching how the node funds the open.
func (m *Magmad) estimateOpeningFee(ctx context.Context, capacitySats int64) (int64, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return 0, err
	}

	satPerVbyte, err := m.fees.FastestFee(ctx)
	if err != nil {
		return 0, err
	}

	utxos, err := m.node.ListUnspent(ctx, cfg.Node.MinConfs)
	if err != nil {
		return 0, err
	}

	inputs, err := inputsNeeded(utxos, capacitySats)
	if err != nil {
		return 0, err
	}

	vbytes := vbytesPerInput.Mul(decimal.NewFromInt(int64(inputs))).
		Add(vbytesPerOutput.Mul(decimal.NewFromInt(2))).
		Add(vbytesOverhead)

	fee := vbytes.Mul(decimal.NewFromInt(satPerVbyte)).Ceil()
	return fee.IntPart(), nil
}

// inputsNeeded counts how many of the largest UTXOs it takes to cover the
// funding amount.
func inputsNeeded(utxos []lnd.Utxo, capacitySats int64) (int, error) {
	sorted := make([]lnd.Utxo, len(utxos))
	copy(sorted, utxos)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].AmountSat > sorted[j].AmountSat
	})

	var total int64
	for i, utxo := range sorted {
		total += utxo.AmountSat
		if total >= capacitySats {
			return i + 1, nil
		}
	}

	return 0, errors.Errorf("wallet holds %d sats confirmed, cannot fund %d sat channel", total, capacitySats)
}

// openChannel performs the one-shot channel open. Connectivity was already
// proven, so a failure here is systemic: the pipeline halts rather than risk
// a second funding attempt.
func (m *Magmad) openChannel(ctx context.Context, order *model.Order) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	satPerVbyte, err := m.fees.FastestFee(ctx)
	if err != nil {
		return fatal(errors.Wrapf(err, "no fee rate for opening order %s", order.OrderID))
	}

	fundingTxid, err := m.node.OpenChannel(ctx, order.BuyerPubkey, order.CapacitySats, satPerVbyte, cfg.Pipeline.ChannelFeeRatePPM, cfg.Node.MinConfs)
	if err != nil {
		if transitionErr := m.transition(ctx, order, model.StatusOpenFailed, err.Error()); transitionErr != nil {
			logrus.Errorf("failed to record open failure for order %s: %v", order.OrderID, transitionErr)
		}
		return fatal(errors.Wrapf(err, "channel open for order %s failed", order.OrderID))
	}

	channelPoint, err := m.resolveChannelPoint(ctx, fundingTxid)
	if err != nil {
		return fatal(errors.Wrapf(err, "channel for order %s funded by %s but channel point unresolved", order.OrderID, fundingTxid))
	}

	if err := m.datasource.SetOrderFunding(ctx, order.OrderID, fundingTxid, channelPoint); err != nil {
		return fatal(err)
	}
	order.FundingTxID = fundingTxid
	order.ChannelPoint = channelPoint

	// the buyer only sees the open once the marketplace knows the channel
	// point; losing this report strands the sale, so it is fatal too
	if err := m.marketplace.ConfirmChannelPoint(ctx, order.OrderID, channelPoint); err != nil {
		return fatal(errors.Wrapf(err, "failed to report channel point %s for order %s", channelPoint, order.OrderID))
	}

	if err := m.transition(ctx, order, model.StatusOpened, ""); err != nil {
		return fatal(err)
	}

	m.notify(ctx, fmt.Sprintf("📡 Channel open for order %s: %s (%d sats to %s)",
		order.OrderID, channelPoint, order.CapacitySats, buyerLabel(order)))

	return m.issueInvoice(ctx, order)
}

// resolveChannelPoint polls the node until the funding transaction shows up
// as a pending or active channel.
func (m *Magmad) resolveChannelPoint(ctx context.Context, fundingTxid string) (string, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return "", err
	}

	deadline := time.Now().Add(time.Duration(cfg.Pipeline.ChannelPointWaitSeconds) * time.Second)
	for {
		point, err := m.node.PendingChannelPoint(ctx, fundingTxid)
		if err != nil {
			return "", err
		}
		if point == "" {
			point, err = m.node.OpenChannelPoint(ctx, fundingTxid)
			if err != nil {
				return "", err
			}
		}
		if point != "" {
			return point, nil
		}

		if time.Now().After(deadline) {
			return "", errors.Errorf("funding transaction %s never surfaced as a channel", fundingTxid)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(10 * time.Second):
		}
	}
}
