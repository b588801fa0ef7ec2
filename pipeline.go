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
	"go.opentelemetry.io/otel"

	"github.com/hodlmetight/magmad/config"
	"github.com/hodlmetight/magmad/internal/apierror"
	"github.com/hodlmetight/magmad/internal/notification"
	"github.com/hodlmetight/magmad/model"
)

var tracer = otel.Tracer("magmad.pipeline")

// fatalError marks an error as systemic: the pipeline cannot reason about the
// failure and must stop touching funds until an operator intervenes.
type fatalError struct {
	err error
}

func (e fatalError) Error() string { return e.err.Error() }
func (e fatalError) Unwrap() error { return e.err }

func fatal(err error) error {
	if err == nil {
		return nil
	}
	return fatalError{err: err}
}

func isFatal(err error) bool {
	var fe fatalError
	return errors.As(err, &fe)
}

// RunCycle executes one full pipeline tick: guard check, order discovery, and
// one advancement pass over every active order, oldest first. A fatal error
// trips the guard and aborts the tick; every later tick is then refused until
// the operator clears the flag.
func (m *Magmad) RunCycle(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "Pipeline tick")
	defer span.End()

	flag, checkErr := m.guard.Check(ctx)
	if checkErr != nil {
		return checkErr
	}
	if flag != nil {
		m.notify(ctx, fmt.Sprintf("⛔ Pipeline halted since %s: %s. Clear the guard to resume.", flag.SetAt.Format(time.RFC822), flag.Reason))
		return ErrPipelineHalted
	}

	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("panic during pipeline tick: %v", r)
			if tripErr := m.guard.Trip(ctx, reason); tripErr != nil {
				logrus.Errorf("failed to trip guard after panic: %v", tripErr)
			}
			m.notify(ctx, "🚨 "+reason)
			err = errors.Errorf("%s", reason)
		}
	}()

	if discoverErr := m.discoverOrders(ctx); discoverErr != nil {
		// discovery failures are transient, the next tick retries
		notification.NotifyError(discoverErr)
	}

	orders, err := m.datasource.ListActiveOrders(ctx)
	if err != nil {
		return err
	}

	for _, order := range orders {
		if advanceErr := m.advanceOrder(ctx, order); advanceErr != nil {
			if isFatal(advanceErr) {
				reason := fmt.Sprintf("fatal error on order %s: %v", order.OrderID, advanceErr)
				if tripErr := m.guard.Trip(ctx, reason); tripErr != nil {
					logrus.Errorf("failed to trip guard: %v", tripErr)
				}
				m.notify(ctx, "🚨 Pipeline halted: "+reason)
				return advanceErr
			}
			// transient failure, the order stays where it is for the next tick
			logrus.Warnf("order %s stage failed: %v", order.OrderID, advanceErr)
			notification.NotifyError(advanceErr)
		}
	}

	return nil
}

// discoverOrders pulls the open order book from the marketplace and records
// any orders not seen before. Re-discovered orders are left untouched.
func (m *Magmad) discoverOrders(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Discovering marketplace orders")
	defer span.End()

	openOrders, err := m.marketplace.ListOpenOrders(ctx)
	if err != nil {
		return errors.Wrap(err, "order discovery failed")
	}

	for _, open := range openOrders {
		now := time.Now()
		order := &model.Order{
			OrderID:          open.ID,
			BuyerPubkey:      open.BuyerPubkey,
			CapacitySats:     open.CapacitySats,
			PriceSats:        open.PriceSats,
			Status:           model.StatusDiscovered,
			CreatedAt:        now,
			LastTransitionAt: now,
		}

		inserted, err := m.datasource.UpsertOrder(ctx, order)
		if err != nil {
			return err
		}
		if !inserted {
			continue
		}

		m.enrichBuyer(ctx, order)
		m.notify(ctx, fmt.Sprintf("🆕 New channel sale order %s: %d sats capacity for %d sats from %s",
			order.OrderID, order.CapacitySats, order.PriceSats, buyerLabel(order)))
	}

	return nil
}

// enrichBuyer fetches and stores the buyer's alias. Best effort, a missing
// alias never blocks the pipeline.
func (m *Magmad) enrichBuyer(ctx context.Context, order *model.Order) {
	alias := m.lookupAlias(ctx, order.BuyerPubkey)
	if alias == "" {
		return
	}
	order.BuyerAlias = alias
	if err := m.datasource.SetOrderBuyerAlias(ctx, order.OrderID, alias); err != nil {
		logrus.Warnf("failed to store buyer alias for order %s: %v", order.OrderID, err)
	}
}

// lookupAlias resolves a node alias through the cache first. Buyers that post
// several orders resolve without another marketplace round trip.
func (m *Magmad) lookupAlias(ctx context.Context, pubkey string) string {
	cacheKey := fmt.Sprintf("magmad:alias:%s", pubkey)
	if m.aliasCache != nil {
		var cached string
		if err := m.aliasCache.Get(ctx, cacheKey, &cached); err == nil && cached != "" {
			return cached
		}
	}
	alias, err := m.marketplace.NodeAlias(ctx, pubkey)
	if err != nil || alias == "" {
		return ""
	}
	if m.aliasCache != nil {
		if err := m.aliasCache.Set(ctx, cacheKey, alias, 24*time.Hour); err != nil {
			logrus.Warnf("failed to cache alias for %s: %v", pubkey, err)
		}
	}
	return alias
}

func buyerLabel(order *model.Order) string {
	if order.BuyerAlias != "" {
		return fmt.Sprintf("%s (%s)", order.BuyerAlias, order.BuyerPubkey)
	}
	return order.BuyerPubkey
}

// advanceOrder moves one order as far through the lifecycle as this tick can
// take it. Stages that need to wait on the outside world leave the order in
// place for the next tick.
func (m *Magmad) advanceOrder(ctx context.Context, order *model.Order) error {
	switch order.Status {
	case model.StatusDiscovered:
		if err := m.transition(ctx, order, model.StatusValidating, ""); err != nil {
			return err
		}
		return m.validateOrder(ctx, order)

	case model.StatusValidating:
		return m.validateOrder(ctx, order)

	case model.StatusAwaitingApproval:
		return m.resolveApproval(ctx, order)

	case model.StatusApproved:
		if err := m.transition(ctx, order, model.StatusConnecting, ""); err != nil {
			return err
		}
		return m.connectBuyer(ctx, order)

	case model.StatusConnecting:
		return m.connectBuyer(ctx, order)

	case model.StatusConnected:
		if err := m.transition(ctx, order, model.StatusOpening, ""); err != nil {
			return err
		}
		return m.openChannel(ctx, order)

	case model.StatusOpening:
		// the process died mid-open; whether the funding transaction went out
		// is unknown, so only an operator can resolve this
		return fatal(errors.Errorf("order %s found mid-open, funding state unknown", order.OrderID))

	case model.StatusOpened:
		return m.issueInvoice(ctx, order)

	case model.StatusAwaitingPayment:
		return m.awaitSettlement(ctx, order)

	default:
		return nil
	}
}

// transition persists a lifecycle step and keeps the in-memory order in sync
// with it.
func (m *Magmad) transition(ctx context.Context, order *model.Order, toStatus, reason string) error {
	if err := m.datasource.TransitionOrder(ctx, order.OrderID, toStatus, reason); err != nil {
		return err
	}
	order.Status = toStatus
	order.Reason = reason
	order.LastTransitionAt = time.Now()
	return nil
}

// validateOrder runs the economic checks on a discovered order. A rejection
// here is a normal outcome: the order is closed and the marketplace told, but
// the pipeline keeps running.
func (m *Magmad) validateOrder(ctx context.Context, order *model.Order) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	if cfg.Pipeline.IsBannedPubkey(order.BuyerPubkey) {
		return m.rejectOrder(ctx, order, model.StatusRejectedEconomics, fmt.Sprintf("buyer %s is on the banned list", order.BuyerPubkey))
	}

	feeSats, err := m.estimateOpeningFee(ctx, order.CapacitySats)
	if err != nil {
		return err
	}
	if storeErr := m.datasource.SetOrderFeeEstimate(ctx, order.OrderID, feeSats); storeErr != nil {
		return storeErr
	}
	order.EstimatedFeeSats = feeSats

	result := ValidateOrderEconomics(order, feeSats, cfg.Pipeline.EconomicLimits())
	if !result.Accepted {
		return m.rejectOrder(ctx, order, model.StatusRejectedEconomics, result.Reason)
	}

	if err := m.transition(ctx, order, model.StatusAwaitingApproval, ""); err != nil {
		return err
	}

	return m.requestApproval(ctx, order)
}

// rejectOrder closes an order on this side and on the marketplace. The local
// transition comes first so a marketplace failure can never resurrect the
// order.
func (m *Magmad) rejectOrder(ctx context.Context, order *model.Order, toStatus, reason string) error {
	if err := m.transition(ctx, order, toStatus, reason); err != nil {
		return err
	}

	if err := m.marketplace.RejectOrder(ctx, order.OrderID); err != nil {
		logrus.Warnf("marketplace reject for order %s failed: %v", order.OrderID, err)
		notification.NotifyError(err)
	}

	m.notify(ctx, fmt.Sprintf("🚫 Order %s rejected: %s", order.OrderID, reason))
	return nil
}

// ignoreBenignTransition swallows lifecycle conflicts caused by two writers
// racing to close the same order; the order reached a terminal state either
// way.
func ignoreBenignTransition(err error) error {
	if err == nil || apierror.Is(err, apierror.ErrInvalidTransition) {
		return nil
	}
	return err
}
