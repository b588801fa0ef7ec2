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

	"github.com/redis/go-redis/v9"

	"github.com/hodlmetight/magmad/config"
	"github.com/hodlmetight/magmad/model"
)

// Approval decisions as carried in Telegram callback data and the decision
// mailbox.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// DecisionCallbackData formats the callback payload for an approval button.
func DecisionCallbackData(action, orderID string) string {
	return fmt.Sprintf("decide_order:%s:%s", action, orderID)
}

func decisionKey(orderID string) string {
	return "magmad:decision:" + orderID
}

// requestApproval sends the operator an approval prompt, or self-approves
// when the approval gate is disabled. The self-approval still moves through
// AwaitingApproval so the audit trail reads the same either way.
func (m *Magmad) requestApproval(ctx context.Context, order *model.Order) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	if !cfg.Pipeline.ApprovalRequired || m.notifier == nil {
		if err := m.transition(ctx, order, model.StatusApproved, "approval gate disabled"); err != nil {
			return err
		}
		return nil
	}

	prompt := fmt.Sprintf("🔔 Order %s needs approval: open %d sats to %s for %d sats (est. fee %d sats). Times out in %ds.",
		order.OrderID, order.CapacitySats, buyerLabel(order), order.PriceSats, order.EstimatedFeeSats, cfg.Pipeline.ApprovalTimeoutSeconds)

	return m.notifier.SendDecisionPrompt(ctx, prompt,
		DecisionCallbackData(DecisionApprove, order.OrderID),
		DecisionCallbackData(DecisionReject, order.OrderID))
}

// RecordDecision stores an operator decision for an order. The first decision
// wins; later presses are ignored. The Telegram handler calls this, the tick
// consumes it, so the pipeline remains the only writer of order state.
func (m *Magmad) RecordDecision(ctx context.Context, orderID, action string) (bool, error) {
	if action != DecisionApprove && action != DecisionReject {
		return false, fmt.Errorf("unknown decision %q for order %s", action, orderID)
	}

	cfg, err := config.Fetch()
	if err != nil {
		return false, err
	}

	// keep the mailbox entry around well past the timeout so a late press
	// gets a clean "already decided" answer instead of a second decision
	ttl := 2 * time.Duration(cfg.Pipeline.ApprovalTimeoutSeconds) * time.Second
	return m.redis.SetNX(ctx, decisionKey(orderID), action, ttl).Result()
}

// takeDecision consumes the pending decision for an order, if any.
func (m *Magmad) takeDecision(ctx context.Context, orderID string) (string, error) {
	action, err := m.redis.GetDel(ctx, decisionKey(orderID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return action, nil
}

// resolveApproval applies a pending operator decision, or fails closed when
// the approval window has run out without one.
func (m *Magmad) resolveApproval(ctx context.Context, order *model.Order) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	// the gate may have been switched off while the order sat waiting
	if !cfg.Pipeline.ApprovalRequired {
		return m.transition(ctx, order, model.StatusApproved, "approval gate disabled")
	}

	action, err := m.takeDecision(ctx, order.OrderID)
	if err != nil {
		return err
	}

	switch action {
	case DecisionApprove:
		if err := m.transition(ctx, order, model.StatusApproved, "approved by operator"); err != nil {
			return err
		}
		m.notify(ctx, fmt.Sprintf("✅ Order %s approved", order.OrderID))
		return nil

	case DecisionReject:
		return m.rejectOrder(ctx, order, model.StatusRejected, "rejected by operator")

	default:
		timeout := time.Duration(cfg.Pipeline.ApprovalTimeoutSeconds) * time.Second
		if time.Since(order.LastTransitionAt) >= timeout {
			return m.rejectOrder(ctx, order, model.StatusRejected, fmt.Sprintf("no approval within %s", timeout))
		}
		// still inside the window, keep waiting
		return nil
	}
}
