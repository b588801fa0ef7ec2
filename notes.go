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

	"github.com/sirupsen/logrus"

	"github.com/hodlmetight/magmad/model"
)

// recordOutcomeNote annotates the opened channel on the dashboard with how
// the sale ended. Best effort: the dashboard is cosmetic, a failure here
// never touches the order.
func (m *Magmad) recordOutcomeNote(ctx context.Context, order *model.Order) {
	if m.notes == nil || order.FundingTxID == "" {
		return
	}

	var note string
	switch order.Status {
	case model.StatusPaid:
		note = fmt.Sprintf("%s sold for %d sats on %s", invoiceMemo(order.OrderID), order.PriceSats, time.Now().Format("2006-01-02"))
	case model.StatusExpired:
		note = fmt.Sprintf("%s invoice expired unpaid on %s", invoiceMemo(order.OrderID), time.Now().Format("2006-01-02"))
	default:
		return
	}

	if err := m.notes.AnnotateChannel(ctx, order.FundingTxID, note); err != nil {
		logrus.Warnf("failed to annotate channel for order %s: %v", order.OrderID, err)
	}
}
