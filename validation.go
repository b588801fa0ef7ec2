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
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hodlmetight/magmad/model"
)

// ValidationResult is the outcome of judging an order against the configured
// economic limits.
type ValidationResult struct {
	Accepted bool
	Reason   string
}

// ValidateOrderEconomics judges whether opening the channel is worth it. The
// fee cap comes first: the estimated on-chain fee must not eat more than the
// configured share of the sale price, with an inclusive comparison so a fee
// exactly at the cap passes. The order itself must then make sense, with a
// positive capacity and a positive price.
func ValidateOrderEconomics(order *model.Order, estimatedFeeSats int64, limits model.EconomicLimits) ValidationResult {
	fee := decimal.NewFromInt(estimatedFeeSats)
	feeCap := decimal.NewFromInt(order.PriceSats).Mul(decimal.NewFromFloat(limits.MaxFeePercentageOfInvoice))

	if fee.GreaterThan(feeCap) {
		return ValidationResult{
			Accepted: false,
			Reason: fmt.Sprintf("fee-cap exceeded: estimated fee %s sats over cap %s sats (%.0f%% of %d sat invoice)",
				fee.String(), feeCap.StringFixed(0), limits.MaxFeePercentageOfInvoice*100, order.PriceSats),
		}
	}

	if order.CapacitySats <= 0 {
		return ValidationResult{
			Accepted: false,
			Reason:   fmt.Sprintf("order %s proposes a non-positive capacity of %d sats", order.OrderID, order.CapacitySats),
		}
	}

	if order.PriceSats <= 0 {
		return ValidationResult{
			Accepted: false,
			Reason:   fmt.Sprintf("order %s carries no invoice amount", order.OrderID),
		}
	}

	return ValidationResult{Accepted: true}
}
