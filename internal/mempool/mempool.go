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

// Package mempool reads the recommended fee rates from a mempool.space
// compatible API.
package mempool

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/hodlmetight/magmad/internal/request"
)

type Client struct {
	feesURL string
}

func NewClient(feesURL string) *Client {
	return &Client{feesURL: feesURL}
}

type recommendedFees struct {
	FastestFee  int64 `json:"fastestFee"`
	HalfHourFee int64 `json:"halfHourFee"`
	HourFee     int64 `json:"hourFee"`
	MinimumFee  int64 `json:"minimumFee"`
}

// FastestFee returns the sat/vB rate expected to confirm in the next block.
func (c *Client) FastestFee(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feesURL, nil)
	if err != nil {
		return 0, err
	}

	var fees recommendedFees
	resp, err := request.Call(req, &fees)
	if err != nil {
		return 0, errors.Wrap(err, "fee api request failed")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return 0, errors.Errorf("fee api returned status %d", resp.StatusCode)
	}
	if fees.FastestFee <= 0 {
		return 0, errors.New("fee api returned no usable rate")
	}

	return fees.FastestFee, nil
}
