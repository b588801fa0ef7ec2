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

// Package amboss is the client for the Amboss Magma marketplace GraphQL API.
package amboss

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"github.com/hodlmetight/magmad/internal/request"
)

// Order statuses on the marketplace side.
const (
	MarketStatusWaitingApproval    = "WAITING_FOR_SELLER_APPROVAL"
	MarketStatusWaitingChannelOpen = "WAITING_FOR_CHANNEL_OPEN"
)

type Client struct {
	url   string
	token string
}

func NewClient(url, token string) *Client {
	return &Client{url: url, token: token}
}

// OpenOrder is one sell order as reported by the marketplace.
type OpenOrder struct {
	ID           string
	BuyerPubkey  string
	Status       string
	CapacitySats int64
	PriceSats    int64
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   map[string]interface{} `json:"data"`
	Errors []graphqlError         `json:"errors"`
}

func (c *Client) call(ctx context.Context, query string, variables map[string]interface{}) (map[string]interface{}, error) {
	payload, err := request.ToJsonReq(&graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", request.BearerAuth(c.token))

	var response graphqlResponse
	resp, err := request.Call(req, &response)
	if err != nil {
		return nil, errors.Wrap(err, "marketplace request failed")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, errors.Errorf("marketplace returned status %d", resp.StatusCode)
	}
	if len(response.Errors) > 0 {
		return nil, errors.Errorf("marketplace error: %s", response.Errors[0].Message)
	}

	return response.Data, nil
}

const listOrdersQuery = `
query ListChannelSaleOrders {
  getUser {
    market {
      offer_orders {
        list {
          id
          size
          status
          account
          seller_invoice_amount
        }
      }
    }
  }
}`

// ListOpenOrders returns the seller's orders that are waiting on an action
// from this side: either approval or a channel open.
func (c *Client) ListOpenOrders(ctx context.Context) ([]OpenOrder, error) {
	data, err := c.call(ctx, listOrdersQuery, nil)
	if err != nil {
		return nil, err
	}

	list, err := dig(data, "getUser", "market", "offer_orders", "list")
	if err != nil {
		return nil, err
	}

	rawOrders, ok := list.([]interface{})
	if !ok {
		return nil, errors.New("marketplace order list has unexpected shape")
	}

	var orders []OpenOrder
	for _, raw := range rawOrders {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		status, _ := entry["status"].(string)
		if status != MarketStatusWaitingApproval && status != MarketStatusWaitingChannelOpen {
			continue
		}

		order := OpenOrder{Status: status}
		order.ID, _ = entry["id"].(string)
		order.BuyerPubkey, _ = entry["account"].(string)
		order.CapacitySats, err = toSats(entry["size"])
		if err != nil {
			return nil, errors.Wrapf(err, "order %s has invalid size", order.ID)
		}
		order.PriceSats, err = toSats(entry["seller_invoice_amount"])
		if err != nil {
			return nil, errors.Wrapf(err, "order %s has invalid invoice amount", order.ID)
		}

		orders = append(orders, order)
	}

	return orders, nil
}

const acceptOrderMutation = `
mutation AcceptChannelSaleOrder($sellerAcceptOrderId: String!, $request: String!) {
  sellerAcceptOrder(id: $sellerAcceptOrderId, request: $request)
}`

// AcceptOrder accepts a sale on the marketplace, attaching the settlement
// invoice the buyer must pay.
func (c *Client) AcceptOrder(ctx context.Context, orderID, paymentRequest string) error {
	_, err := c.call(ctx, acceptOrderMutation, map[string]interface{}{
		"sellerAcceptOrderId": orderID,
		"request":             paymentRequest,
	})
	return err
}

const rejectOrderMutation = `
mutation RejectChannelSaleOrder($sellerRejectOrderId: String!) {
  sellerRejectOrder(id: $sellerRejectOrderId)
}`

func (c *Client) RejectOrder(ctx context.Context, orderID string) error {
	_, err := c.call(ctx, rejectOrderMutation, map[string]interface{}{
		"sellerRejectOrderId": orderID,
	})
	return err
}

const confirmChannelPointMutation = `
mutation ConfirmChannelPoint($sellerAddTransactionId: String!, $transaction: String!) {
  sellerAddTransaction(id: $sellerAddTransactionId, transaction: $transaction)
}`

// ConfirmChannelPoint reports the funding channel point back to the
// marketplace so the buyer sees the open.
func (c *Client) ConfirmChannelPoint(ctx context.Context, orderID, channelPoint string) error {
	_, err := c.call(ctx, confirmChannelPointMutation, map[string]interface{}{
		"sellerAddTransactionId": orderID,
		"transaction":            channelPoint,
	})
	return err
}

const nodeAliasQuery = `
query NodeAlias($pubkey: String!) {
  getNodeAlias(pubkey: $pubkey)
}`

// NodeAlias returns the public alias of a node, or an empty string when the
// marketplace does not know it.
func (c *Client) NodeAlias(ctx context.Context, pubkey string) (string, error) {
	data, err := c.call(ctx, nodeAliasQuery, map[string]interface{}{"pubkey": pubkey})
	if err != nil {
		return "", err
	}

	alias, _ := data["getNodeAlias"].(string)
	return alias, nil
}

const nodeAddressesQuery = `
query NodeAddresses($pubkey: String!) {
  getNode(pubkey: $pubkey) {
    graph_info {
      node {
        addresses {
          addr
        }
      }
    }
  }
}`

// NodeAddresses returns the advertised network addresses of a node.
func (c *Client) NodeAddresses(ctx context.Context, pubkey string) ([]string, error) {
	data, err := c.call(ctx, nodeAddressesQuery, map[string]interface{}{"pubkey": pubkey})
	if err != nil {
		return nil, err
	}

	raw, err := dig(data, "getNode", "graph_info", "node", "addresses")
	if err != nil {
		return nil, err
	}

	entries, ok := raw.([]interface{})
	if !ok {
		return nil, errors.New("node addresses have unexpected shape")
	}

	var addresses []string
	for _, entry := range entries {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if addr, ok := m["addr"].(string); ok && addr != "" {
			addresses = append(addresses, addr)
		}
	}

	return addresses, nil
}

// dig walks nested GraphQL response maps.
func dig(data map[string]interface{}, path ...string) (interface{}, error) {
	var current interface{} = data
	for _, key := range path {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("marketplace response missing field %q", key)
		}
		current, ok = m[key]
		if !ok {
			return nil, errors.Errorf("marketplace response missing field %q", key)
		}
	}
	return current, nil
}

// toSats normalizes the marketplace's numeric fields, which arrive as JSON
// numbers or strings depending on the query.
func toSats(value interface{}) (int64, error) {
	switch v := value.(type) {
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	case nil:
		return 0, errors.New("missing value")
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", value)
	}
}
