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

package amboss

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
)

const testURL = "https://api.amboss.test/graphql"

func newTestClient(t *testing.T) *Client {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewClient(testURL, "test-token")
}

func TestListOpenOrders(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", testURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer test-token", req.Header.Get("Authorization"))
			return httpmock.NewStringResponse(200, `{"data": {"getUser": {"market": {"offer_orders": {"list": [
				{"id": "order-1", "size": "5000000", "status": "WAITING_FOR_SELLER_APPROVAL", "account": "02abc", "seller_invoice_amount": "50000"},
				{"id": "order-2", "size": 2000000, "status": "COMPLETED", "account": "03def", "seller_invoice_amount": 20000},
				{"id": "order-3", "size": 1000000, "status": "WAITING_FOR_CHANNEL_OPEN", "account": "03aaa", "seller_invoice_amount": 10000}
			]}}}}}`), nil
		})

	orders, err := client.ListOpenOrders(context.Background())
	assert.NoError(t, err)
	assert.Len(t, orders, 2)

	assert.Equal(t, "order-1", orders[0].ID)
	assert.Equal(t, "02abc", orders[0].BuyerPubkey)
	assert.Equal(t, int64(5000000), orders[0].CapacitySats)
	assert.Equal(t, int64(50000), orders[0].PriceSats)
	assert.Equal(t, MarketStatusWaitingApproval, orders[0].Status)

	assert.Equal(t, "order-3", orders[1].ID)
	assert.Equal(t, MarketStatusWaitingChannelOpen, orders[1].Status)
}

func TestListOpenOrdersGraphQLError(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", testURL,
		httpmock.NewStringResponder(200, `{"data": null, "errors": [{"message": "not authorized"}]}`))

	_, err := client.ListOpenOrders(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")
}

func TestAcceptOrderVariables(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", testURL,
		func(req *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(req.Body)
			var payload struct {
				Variables map[string]interface{} `json:"variables"`
			}
			assert.NoError(t, json.Unmarshal(body, &payload))
			assert.Equal(t, "order-1", payload.Variables["sellerAcceptOrderId"])
			assert.Equal(t, "lnbc500u1...", payload.Variables["request"])
			return httpmock.NewStringResponse(200, `{"data": {"sellerAcceptOrder": true}}`), nil
		})

	err := client.AcceptOrder(context.Background(), "order-1", "lnbc500u1...")
	assert.NoError(t, err)
}

func TestRejectOrder(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", testURL,
		httpmock.NewStringResponder(200, `{"data": {"sellerRejectOrder": true}}`))

	err := client.RejectOrder(context.Background(), "order-1")
	assert.NoError(t, err)
}

func TestConfirmChannelPoint(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", testURL,
		func(req *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(req.Body)
			var payload struct {
				Variables map[string]interface{} `json:"variables"`
			}
			assert.NoError(t, json.Unmarshal(body, &payload))
			assert.Equal(t, "aabbccdd:1", payload.Variables["transaction"])
			return httpmock.NewStringResponse(200, `{"data": {"sellerAddTransaction": true}}`), nil
		})

	err := client.ConfirmChannelPoint(context.Background(), "order-1", "aabbccdd:1")
	assert.NoError(t, err)
}

func TestNodeAlias(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", testURL,
		httpmock.NewStringResponder(200, `{"data": {"getNodeAlias": "buyer-node"}}`))

	alias, err := client.NodeAlias(context.Background(), "02abc")
	assert.NoError(t, err)
	assert.Equal(t, "buyer-node", alias)
}

func TestNodeAddresses(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("POST", testURL,
		httpmock.NewStringResponder(200, `{"data": {"getNode": {"graph_info": {"node": {"addresses": [
			{"addr": "1.2.3.4:9735"},
			{"addr": "abcdefghijklmnop.onion:9735"},
			{"addr": ""}
		]}}}}}`))

	addresses, err := client.NodeAddresses(context.Background(), "02abc")
	assert.NoError(t, err)
	assert.Equal(t, []string{"1.2.3.4:9735", "abcdefghijklmnop.onion:9735"}, addresses)
}

func TestToSats(t *testing.T) {
	v, err := toSats(float64(5000000))
	assert.NoError(t, err)
	assert.Equal(t, int64(5000000), v)

	v, err = toSats("50000")
	assert.NoError(t, err)
	assert.Equal(t, int64(50000), v)

	_, err = toSats(nil)
	assert.Error(t, err)

	_, err = toSats(true)
	assert.Error(t, err)
}
