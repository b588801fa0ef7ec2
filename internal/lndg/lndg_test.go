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

package lndg

import (
	"context"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewClient("https://lndg.test", "admin", "secret")
}

func TestFindChannelID(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("GET", "https://lndg.test/api/channels/",
		httpmock.NewStringResponder(200, `{"results": [
			{"chan_id": "111x1x0", "funding_txid": "aabbccdd"},
			{"chan_id": "222x2x1", "funding_txid": "eeff0011"}
		]}`))

	chanID, err := client.FindChannelID(context.Background(), "eeff0011")
	assert.NoError(t, err)
	assert.Equal(t, "222x2x1", chanID)

	chanID, err = client.FindChannelID(context.Background(), "99999999")
	assert.NoError(t, err)
	assert.Empty(t, chanID)
}

func TestAnnotateChannel(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("GET", "https://lndg.test/api/channels/",
		httpmock.NewStringResponder(200, `{"results": [{"chan_id": "111x1x0", "funding_txid": "aabbccdd"}]}`))
	httpmock.RegisterResponder("PUT", "https://lndg.test/api/channels/111x1x0/",
		httpmock.NewStringResponder(200, `{"chan_id": "111x1x0"}`))

	err := client.AnnotateChannel(context.Background(), "aabbccdd", "sold for 50000 sats on 2026-08-29")
	assert.NoError(t, err)

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["PUT https://lndg.test/api/channels/111x1x0/"])
}

func TestAnnotateChannelNotYetTracked(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("GET", "https://lndg.test/api/channels/",
		httpmock.NewStringResponder(200, `{"results": []}`))

	err := client.AnnotateChannel(context.Background(), "aabbccdd", "note")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no channel for funding txid")
}
