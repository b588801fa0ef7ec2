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

// Package lndg writes sale outcome notes to an LNDg dashboard so the channel
// carries its provenance next to the operator's routing data.
package lndg

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/hodlmetight/magmad/internal/request"
)

type Client struct {
	baseURL  string
	username string
	password string
}

func NewClient(baseURL, username, password string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
	}
}

type channelEntry struct {
	ChanID       string `json:"chan_id"`
	FundingTxid  string `json:"funding_txid"`
	OutputIndex  int    `json:"output_index"`
	Alias        string `json:"alias"`
	Notes        string `json:"notes"`
	RemotePubkey string `json:"remote_pubkey"`
}

type channelListResponse struct {
	Results []channelEntry `json:"results"`
}

// FindChannelID resolves a funding transaction to the dashboard's channel id.
// Returns an empty id when the dashboard has not picked the channel up yet.
func (c *Client) FindChannelID(ctx context.Context, fundingTxid string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/channels/?limit=500", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Basic "+request.BasicAuth(c.username, c.password))

	var response channelListResponse
	resp, err := request.Call(req, &response)
	if err != nil {
		return "", errors.Wrap(err, "dashboard channel list failed")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", errors.Errorf("dashboard returned status %d", resp.StatusCode)
	}

	for _, channel := range response.Results {
		if channel.FundingTxid == fundingTxid {
			return channel.ChanID, nil
		}
	}

	return "", nil
}

// WriteNote stores a note on a dashboard channel.
func (c *Client) WriteNote(ctx context.Context, chanID, note string) error {
	payload, err := request.ToJsonReq(map[string]string{
		"chan_id": chanID,
		"notes":   note,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("%s/api/channels/%s/", c.baseURL, chanID), payload)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Basic "+request.BasicAuth(c.username, c.password))

	var response map[string]interface{}
	resp, err := request.Call(req, &response)
	if err != nil {
		return errors.Wrap(err, "dashboard note write failed")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("dashboard returned status %d", resp.StatusCode)
	}

	return nil
}

// AnnotateChannel looks the channel up by its funding transaction and writes
// the note in one call.
func (c *Client) AnnotateChannel(ctx context.Context, fundingTxid, note string) error {
	chanID, err := c.FindChannelID(ctx, fundingTxid)
	if err != nil {
		return err
	}
	if chanID == "" {
		return errors.Errorf("dashboard has no channel for funding txid %s yet", fundingTxid)
	}
	return c.WriteNote(ctx, chanID, note)
}
