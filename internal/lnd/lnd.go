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

// Package lnd is a client for the LND REST API, covering the handful of calls
// the order pipeline needs: peer connection, channel opens, invoices and
// wallet UTXOs.
package lnd

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Client struct {
	baseURL     string
	macaroonHex string
	httpClient  *http.Client
}

func NewClient(baseURL, macaroonHex string, tlsSkipVerify bool) *Client {
	transport := &http.Transport{}
	if tlsSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		macaroonHex: macaroonHex,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,
		},
	}
}

// Invoice is a created or looked-up invoice on the node.
type Invoice struct {
	RHashHex       string
	PaymentRequest string
	Settled        bool
	State          string
}

// Utxo is one spendable wallet output.
type Utxo struct {
	AmountSat int64
	Address   string
	Confs     int64
}

type restError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, payload, response interface{}) error {
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Grpc-Metadata-macaroon", c.macaroonHex)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "node request %s failed", path)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		var restErr restError
		_ = json.NewDecoder(resp.Body).Decode(&restErr)
		msg := restErr.Message
		if msg == "" {
			msg = restErr.Error
		}
		return errors.Errorf("node returned status %d on %s: %s", resp.StatusCode, path, msg)
	}

	if response == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(response)
}

// IsPeer reports whether the node already holds a connection to the pubkey.
func (c *Client) IsPeer(ctx context.Context, pubkey string) (bool, error) {
	var response struct {
		Peers []struct {
			PubKey string `json:"pub_key"`
		} `json:"peers"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/peers", nil, &response); err != nil {
		return false, err
	}
	for _, peer := range response.Peers {
		if peer.PubKey == pubkey {
			return true, nil
		}
	}
	return false, nil
}

// ConnectPeer connects to a peer at the given host address. Connecting to an
// already-connected peer returns an error from the node; callers treat that
// as success after checking IsPeer.
func (c *Client) ConnectPeer(ctx context.Context, pubkey, host string) error {
	payload := map[string]interface{}{
		"addr": map[string]string{
			"pubkey": pubkey,
			"host":   host,
		},
		"perm":    false,
		"timeout": "30",
	}
	return c.do(ctx, http.MethodPost, "/v1/peers", payload, nil)
}

// OpenChannel performs a synchronous channel open and returns the funding
// transaction id.
func (c *Client) OpenChannel(ctx context.Context, pubkey string, localFundingSats int64, satPerVbyte int64, feeRatePPM int64, minConfs int32) (string, error) {
	nodePubkeyBytes, err := hex.DecodeString(pubkey)
	if err != nil {
		return "", errors.Wrap(err, "invalid peer pubkey")
	}

	payload := map[string]interface{}{
		"node_pubkey":          base64.StdEncoding.EncodeToString(nodePubkeyBytes),
		"local_funding_amount": strconv.FormatInt(localFundingSats, 10),
		"sat_per_vbyte":        strconv.FormatInt(satPerVbyte, 10),
		"min_confs":            minConfs,
		"use_fee_rate":         true,
		"fee_rate":             feeRatePPM,
	}

	var response struct {
		FundingTxidBytes string `json:"funding_txid_bytes"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/channels", payload, &response); err != nil {
		return "", err
	}
	if response.FundingTxidBytes == "" {
		return "", errors.New("node returned no funding txid")
	}

	return decodeTxid(response.FundingTxidBytes)
}

// AddInvoice creates an invoice for the sale amount with the given memo and
// expiry.
func (c *Client) AddInvoice(ctx context.Context, memo string, valueSats int64, expiry time.Duration) (*Invoice, error) {
	payload := map[string]interface{}{
		"memo":   memo,
		"value":  strconv.FormatInt(valueSats, 10),
		"expiry": strconv.FormatInt(int64(expiry.Seconds()), 10),
	}

	var response struct {
		RHash          string `json:"r_hash"`
		PaymentRequest string `json:"payment_request"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/invoices", payload, &response); err != nil {
		return nil, err
	}

	rHash, err := base64.StdEncoding.DecodeString(response.RHash)
	if err != nil {
		return nil, errors.Wrap(err, "invalid invoice r_hash")
	}

	return &Invoice{
		RHashHex:       hex.EncodeToString(rHash),
		PaymentRequest: response.PaymentRequest,
	}, nil
}

// LookupInvoice fetches the current settlement state of an invoice.
func (c *Client) LookupInvoice(ctx context.Context, rHashHex string) (*Invoice, error) {
	var response struct {
		Settled        bool   `json:"settled"`
		State          string `json:"state"`
		PaymentRequest string `json:"payment_request"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/invoice/"+rHashHex, nil, &response); err != nil {
		return nil, err
	}

	return &Invoice{
		RHashHex:       rHashHex,
		PaymentRequest: response.PaymentRequest,
		Settled:        response.Settled,
		State:          response.State,
	}, nil
}

// PendingChannelPoint looks for a pending open channel funded by the given
// transaction and returns its channel point.
func (c *Client) PendingChannelPoint(ctx context.Context, fundingTxid string) (string, error) {
	var response struct {
		PendingOpenChannels []struct {
			Channel struct {
				ChannelPoint string `json:"channel_point"`
			} `json:"channel"`
		} `json:"pending_open_channels"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/channels/pending", nil, &response); err != nil {
		return "", err
	}

	for _, pending := range response.PendingOpenChannels {
		point := pending.Channel.ChannelPoint
		if strings.HasPrefix(point, fundingTxid+":") {
			return point, nil
		}
	}

	return "", nil
}

// OpenChannelPoint looks for an already-active channel funded by the given
// transaction.
func (c *Client) OpenChannelPoint(ctx context.Context, fundingTxid string) (string, error) {
	var response struct {
		Channels []struct {
			ChannelPoint string `json:"channel_point"`
		} `json:"channels"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/channels", nil, &response); err != nil {
		return "", err
	}

	for _, channel := range response.Channels {
		if strings.HasPrefix(channel.ChannelPoint, fundingTxid+":") {
			return channel.ChannelPoint, nil
		}
	}

	return "", nil
}

// ListUnspent returns the confirmed spendable outputs of the node's wallet.
func (c *Client) ListUnspent(ctx context.Context, minConfs int32) ([]Utxo, error) {
	path := fmt.Sprintf("/v1/utxos?min_confs=%d&max_confs=%d", minConfs, 9999999)
	var response struct {
		Utxos []struct {
			AmountSat     string `json:"amount_sat"`
			Address       string `json:"address"`
			Confirmations string `json:"confirmations"`
		} `json:"utxos"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &response); err != nil {
		return nil, err
	}

	utxos := make([]Utxo, 0, len(response.Utxos))
	for _, raw := range response.Utxos {
		amount, err := strconv.ParseInt(raw.AmountSat, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "invalid utxo amount")
		}
		confs, _ := strconv.ParseInt(raw.Confirmations, 10, 64)
		utxos = append(utxos, Utxo{
			AmountSat: amount,
			Address:   raw.Address,
			Confs:     confs,
		})
	}

	return utxos, nil
}

// decodeTxid converts LND's base64 little-endian txid bytes into the usual
// big-endian hex form.
func decodeTxid(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Wrap(err, "invalid funding txid")
	}
	for i, j := 0, len(raw)-1; i < j; i, j = i+1, j-1 {
		raw[i], raw[j] = raw[j], raw[i]
	}
	return hex.EncodeToString(raw), nil
}
