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

// Package telegram is a small client for the Telegram Bot API: operator
// notifications, approval prompts with inline buttons, and long-polled
// updates.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/hodlmetight/magmad/internal/request"
)

type Client struct {
	apiURL   string
	botToken string
	chatID   int64
}

func NewClient(apiURL, botToken string, chatID int64) *Client {
	return &Client{apiURL: apiURL, botToken: botToken, chatID: chatID}
}

// ChatID returns the operator chat the client notifies.
func (c *Client) ChatID() int64 {
	return c.chatID
}

type Chat struct {
	ID int64 `json:"id"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      Chat   `json:"chat"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	Data    string   `json:"data"`
	Message *Message `json:"message"`
}

type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

type apiResponse struct {
	Ok          bool     `json:"ok"`
	Description string   `json:"description"`
	Result      []Update `json:"result"`
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.apiURL, c.botToken, method)
}

func (c *Client) post(ctx context.Context, method string, payload interface{}) error {
	body, err := request.ToJsonReq(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), body)
	if err != nil {
		return err
	}

	var response struct {
		Ok          bool   `json:"ok"`
		Description string `json:"description"`
	}
	resp, err := request.Call(req, &response)
	if err != nil {
		return errors.Wrapf(err, "telegram %s failed", method)
	}
	if resp.StatusCode >= http.StatusBadRequest || !response.Ok {
		return errors.Errorf("telegram %s returned status %d: %s", method, resp.StatusCode, response.Description)
	}

	return nil
}

// SendMessage sends a plain text message to the operator chat.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	return c.post(ctx, "sendMessage", map[string]interface{}{
		"chat_id": c.chatID,
		"text":    text,
	})
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// SendDecisionPrompt sends a message with two inline buttons whose callback
// data carries the given payloads.
func (c *Client) SendDecisionPrompt(ctx context.Context, text, approveData, rejectData string) error {
	return c.post(ctx, "sendMessage", map[string]interface{}{
		"chat_id": c.chatID,
		"text":    text,
		"reply_markup": map[string]interface{}{
			"inline_keyboard": [][]inlineButton{
				{
					{Text: "✅ Approve", CallbackData: approveData},
					{Text: "❌ Reject", CallbackData: rejectData},
				},
			},
		},
	})
}

// AnswerCallback acknowledges an inline button press so the client stops
// showing its spinner.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return c.post(ctx, "answerCallbackQuery", map[string]interface{}{
		"callback_query_id": callbackID,
		"text":              text,
	})
}

// GetUpdates long-polls for updates after the given offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	body, err := request.ToJsonReq(map[string]interface{}{
		"offset":  offset,
		"timeout": int64(timeout.Seconds()),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("getUpdates"), body)
	if err != nil {
		return nil, err
	}

	var response apiResponse
	resp, err := request.Call(req, &response)
	if err != nil {
		return nil, errors.Wrap(err, "telegram getUpdates failed")
	}
	if resp.StatusCode >= http.StatusBadRequest || !response.Ok {
		return nil, errors.Errorf("telegram getUpdates returned status %d: %s", resp.StatusCode, response.Description)
	}

	return response.Result, nil
}
