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
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hodlmetight/magmad/internal/telegram"
)

// Bot long-polls Telegram for operator input: the manual trigger command and
// the approve/reject buttons. It never writes order state itself; decisions
// go into the mailbox for the next tick to consume.
type Bot struct {
	client    *telegram.Client
	magmad    *Magmad
	scheduler *Scheduler
}

func NewBot(client *telegram.Client, m *Magmad, scheduler *Scheduler) *Bot {
	return &Bot{client: client, magmad: m, scheduler: scheduler}
}

// Run polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	var offset int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := b.client.GetUpdates(ctx, offset, 30*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logrus.Warnf("telegram poll failed: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update telegram.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleCommand(ctx, update.Message)
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *telegram.Message) {
	if message.Chat.ID != b.client.ChatID() {
		return
	}

	command := strings.TrimSpace(message.Text)
	if idx := strings.Index(command, "@"); idx > 0 {
		command = command[:idx]
	}

	switch command {
	case "/processmagmaorders":
		b.scheduler.TriggerNow()
		if err := b.client.SendMessage(ctx, "⚙️ Pipeline run requested."); err != nil {
			logrus.Warnf("telegram reply failed: %v", err)
		}
	case "/status":
		b.reportStatus(ctx)
	}
}

func (b *Bot) reportStatus(ctx context.Context) {
	flag, err := b.magmad.guard.Check(ctx)
	if err != nil {
		logrus.Warnf("status check failed: %v", err)
		return
	}

	text := "✅ Pipeline is running."
	if flag != nil {
		text = "⛔ Pipeline is halted since " + flag.SetAt.Format(time.RFC822) + ": " + flag.Reason
	}
	if err := b.client.SendMessage(ctx, text); err != nil {
		logrus.Warnf("telegram reply failed: %v", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, callback *telegram.CallbackQuery) {
	parts := strings.Split(callback.Data, ":")
	if len(parts) != 3 || parts[0] != "decide_order" {
		return
	}
	action, orderID := parts[1], parts[2]

	recorded, err := b.magmad.RecordDecision(ctx, orderID, action)
	if err != nil {
		logrus.Warnf("failed to record decision for order %s: %v", orderID, err)
		if ackErr := b.client.AnswerCallback(ctx, callback.ID, "Something went wrong, try again."); ackErr != nil {
			logrus.Warnf("telegram callback answer failed: %v", ackErr)
		}
		return
	}

	answer := "Decision recorded: " + action
	if !recorded {
		answer = "This order was already decided."
	}
	if err := b.client.AnswerCallback(ctx, callback.ID, answer); err != nil {
		logrus.Warnf("telegram callback answer failed: %v", err)
	}

	// apply the decision without waiting for the next scheduled poll
	if recorded {
		b.scheduler.TriggerNow()
	}
}
