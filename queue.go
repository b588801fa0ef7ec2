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
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hodlmetight/magmad/config"
	"github.com/hodlmetight/magmad/internal/apierror"
	redis_db "github.com/hodlmetight/magmad/internal/redis-db"
	"github.com/hodlmetight/magmad/model"
)

// Queue holds the delayed-task client used for invoice expiries.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// queueInvoiceExpiry enqueues the delayed task that closes an order when its
// invoice runs out. The task id makes requeueing the same order a no-op.
func (q *Queue) queueInvoiceExpiry(orderID string, expiresAt time.Time) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(orderID)
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID("expire:" + orderID),
		asynq.Queue(cfg.Queue.InvoiceExpiryQueue),
		asynq.ProcessIn(time.Until(expiresAt)),
	}
	task := asynq.NewTask(cfg.Queue.InvoiceExpiryQueue, payload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued invoice expiry: %+v", orderID)
	return nil
}

// ProcessInvoiceExpiry is the worker handler for the expiry task. By the time
// it fires the tick may already have closed the order, so a lifecycle
// conflict or a terminal order is simply done work.
func (m *Magmad) ProcessInvoiceExpiry(ctx context.Context, task *asynq.Task) error {
	var orderID string
	if err := json.Unmarshal(task.Payload(), &orderID); err != nil {
		return err
	}

	order, err := m.datasource.GetOrder(ctx, orderID)
	if err != nil {
		if apierror.Is(err, apierror.ErrNotFound) {
			return nil
		}
		return err
	}

	if order.IsTerminal() {
		return nil
	}
	if order.Status != model.StatusAwaitingPayment {
		// not yet awaiting payment, the invoice was never issued
		return nil
	}

	// the invoice may have settled right at the deadline
	if order.InvoiceRHash != "" {
		invoice, err := m.node.LookupInvoice(ctx, order.InvoiceRHash)
		if err == nil && invoice.Settled {
			return m.settleOrder(ctx, order)
		}
	}

	return m.expireOrder(ctx, order)
}
